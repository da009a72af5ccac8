package app

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/vk/reportbundle/internal/ctxlog"
	"github.com/vk/reportbundle/internal/history"
	"github.com/vk/reportbundle/internal/report"
)

//go:embed index.html
var indexHTML []byte

const archiveFilename = "report.zip"

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", a.indexHandler)
	mux.HandleFunc("POST /generate_report", a.generateHandler)
	mux.HandleFunc("GET /reports", a.reportsHandler)
	mux.HandleFunc("GET /health", a.healthHandler)
	return a.withRequestLogger(corsMiddleware(a.config.Server.CORSOrigins, mux))
}

func (a *App) indexHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// generateHandler runs the pipeline with the posted settings and streams the
// archive back.
func (a *App) generateHandler(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(r.Context())

	var settings report.Settings
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&settings); err != nil {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("request body must be a JSON object: %v", err))
		return
	}
	if dec.More() {
		writeDetail(w, http.StatusBadRequest, "request body must contain a single JSON object")
		return
	}
	if settings == nil {
		writeDetail(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	res, f, err := a.generator.GenerateOpen(r.Context(), settings)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, fmt.Sprintf("stat %s: %v", res.Archive.Path, err))
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", archiveFilename))
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.Header().Set("X-Report-Id", res.ReportID)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		logger.Warn("Failed to stream archive.", "error", err)
	}
}

func (a *App) reportsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeDetail(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	reports, err := a.Reports(r.Context(), limit)
	if errors.Is(err, ErrHistoryDisabled) {
		writeDetail(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	if reports == nil {
		reports = []history.Report{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// withRequestLogger puts a request-scoped logger into the request context.
func (a *App) withRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := a.logger.With("method", r.Method, "path", r.URL.Path)
		logger.Debug("Request received.")
		next.ServeHTTP(w, r.WithContext(ctxlog.WithLogger(r.Context(), logger)))
	})
}

// corsMiddleware allows cross-origin calls from origins ("*" allows any) and
// answers preflight requests.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	allowAll := slices.Contains(origins, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || !(allowAll || slices.Contains(origins, origin)) {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Add("Vary", "Origin")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
				h.Set("Access-Control-Allow-Headers", req)
			}
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusOK)
			return
		}
		h.Set("Access-Control-Expose-Headers", strings.Join([]string{"Content-Disposition", "X-Report-Id"}, ", "))
		next.ServeHTTP(w, r)
	})
}
