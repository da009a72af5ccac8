package app

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/vk/reportbundle/internal/config"
	"github.com/vk/reportbundle/internal/history"
	"github.com/vk/reportbundle/internal/testutil"
)

// setupApp creates an App over a fresh workspace with a static embedder.
func setupApp(t *testing.T, csv string) (*App, *testutil.Workspace, *testutil.SafeBuffer) {
	t.Helper()
	ws := testutil.NewWorkspace(t, csv)

	cfg := config.Default()
	cfg.LogLevel = "debug"
	cfg.Workspace.Root = ws.Root
	cfg.Scoring.Distance = config.BackendNone
	cfg.History.Path = "history.db"
	validated, err := config.New(cfg)
	require.NoError(t, err)

	logs := &testutil.SafeBuffer{}
	a, err := NewApp(context.Background(), logs, validated, WithEmbedder(testutil.StaticEmbedder{
		Image: []float64{1, 0},
		Text:  []float64{1, 0},
	}))
	require.NoError(t, err)
	t.Cleanup(func() {
		a.Close()
		if os.Getenv("REPORTBUNDLE_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logs.String())
		}
	})
	return a, ws, logs
}

func decodeDetail(t *testing.T, body io.Reader) string {
	t.Helper()
	var payload map[string]string
	require.NoError(t, json.NewDecoder(body).Decode(&payload))
	return payload["detail"]
}

func TestIndex(t *testing.T) {
	a, _, _ := setupApp(t, testutil.DefaultCSV)
	rec := httptest.NewRecorder()

	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	require.Contains(t, rec.Body.String(), "/generate_report")
}

func TestHealth(t *testing.T) {
	a, _, _ := setupApp(t, testutil.DefaultCSV)
	rec := httptest.NewRecorder()

	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK\n", rec.Body.String())
}

func TestGenerateReport_Success(t *testing.T) {
	// --- Arrange ---
	a, ws, _ := setupApp(t, testutil.DefaultCSV)
	body := `{"run_1": {"prompt": "a cat", "seed": 7}}`

	// --- Act ---
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/generate_report", strings.NewReader(body)))

	// --- Assert ---
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	require.Equal(t, `attachment; filename="report.zip"`, rec.Header().Get("Content-Disposition"))
	require.NotEmpty(t, rec.Header().Get("X-Report-Id"))
	require.Equal(t, strconv.Itoa(rec.Body.Len()), rec.Header().Get("Content-Length"))

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	if diff := cmp.Diff([]string{"README.txt", "config.json", "grids/grid_1.png", "results.csv"}, names); diff != "" {
		t.Errorf("Archive entries mismatch (-want +got):\n%s", diff)
	}

	settingsJSON, err := os.ReadFile(ws.Path("config.json"))
	require.NoError(t, err)
	require.Contains(t, string(settingsJSON), `"seed": 7`)

	csv, err := os.ReadFile(ws.Path("results.csv"))
	require.NoError(t, err)
	require.Equal(t, "id,image_path,score,prompt,clip_score,lpips_score,run_id\n1,img.png,0.9,a cat,1.0,0.0,run_1\n", string(csv))
}

func TestGenerateReport_BadBody(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{name: "array", body: `[1, 2]`},
		{name: "null", body: `null`},
		{name: "not json", body: `settings`},
		{name: "empty", body: ``},
		{name: "trailing data", body: `{} xyz`},
		{name: "two objects", body: `{"a": 1} {"b": 2}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a, _, _ := setupApp(t, testutil.DefaultCSV)
			rec := httptest.NewRecorder()

			a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/generate_report", strings.NewReader(tc.body)))

			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.NotEmpty(t, decodeDetail(t, rec.Body))
		})
	}
}

func TestGenerateReport_PipelineError(t *testing.T) {
	a, ws, _ := setupApp(t, "id,image_path\n1,img.png\n")
	rec := httptest.NewRecorder()

	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/generate_report", strings.NewReader(`{}`)))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Contains(t, decodeDetail(t, rec.Body), "CSV missing required columns: score")
	_, err := os.Stat(ws.Path("report.zip"))
	require.True(t, os.IsNotExist(err))
}

func TestReports(t *testing.T) {
	a, _, _ := setupApp(t, testutil.DefaultCSV)
	h := a.Handler()
	for _, body := range []string{`{}`, `{"run_1": {}}`} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/generate_report", strings.NewReader(body)))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports?limit=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var reports []history.Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&reports))
	require.Len(t, reports, 1)
	require.Equal(t, history.StatusSucceeded, reports[0].Status)
	require.Len(t, reports[0].Scores, 1)
	require.Equal(t, "run_1", reports[0].Scores[0].RunID)
}

func TestReports_BadLimit(t *testing.T) {
	a, _, _ := setupApp(t, testutil.DefaultCSV)
	rec := httptest.NewRecorder()

	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports?limit=abc", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORS_Preflight(t *testing.T) {
	a, _, _ := setupApp(t, testutil.DefaultCSV)
	req := httptest.NewRequest(http.MethodOptions, "/generate_report", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rec := httptest.NewRecorder()

	a.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	require.Equal(t, "content-type", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	handler := corsMiddleware([]string{"http://app.example"}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServeListener_GracefulShutdown(t *testing.T) {
	a, _, logs := setupApp(t, testutil.DefaultCSV)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- a.ServeListener(ctx, lis) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + lis.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
	require.Contains(t, logs.String(), "Report server shut down gracefully.")
}
