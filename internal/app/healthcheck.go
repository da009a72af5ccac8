package app

import (
	"fmt"
	"net/http"

	"github.com/vk/reportbundle/internal/ctxlog"
)

// healthHandler answers liveness probes.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(r.Context())
	logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}
