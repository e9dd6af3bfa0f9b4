package handler

import (
	"net/http"

	"drivestore/internal/httputil"
)

// HealthCheck reports that the process is serving
// GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
