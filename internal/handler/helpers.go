package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"drivestore/internal/domain"
	"drivestore/internal/httputil"
)

// publicMessages replace error text that may carry adapter detail
var publicMessages = map[string]string{
	domain.KindStorageUnavailable: "storage is temporarily unavailable, please retry",
	domain.KindInternal:           "internal server error",
}

// errorResponder converts domain errors to RFC 7807 responses
type errorResponder struct {
	debug  bool
	logger *slog.Logger
}

// handleError writes the problem document for err. Every response carries
// the stable error kind; internal detail is only shown in debug mode.
func (e *errorResponder) handleError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.Kind(err)
	status := domain.StatusCode(err)

	detail := err.Error()
	if msg, hidden := publicMessages[kind]; hidden && !e.debug {
		detail = msg
	}

	extras := map[string]interface{}{"kind": kind}

	var conflictErr *domain.ConflictError
	if errors.As(err, &conflictErr) && conflictErr.ResourceID != "" {
		extras["resource_id"] = conflictErr.ResourceID
		extras["resource_type"] = conflictErr.ResourceType
	}

	var quotaErr *domain.QuotaError
	if errors.As(err, &quotaErr) {
		extras["requested_bytes"] = quotaErr.Requested
		extras["used_bytes"] = quotaErr.Used
		extras["limit_bytes"] = quotaErr.Limit
	}

	if status >= http.StatusInternalServerError {
		e.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"kind", kind,
			"error", err,
		)
	} else {
		e.logger.Debug("request rejected",
			"method", r.Method,
			"path", r.URL.Path,
			"kind", kind,
			"error", err,
		)
	}

	httputil.RespondErrorWithExtras(w, status, detail, extras)
}

// badRequest reports malformed input that never reached the service
func (e *errorResponder) badRequest(w http.ResponseWriter, detail string) {
	httputil.RespondErrorWithExtras(w, http.StatusBadRequest, detail, map[string]interface{}{
		"kind": domain.KindValidation,
	})
}

// requireOwner extracts the authenticated owner, writing a 401 when absent
func (e *errorResponder) requireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	ownerID := httputil.GetOwnerID(r)
	if ownerID == "" {
		httputil.RespondErrorWithExtras(w, http.StatusUnauthorized, "authentication required", map[string]interface{}{
			"kind": domain.KindUnauthorized,
		})
		return "", false
	}
	return ownerID, true
}
