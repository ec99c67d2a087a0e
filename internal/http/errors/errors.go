package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/pewcal/pewcal/internal/gcal"
	"github.com/pewcal/pewcal/internal/logger"
)

var log = logger.NewNopLogger()

// SetLogger replaces the logger used by the helpers. Call once at startup.
func SetLogger(l logger.Logger) {
	if l != nil {
		log = l
	}
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// Status writes {"error": message}.
func Status(w http.ResponseWriter, r *http.Request, status int, message string) {
	if status >= http.StatusInternalServerError {
		log.Warn(message, "request_id", middleware.GetReqID(r.Context()), "status", status)
	}
	JSON(w, status, map[string]string{"error": message})
}

// InternalError logs err and returns message with a 500. message must be safe
// to show to the client.
func InternalError(w http.ResponseWriter, r *http.Request, err error, message string) {
	log.Error(message, err, "request_id", middleware.GetReqID(r.Context()), "path", r.URL.Path)
	JSON(w, http.StatusInternalServerError, map[string]string{"error": message})
}

func BadRequest(w http.ResponseWriter, r *http.Request, err error, clientMessage string) {
	if err != nil {
		log.Debug("bad request", "request_id", middleware.GetReqID(r.Context()), "error", err.Error())
	}
	JSON(w, http.StatusBadRequest, map[string]string{"error": clientMessage})
}

// Upstream maps Google Calendar failures to client statuses. Anything that is
// not a known sentinel becomes a 500 carrying fallback.
func Upstream(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case stderrors.Is(err, gcal.ErrUnauthorized):
		JSON(w, http.StatusUnauthorized, map[string]string{"error": "Authentication failed. Please sign in again."})
	case stderrors.Is(err, gcal.ErrForbidden):
		JSON(w, http.StatusForbidden, map[string]string{"error": "Access denied. You may not have permission to view this calendar."})
	case stderrors.Is(err, gcal.ErrNotFound):
		JSON(w, http.StatusNotFound, map[string]string{"error": "Calendar not found. Please select a different calendar."})
	default:
		InternalError(w, r, err, fallback)
	}
}
