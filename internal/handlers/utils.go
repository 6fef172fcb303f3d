package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/usercore/apiserver/internal/apperr"
	"go.uber.org/zap"
)

type contextKey string

const (
	contextUserKey      contextKey = "user"
	contextRequestIDKey contextKey = "request_id"
)

// Envelope is the shape of every response body.
type Envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Data    any                 `json:"data,omitempty"`
	Errors  []apperr.FieldError `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Envelope{Success: false, Message: message})
}

// responder renders service results and logs the failures clients never see.
type responder struct {
	log *zap.Logger
}

func newResponder(log *zap.Logger) responder {
	if log == nil {
		log = zap.NewNop()
	}
	return responder{log: log}
}

func (rs responder) ok(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Envelope{Success: true, Message: message, Data: data})
}

// fail renders err. Errors outside the apperr taxonomy are treated as
// internal.
func (rs responder) fail(w http.ResponseWriter, r *http.Request, err error) {
	ae, ok := apperr.As(err)
	if !ok {
		ae = apperr.Internal(err)
	}
	if ae.Code == apperr.CodeInternal {
		rs.log.Error("request failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(ae.Unwrap()),
		)
	}
	writeJSON(w, ae.Status(), Envelope{Success: false, Message: ae.Message, Errors: ae.Fields})
}

// NotFound renders the envelope for unknown routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Route not found")
}

// MethodNotAllowed renders the envelope for a known route hit with the wrong
// method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}
