package api

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every JSON error. Error is the short text
// the dashboard shows; Message carries detail when there is any.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Machine-readable values of ErrorResponse.Code.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeTooLarge       = "payload_too_large"
	ErrCodeNotFound       = "not_found"
	ErrCodeForbidden      = "forbidden"
	ErrCodeMethodNotAllow = "method_not_allowed"
	ErrCodeInternal       = "internal_error"
	ErrCodeProxy          = "proxy_error"
	ErrCodeProxyTimeout   = "proxy_timeout"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v) //nolint:errcheck // client may be gone
}

func writeError(w http.ResponseWriter, status int, code, short, message string) {
	writeJSON(w, status, ErrorResponse{Error: short, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, short, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, short, message)
}

func writeNotFound(w http.ResponseWriter, short, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, short, message)
}

// writeInternalError hides the cause; handlers log it first.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, "internal server error", message)
}
