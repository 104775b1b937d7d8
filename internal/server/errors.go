package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/manash/chronosnap/internal/booth"
	"github.com/manash/chronosnap/internal/capture"
	"github.com/manash/chronosnap/internal/image"
	"github.com/manash/chronosnap/pkg/models"
)

var errNoResult = errors.New("no result to download")

// apiError is the body of every non-2xx response.
type apiError struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorCode(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, apiError{Error: code, Detail: detail})
}

// writeError maps a domain error onto a status code and error code.
func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	detail := err.Error()

	var opErr *booth.OperationError
	if errors.As(err, &opErr) {
		detail = opErr.Message()
	}
	writeErrorCode(w, status, code, detail)
}

func classify(err error) (int, string) {
	var opErr *booth.OperationError
	switch {
	case errors.Is(err, booth.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, booth.ErrClosed):
		return http.StatusNotFound, "session_closed"
	case errors.Is(err, booth.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, booth.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, booth.ErrSuperseded):
		return http.StatusConflict, "superseded"
	case errors.Is(err, capture.ErrNotStreaming), errors.Is(err, capture.ErrStreamStopped):
		return http.StatusConflict, "not_streaming"
	case errors.Is(err, errNoResult):
		return http.StatusConflict, "no_result"
	case errors.Is(err, booth.ErrUnknownEra):
		return http.StatusBadRequest, "unknown_era"
	case errors.Is(err, booth.ErrEmptyInstruction):
		return http.StatusBadRequest, "empty_instruction"
	case errors.Is(err, capture.ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge, "upload_too_large"
	case errors.Is(err, capture.ErrUnsupportedImage),
		errors.Is(err, image.ErrInvalidDataURL),
		errors.Is(err, models.ErrEmptyImage),
		errors.Is(err, models.ErrUnsupportedMimeType):
		return http.StatusBadRequest, "invalid_image"
	case errors.As(err, &opErr):
		return http.StatusBadGateway, string(opErr.Op) + "_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// isIntentError reports whether err rejected the intent itself, as opposed
// to a remote failure that the session already recorded.
func isIntentError(err error) bool {
	return errors.Is(err, booth.ErrInvalidTransition) ||
		errors.Is(err, booth.ErrUnknownEra) ||
		errors.Is(err, booth.ErrBusy) ||
		errors.Is(err, booth.ErrClosed) ||
		errors.Is(err, booth.ErrSuperseded)
}
