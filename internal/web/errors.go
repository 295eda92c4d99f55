package web

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/quizdesk/internal/core"
	"github.com/JonMunkholm/quizdesk/internal/logging"
)

var (
	errRateLimited = errors.New("rate limit exceeded")
	errNoFile      = errors.New("no file provided")
	errBadBody     = errors.New("request body is not a valid corrections map")
	errNoDigests   = errors.New("notifications are disabled")
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// writeError logs err with the request ID and writes its user message.
func writeError(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := core.MapError(err)

	log := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= http.StatusInternalServerError {
		log.Error("request error", attrs...)
	} else {
		log.Warn("request rejected", attrs...)
	}

	writeJSON(w, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// respondError writes err with the status its kind implies.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, err, statusFor(err))
}

func statusFor(err error) int {
	var (
		ferr *core.FormatError
		eerr *core.EncodingError
		mbe  *http.MaxBytesError
	)
	switch {
	case errors.Is(err, core.ErrFileTooLarge), errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrTooManyUploads), errors.Is(err, errNoDigests):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrBatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrUnsupportedUpload):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &ferr), errors.As(err, &eerr),
		errors.Is(err, core.ErrUnknownRow), errors.Is(err, core.ErrUnknownField),
		errors.Is(err, errNoFile), errors.Is(err, errBadBody):
		return http.StatusBadRequest
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
