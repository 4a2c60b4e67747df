package api

import (
	_ "embed"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ppiankov/aorta/internal/access"
	"github.com/ppiankov/aorta/internal/digest"
	"github.com/ppiankov/aorta/internal/models"
	"github.com/ppiankov/aorta/internal/session"
)

//go:embed templates/error.html
var errorPage string

const (
	msgSessionExpired = "Your session has expired. Please log in again."
	msgTooLarge       = "The submitted data is too large."
	msgNotReplaceable = "Only users and reports can be replaced."
	msgUnsupported    = "That operation is not supported."
	msgTooMany        = "Too many requests. Please wait and try again."
)

// errNotReplaceable is returned for PUT on types without replacement.
var errNotReplaceable = errors.New("replacement not supported")

// errRateLimited is returned when a client exceeds its request budget.
var errRateLimited = errors.New("rate limited")

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, session.ErrNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, errNotReplaceable), errors.Is(err, access.ErrUnknownOperation):
		return http.StatusMethodNotAllowed
	case errors.Is(err, models.ErrMissingRole):
		return http.StatusForbidden
	case errors.Is(err, models.ErrDuplicateID):
		return http.StatusConflict
	case errors.Is(err, models.ErrNotFound),
		errors.Is(err, models.ErrUnknownOrder),
		errors.Is(err, models.ErrUnknownResourceType):
		return http.StatusNotFound
	case errors.Is(err, models.ErrUnknownTester),
		errors.Is(err, models.ErrTesterLacksRole),
		errors.Is(err, models.ErrUnknownDigester):
		return http.StatusUnprocessableEntity
	}

	switch models.Classify(err) {
	case models.CategoryAuth:
		return http.StatusUnauthorized
	case models.CategoryValidation:
		return http.StatusBadRequest
	case models.CategoryReference:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// messageFor returns the user-visible message of err.
func messageFor(err error) string {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return msgTooLarge
	case errors.Is(err, errRateLimited):
		return msgTooMany
	case errors.Is(err, session.ErrNotFound):
		return msgSessionExpired
	case errors.Is(err, errNotReplaceable):
		return msgNotReplaceable
	case errors.Is(err, access.ErrUnknownOperation):
		return msgUnsupported
	}
	return access.Message(err)
}

// writeError reports err to the caller. Infrastructure errors are logged
// in full and reported generically. Browsers get an HTML page; machine
// clients get JSON without markup.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := statusFor(err)
	msg := messageFor(err)

	var detail string
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
		if c := models.Classify(err); c == models.CategoryValidation || c == models.CategoryReference {
			detail = err.Error()
		}
	}

	if wantsHTML(r) {
		page, renderErr := digest.Render(errorPage, map[string]string{
			"title":   digest.EscapeHTML(http.StatusText(status)),
			"message": digest.EscapeHTML(msg),
		})
		if renderErr == nil {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(page))
			return
		}
		logger.Error("failed to render error page", "error", renderErr)
	}

	writeJSON(w, status, errorBody{Error: stripMarkup(msg), Detail: stripMarkup(detail)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
