package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strings"

	"github.com/ppiankov/aorta/internal/models"
)

// Form fields accepted in place of the credential headers, as sent by the
// browser forms.
const (
	formUserName = "userName"
	formAuthCode = "authCode"
	formData     = "data"
)

var markupPattern = regexp.MustCompile(`<[^>]*>`)

// parseType resolves the {type} URL segment ("scripts" or "script").
func parseType(segment string) (models.ResourceType, error) {
	return models.ParseResourceType(strings.TrimSpace(segment))
}

// isForm reports whether the request body is a URL-encoded form.
func isForm(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/x-www-form-urlencoded"
}

// readBody returns the resource body of a request: the raw body, or the
// "data" field of a form post.
func readBody(r *http.Request) ([]byte, error) {
	if isForm(r) {
		if err := r.ParseForm(); err != nil {
			return nil, bodyError(err)
		}
		return []byte(r.PostForm.Get(formData)), nil
	}

	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, bodyError(err)
	}
	return data, nil
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	data, err := readBody(r)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return fmt.Errorf("%w: body is empty", models.ErrMalformedBody)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", models.ErrMalformedBody, err)
	}
	return nil
}

func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrMalformedBody, err)
}

// wantsHTML reports whether the caller is a browser.
func wantsHTML(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mediaType == "text/html" {
			return true
		}
	}
	return false
}

// stripMarkup removes tags from a message meant for machine clients.
func stripMarkup(s string) string {
	return strings.TrimSpace(markupPattern.ReplaceAllString(s, ""))
}
