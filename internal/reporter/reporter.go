// Package reporter renders resource listings for the terminal.
package reporter

import (
	"fmt"
	"io"

	"github.com/ppiankov/aorta/internal/models"
)

// Reporter renders listings.
type Reporter interface {
	Entries(t models.ResourceType, entries []models.Entry) error
	Jobs(jobs []models.Job) error
}

// New returns the reporter for format ("text" or "json").
func New(format string, w io.Writer) (Reporter, error) {
	switch format {
	case "", "text":
		return NewTextReporter(w), nil
	case "json":
		return NewJSONReporter(w, true), nil
	}
	return nil, fmt.Errorf("unknown format %q (want text or json)", format)
}
