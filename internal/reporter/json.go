package reporter

import (
	"encoding/json"
	"io"

	"github.com/ppiankov/aorta/internal/models"
)

// JSONReporter generates machine-readable JSON listings
type JSONReporter struct {
	writer io.Writer
	pretty bool
}

// NewJSONReporter creates a new JSON reporter
func NewJSONReporter(writer io.Writer, pretty bool) *JSONReporter {
	return &JSONReporter{
		writer: writer,
		pretty: pretty,
	}
}

// Entries writes the listing as a JSON array.
func (r *JSONReporter) Entries(_ models.ResourceType, entries []models.Entry) error {
	if entries == nil {
		entries = []models.Entry{}
	}
	return r.write(entries)
}

// Jobs writes the jobs as a JSON array.
func (r *JSONReporter) Jobs(jobs []models.Job) error {
	if jobs == nil {
		jobs = []models.Job{}
	}
	return r.write(jobs)
}

func (r *JSONReporter) write(v any) error {
	var data []byte
	var err error

	if r.pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}

	if _, err := r.writer.Write(data); err != nil {
		return err
	}
	_, err = r.writer.Write([]byte("\n"))
	return err
}
