package reporter

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/ppiankov/aorta/internal/models"
)

// TextReporter renders aligned tables.
type TextReporter struct {
	writer io.Writer
}

// NewTextReporter creates a new text reporter
func NewTextReporter(writer io.Writer) *TextReporter {
	return &TextReporter{writer: writer}
}

// Entries prints one row per resource.
func (r *TextReporter) Entries(t models.ResourceType, entries []models.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintf(r.writer, "No %s.\n", t.Dir())
		return err
	}

	tw := tabwriter.NewWriter(r.writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDESCRIPTION")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\n", e.ID, e.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(r.writer, "\n%d %s\n", len(entries), plural(len(entries), string(t), t.Dir()))
	return err
}

// Jobs prints the jobs assigned to a tester.
func (r *TextReporter) Jobs(jobs []models.Job) error {
	if len(jobs) == 0 {
		_, err := fmt.Fprintln(r.writer, "No jobs assigned.")
		return err
	}

	tw := tabwriter.NewWriter(r.writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSCRIPT\tBATCH\tCREATOR\tASSIGNED")
	for _, j := range jobs {
		batch := j.BatchName
		if batch == "" {
			batch = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", j.ID, j.ScriptName, batch, j.Creator, formatTimestamp(j.AssignedTime))
	}
	return tw.Flush()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
