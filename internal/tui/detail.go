package tui

import (
	"fmt"
	"strings"

	"github.com/ppiankov/aorta/internal/models"
)

// detailHeight is the fixed number of lines for the detail panel.
const detailHeight = 8

// detailContentLines bounds how much of a loaded resource is shown.
const detailContentLines = 5

// renderDetail produces the detail view for a selected entry and, when it
// was loaded, the start of its stored content.
func renderDetail(entry *models.Entry, content string, width int) string {
	if entry == nil {
		return styleDetailPanel.Width(width).Render("Nothing selected")
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s  %s\n", styleLabel.Render(entry.ID), entry.Description))

	if content == "" {
		b.WriteString(styleMuted.Render("enter to show content"))
		return styleDetailPanel.Width(width).Render(b.String())
	}

	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) > detailContentLines {
		lines = append(lines[:detailContentLines], fmt.Sprintf("... %d more lines", len(lines)-detailContentLines))
	}
	b.WriteString(strings.Join(lines, "\n"))

	return styleDetailPanel.Width(width).Render(b.String())
}
