package tui

import (
	"fmt"
	"strings"

	"github.com/ppiankov/aorta/internal/models"
)

// headerHeight is the number of terminal lines the header occupies.
const headerHeight = 4

// renderHeader shows which collection is browsed and how much of it is shown.
func renderHeader(t models.ResourceType, total, shown int, search string, width int) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("AORTA  %s", styleLabel.Render(strings.ToUpper(t.Dir()))))
	b.WriteString("\n")

	b.WriteString(fmt.Sprintf("Entries: %d  Shown: %d", total, shown))
	if search != "" {
		b.WriteString(fmt.Sprintf("  Search: %q", search))
	}

	return styleHeader.Width(width).Render(b.String())
}
