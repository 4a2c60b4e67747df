package tui

import (
	"sort"
	"strings"

	"github.com/ppiankov/aorta/internal/models"
)

// filterState holds current active filters.
type filterState struct {
	SearchText string
}

// sortField enumerates the orders entries can be listed in.
type sortField int

const (
	sortByID sortField = iota
	sortByIDDesc
	sortByDescription
)

// sortFieldCount is the total number of sort orders.
const sortFieldCount = 3

// applyFilters returns entries matching the search text in id or
// description, case-insensitively.
func applyFilters(entries []models.Entry, f filterState) []models.Entry {
	result := make([]models.Entry, 0, len(entries))
	searchLower := strings.ToLower(f.SearchText)

	for _, e := range entries {
		if searchLower != "" &&
			!strings.Contains(strings.ToLower(e.ID), searchLower) &&
			!strings.Contains(strings.ToLower(e.Description), searchLower) {
			continue
		}
		result = append(result, e)
	}
	return result
}

// sortEntries sorts entries in place by the given field.
func sortEntries(entries []models.Entry, field sortField) {
	sort.SliceStable(entries, func(i, j int) bool {
		switch field {
		case sortByID:
			return entries[i].ID < entries[j].ID
		case sortByIDDesc:
			return entries[i].ID > entries[j].ID
		case sortByDescription:
			return strings.ToLower(entries[i].Description) < strings.ToLower(entries[j].Description)
		default:
			return false
		}
	})
}

// sortFieldName returns a human-readable name for the sort field.
func sortFieldName(f sortField) string {
	switch f {
	case sortByID:
		return "id"
	case sortByIDDesc:
		return "id (reverse)"
	case sortByDescription:
		return "description"
	default:
		return "unknown"
	}
}
