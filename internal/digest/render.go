// Package digest turns reports into human-readable HTML summaries.
package digest

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ppiankov/aorta/internal/models"
)

var placeholderPattern = regexp.MustCompile(`__([a-zA-Z]+)__`)

// Render replaces every __name__ placeholder in template with values[name].
// A placeholder without a value fails with ErrMissingPlaceholderValue.
func Render(template string, values map[string]string) (string, error) {
	missing := map[string]bool{}

	out := placeholderPattern.ReplaceAllStringFunc(template, func(ph string) string {
		name := ph[2 : len(ph)-2]
		value, ok := values[name]
		if !ok {
			missing[name] = true
			return ph
		}
		return value
	})

	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for name := range missing {
			names = append(names, name)
		}
		sort.Strings(names)
		return "", fmt.Errorf("%w: %s", models.ErrMissingPlaceholderValue, strings.Join(names, ", "))
	}

	return out, nil
}

// Placeholders returns the distinct placeholder names in template, in
// order of first appearance.
func Placeholders(template string) []string {
	var names []string
	seen := map[string]bool{}
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// EscapeHTML makes text safe for element content, escaping & and <.
func EscapeHTML(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;").Replace(s)
}
