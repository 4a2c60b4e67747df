package digest

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ppiankov/aorta/internal/models"
)

// Digester extracts display values from a decoded report into values,
// keyed by the placeholders of the template named after its script.
type Digester func(report map[string]any, values map[string]string) error

// Registry holds digesters by script name.
type Registry struct {
	mu        sync.RWMutex
	digesters map[string]Digester
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{digesters: make(map[string]Digester)}
}

// DefaultRegistry returns a registry with the built-in digesters.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("asp09", ASP09)
	return r
}

// Register adds or replaces the digester for a script name.
func (r *Registry) Register(scriptName string, d Digester) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.digesters[scriptName] = d
}

// Lookup returns the digester for a script name.
func (r *Registry) Lookup(scriptName string) (Digester, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.digesters[scriptName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownDigester, scriptName)
	}
	return d, nil
}

// Names returns the registered script names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.digesters))
	for name := range r.digesters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

//go:embed templates/*.html
var embedded embed.FS

// ErrNoTemplate is returned when no template exists for a script.
var ErrNoTemplate = errors.New("no digest template")

// TemplateSource loads the HTML template of a script.
type TemplateSource interface {
	Template(scriptName string) (string, error)
}

// FileTemplates reads <dir>/<script>.html, falling back to the templates
// compiled into the binary.
type FileTemplates struct {
	dir string
}

// NewFileTemplates creates a template source. An empty dir uses only the
// built-in templates.
func NewFileTemplates(dir string) *FileTemplates {
	return &FileTemplates{dir: dir}
}

// Template implements TemplateSource.
func (s *FileTemplates) Template(scriptName string) (string, error) {
	name := scriptName + ".html"

	if s.dir != "" {
		data, err := os.ReadFile(filepath.Join(s.dir, filepath.Base(name)))
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("failed to read template %s: %w", name, err)
		}
	}

	data, err := embedded.ReadFile("templates/" + filepath.Base(name))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNoTemplate, scriptName)
	}
	return string(data), nil
}
