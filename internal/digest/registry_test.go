package digest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/aorta/internal/models"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup("asp09")
	require.ErrorIs(t, err, models.ErrUnknownDigester)

	called := false
	r.Register("custom", func(report map[string]any, values map[string]string) error {
		called = true
		return nil
	})

	d, err := r.Lookup("custom")
	require.NoError(t, err)
	require.NoError(t, d(nil, nil))
	assert.True(t, called)
	assert.Equal(t, []string{"custom"}, r.Names())
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Contains(t, r.Names(), "asp09")
}

func TestFileTemplatesEmbedded(t *testing.T) {
	src := NewFileTemplates("")
	tpl, err := src.Template("asp09")
	require.NoError(t, err)
	assert.Contains(t, tpl, "__reportID__")

	_, err = src.Template("nope")
	assert.True(t, errors.Is(err, ErrNoTemplate))
}

func TestFileTemplatesOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "asp09.html"), []byte("<p>__reportID__</p>"), 0o600))

	tpl, err := NewFileTemplates(dir).Template("asp09")
	require.NoError(t, err)
	assert.Equal(t, "<p>__reportID__</p>", tpl)

	// Scripts absent from the directory fall back to the built-in copy.
	other := t.TempDir()
	tpl, err = NewFileTemplates(other).Template("asp09")
	require.NoError(t, err)
	assert.Contains(t, tpl, "__deficitRows__")
}
