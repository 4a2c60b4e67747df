package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/ppiankov/aorta/internal/apiclient"
	"github.com/ppiankov/aorta/internal/config"
	"github.com/ppiankov/aorta/internal/models"
)

// --- Test helpers ---

// captureStdout runs fn and returns whatever it printed to os.Stdout.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	os.Stdout = w

	done := make(chan []byte)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		done <- buf.Bytes()
	}()

	fn()

	_ = w.Close()
	os.Stdout = old
	return string(<-done)
}

// withTestConfig sets the global cfg for the duration of the test.
func withTestConfig(t *testing.T, c *config.Config) {
	t.Helper()
	old := cfg
	cfg = c
	t.Cleanup(func() { cfg = old })
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// --- HandleError tests ---

func TestHandleError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"validation", &ValidationError{Message: "bad input"}, ExitInvalidInput},
		{"wrapped validation", fmt.Errorf("create: %w", &ValidationError{Message: "x"}), ExitInvalidInput},
		{"api bad request", &apiclient.Error{Status: http.StatusBadRequest, Message: "bad"}, ExitInvalidInput},
		{"api forbidden", &apiclient.Error{Status: http.StatusForbidden, Message: "no"}, ExitFailure},
		{"api not found", &apiclient.Error{Status: http.StatusNotFound, Message: "gone"}, ExitFailure},
		{"model validation", fmt.Errorf("x: %w", models.ErrInvalidID), ExitInvalidInput},
		{"other", errors.New("boom"), ExitFailure},
		{"not exist", os.ErrNotExist, ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HandleError(tt.err); got != tt.want {
				t.Errorf("HandleError(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Message: "bad input"}
	if err.Error() != "bad input" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestNewLoggerLevels(t *testing.T) {
	c := config.DefaultConfig()
	c.LogLevel = "error"
	c.Verbose = true
	withTestConfig(t, c)

	logger, err := newLogger()
	if err != nil {
		t.Fatal(err)
	}
	if !logger.Handler().Enabled(t.Context(), slog.LevelInfo) {
		t.Error("verbose should enable info")
	}

	c.Debug = true
	logger, err = newLogger()
	if err != nil {
		t.Fatal(err)
	}
	if !logger.Handler().Enabled(t.Context(), slog.LevelDebug) {
		t.Error("debug should enable debug")
	}
}

func TestLogVerboseOnlyWhenEnabled(t *testing.T) {
	c := config.DefaultConfig()
	withTestConfig(t, c)

	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w
	logVerbose("hidden")
	c.Verbose = true
	logVerbose("shown")
	_ = w.Close()
	os.Stderr = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	if bytes.Contains(buf.Bytes(), []byte("hidden")) || !bytes.Contains(buf.Bytes(), []byte("[INFO] shown")) {
		t.Errorf("unexpected stderr %q", buf.String())
	}
}
