// Package runner hands assigned jobs to the test-execution engine.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/ppiankov/aorta/internal/models"
)

// DefaultTimeout is the per-job execution timeout.
const DefaultTimeout = 15 * time.Minute

// ErrNoEngine is returned when no engine binary is configured.
var ErrNoEngine = errors.New("no test engine configured")

// ExecFunc runs a command and returns its combined output.
type ExecFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Exec runs a real process.
func Exec(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Config describes the engine invocation. The job file path is appended
// to Args.
type Config struct {
	Binary  string
	Args    []string
	Timeout time.Duration
}

// Result is the outcome of one job run.
type Result struct {
	JobID    string            `json:"jobId"`
	Duration time.Duration     `json:"duration"`
	Log      []json.RawMessage `json:"log"`
	Reports  []json.RawMessage `json:"reports"`
	Output   string            `json:"output,omitempty"`
}

// Runner executes jobs one at a time in a private temp directory.
type Runner struct {
	execFn  ExecFunc
	tempDir string
}

// New creates a Runner with the given exec function.
// The temp directory is created lazily on first Run call.
func New(execFn ExecFunc) *Runner {
	if execFn == nil {
		execFn = Exec
	}
	return &Runner{execFn: execFn}
}

// Run writes job to a file, runs the engine on it and reads back the log
// and reports the engine appended.
func (r *Runner) Run(ctx context.Context, job models.Job, cfg Config) (*Result, error) {
	if cfg.Binary == "" {
		return nil, ErrNoEngine
	}
	if r.tempDir == "" {
		dir, err := os.MkdirTemp("", "aorta-run-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp directory: %w", err)
		}
		r.tempDir = dir
	}

	jobFile := filepath.Join(r.tempDir, job.ID+".json")
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	if err := os.WriteFile(jobFile, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write job file: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, cfg.Args...), jobFile)

	start := time.Now()
	output, err := r.execFn(runCtx, cfg.Binary, args...)
	duration := time.Since(start)
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("engine timed out after %s", timeout)
		}
		return nil, fmt.Errorf("engine failed on job %s: %w", job.ID, err)
	}

	done, err := os.ReadFile(jobFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}
	var out struct {
		Log     []json.RawMessage `json:"log"`
		Reports []json.RawMessage `json:"reports"`
	}
	if err := json.Unmarshal(done, &out); err != nil {
		return nil, fmt.Errorf("engine left an unreadable job file: %w", err)
	}

	return &Result{
		JobID:    job.ID,
		Duration: duration,
		Log:      out.Log,
		Reports:  out.Reports,
		Output:   string(output),
	}, nil
}

// Cleanup removes the temp directory and all job files.
func (r *Runner) Cleanup() error {
	if r.tempDir == "" {
		return nil
	}
	return os.RemoveAll(r.tempDir)
}
