package runner

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/aorta/internal/models"
)

func testJob() models.Job {
	return models.NewJob(models.Order{ID: "abc", ScriptName: "s1"}, "dana", "bob", time.Unix(0, 0))
}

// engineExec simulates an engine that appends a log entry and a report to
// the job file it is given.
func engineExec(t *testing.T) ExecFunc {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		path := args[len(args)-1]
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var job map[string]any
		if err := json.Unmarshal(data, &job); err != nil {
			t.Errorf("engine got invalid job: %v", err)
			return nil, err
		}
		job["log"] = []any{map[string]any{"event": "start"}}
		job["reports"] = []any{map[string]any{"id": "rpt1", "tester": job["tester"]}}
		out, _ := json.Marshal(job)
		return []byte("ok"), os.WriteFile(path, out, 0o600)
	}
}

func TestRun_Success(t *testing.T) {
	var gotArgs []string
	exec := engineExec(t)
	r := New(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = args
		return exec(ctx, name, args...)
	})
	defer func() { _ = r.Cleanup() }()

	res, err := r.Run(context.Background(), testJob(), Config{Binary: "engine", Args: []string{"--quiet"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Log) != 1 || len(res.Reports) != 1 {
		t.Fatalf("expected 1 log entry and 1 report, got %d and %d", len(res.Log), len(res.Reports))
	}
	if !strings.Contains(string(res.Reports[0]), `"tester":"bob"`) {
		t.Errorf("unexpected report: %s", res.Reports[0])
	}
	if res.Output != "ok" {
		t.Errorf("output = %q", res.Output)
	}
	if len(gotArgs) != 2 || gotArgs[0] != "--quiet" || !strings.HasSuffix(gotArgs[1], "abc.json") {
		t.Errorf("unexpected args: %v", gotArgs)
	}
}

func TestRun_NoEngine(t *testing.T) {
	r := New(nil)
	if _, err := r.Run(context.Background(), testJob(), Config{}); !errors.Is(err, ErrNoEngine) {
		t.Errorf("expected ErrNoEngine, got %v", err)
	}
}

func TestRun_EngineError(t *testing.T) {
	r := New(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("exit status 1")
	})
	defer func() { _ = r.Cleanup() }()

	_, err := r.Run(context.Background(), testJob(), Config{Binary: "engine"})
	if err == nil || !strings.Contains(err.Error(), "exit status 1") {
		t.Errorf("expected engine error, got %v", err)
	}
}

func TestRun_Timeout(t *testing.T) {
	r := New(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	defer func() { _ = r.Cleanup() }()

	_, err := r.Run(context.Background(), testJob(), Config{Binary: "engine", Timeout: 10 * time.Millisecond})
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("expected timeout error, got %v", err)
	}
}

func TestRun_UnreadableJobFile(t *testing.T) {
	r := New(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, os.WriteFile(args[len(args)-1], []byte("not json"), 0o600)
	})
	defer func() { _ = r.Cleanup() }()

	if _, err := r.Run(context.Background(), testJob(), Config{Binary: "engine"}); err == nil {
		t.Error("expected error for unreadable job file")
	}
}

func TestCleanup(t *testing.T) {
	r := New(engineExec(t))
	if _, err := r.Run(context.Background(), testJob(), Config{Binary: "engine"}); err != nil {
		t.Fatal(err)
	}
	dir := r.tempDir
	if err := r.Cleanup(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("temp dir should be removed, stat err = %v", err)
	}
}
