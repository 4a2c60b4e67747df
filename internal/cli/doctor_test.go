package cli

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/aorta/internal/config"
)

func TestSummarize(t *testing.T) {
	tests := []struct {
		name   string
		checks []doctorCheck
		want   string
	}{
		{"all ok", []doctorCheck{{Status: "ok"}, {Status: "ok"}}, "all checks passed"},
		{"warnings", []doctorCheck{{Status: "ok"}, {Status: "warn"}}, "ok with 1 warning(s)"},
		{"failures win", []doctorCheck{{Status: "warn"}, {Status: "fail"}, {Status: "fail"}}, "2 issue(s) found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := summarize(tt.checks).Summary; got != tt.want {
				t.Errorf("summary = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCheckEngine(t *testing.T) {
	c := config.DefaultConfig()
	withTestConfig(t, c)

	found := func(string) (string, error) { return "/usr/bin/testaro", nil }
	missing := func(string) (string, error) { return "", errors.New("not found") }

	if got := checkEngine(found); got.Status != "ok" || got.Detail != "/usr/bin/testaro" {
		t.Errorf("found engine: %+v", got)
	}
	if got := checkEngine(missing); got.Status != "warn" {
		t.Errorf("missing engine: %+v", got)
	}
	c.Engine = ""
	if got := checkEngine(found); got.Status != "warn" {
		t.Errorf("unconfigured engine: %+v", got)
	}
}

func TestCheckCredentials(t *testing.T) {
	tests := []struct {
		name   string
		user   string
		code   string
		sess   string
		status string
	}{
		{"user and code", "alice", "x", "", "ok"},
		{"user only", "alice", "", "", "ok"},
		{"session", "", "", "abc", "ok"},
		{"nothing", "", "", "", "warn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := config.DefaultConfig()
			c.User, c.AuthCode, c.Session = tt.user, tt.code, tt.sess
			withTestConfig(t, c)
			if got := checkCredentials(); got.Status != tt.status {
				t.Errorf("status = %q, want %q", got.Status, tt.status)
			}
		})
	}
}

func TestCheckStorage(t *testing.T) {
	c := config.DefaultConfig()
	withTestConfig(t, c)

	dir := t.TempDir()
	c.DataDir = dir
	if got := checkStorage(); got.Status != "ok" || got.Detail != dir {
		t.Errorf("writable dir: %+v", got)
	}

	c.DataDir = filepath.Join(dir, "later")
	if got := checkStorage(); got.Status != "ok" || !strings.Contains(got.Detail, "will be created") {
		t.Errorf("missing dir: %+v", got)
	}

	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	c.DataDir = file
	if got := checkStorage(); got.Status != "fail" {
		t.Errorf("file as data dir: %+v", got)
	}
}

func TestCheckServer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer ts.Close()

	c := config.DefaultConfig()
	c.Server = ts.URL
	withTestConfig(t, c)

	if got := checkServer(t.Context()); got.Status != "ok" {
		t.Errorf("reachable server: %+v", got)
	}

	ts.Close()
	if got := checkServer(t.Context()); got.Status != "fail" {
		t.Errorf("closed server: %+v", got)
	}
}

func TestCheckMailAndSessions(t *testing.T) {
	c := config.DefaultConfig()
	withTestConfig(t, c)

	if got := checkMail(); got.Status != "warn" {
		t.Errorf("unconfigured mail: %+v", got)
	}
	c.SMTPHost, c.SMTPFrom = "mail.example.org", "aorta@example.org"
	if got := checkMail(); got.Status != "ok" || got.Detail != "mail.example.org:587" {
		t.Errorf("configured mail: %+v", got)
	}

	if got := checkSessions(t.Context()); got.Status != "ok" || got.Detail != "file" {
		t.Errorf("file sessions: %+v", got)
	}
}

func TestWriteDoctorText(t *testing.T) {
	out := captureStdout(t, func() {
		_ = writeDoctorText(summarize([]doctorCheck{
			{Name: "config", Status: "ok", Detail: "aorta.yaml"},
			{Name: "mail", Status: "warn"},
		}))
	})
	if !strings.Contains(out, "✓ config") || !strings.Contains(out, "△ mail") {
		t.Errorf("unexpected output %q", out)
	}
	if !strings.Contains(out, "ok with 1 warning(s)") {
		t.Errorf("summary missing from %q", out)
	}
}
