package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/aorta/internal/apiclient"
	"github.com/ppiankov/aorta/internal/session"
)

const doctorTimeout = 5 * time.Second

var doctorFormat string

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check environment readiness and diagnose common problems",
	Long: `Doctor validates your AORTA setup:

  1. Config file - found and readable?
  2. Server - reachable?
  3. Credentials - user and code or a stored session?
  4. Test engine - installed?
  5. Storage - data directory writable? (server hosts)
  6. Sessions - backend reachable? (server hosts)
  7. Mail - relay configured? (server hosts)`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().StringVar(&doctorFormat, "format", "text",
		"output format: text or json")
}

type doctorCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "ok", "warn", "fail"
	Detail string `json:"detail,omitempty"`
}

type doctorResult struct {
	Checks  []doctorCheck `json:"checks"`
	Summary string        `json:"summary"`
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	checks := []doctorCheck{
		checkConfig(),
		checkServer(ctx),
		checkCredentials(),
		checkEngine(exec.LookPath),
		checkStorage(),
		checkSessions(ctx),
		checkMail(),
	}

	result := summarize(checks)

	if doctorFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	return writeDoctorText(result)
}

func summarize(checks []doctorCheck) doctorResult {
	fails, warns := 0, 0
	for _, c := range checks {
		switch c.Status {
		case "fail":
			fails++
		case "warn":
			warns++
		}
	}

	summary := "all checks passed"
	if fails > 0 {
		summary = fmt.Sprintf("%d issue(s) found", fails)
	} else if warns > 0 {
		summary = fmt.Sprintf("ok with %d warning(s)", warns)
	}
	return doctorResult{Checks: checks, Summary: summary}
}

func writeDoctorText(result doctorResult) error {
	icons := map[string]string{
		"ok":   "✓",
		"warn": "△",
		"fail": "✗",
	}

	for _, c := range result.Checks {
		icon := icons[c.Status]
		if c.Detail != "" {
			fmt.Printf("  %s %-12s %s\n", icon, c.Name, c.Detail)
		} else {
			fmt.Printf("  %s %s\n", icon, c.Name)
		}
	}

	fmt.Printf("\n%s\n", result.Summary)
	return nil
}

func checkConfig() doctorCheck {
	path := sessionConfigPath()
	if _, err := os.Stat(path); err != nil {
		return doctorCheck{
			Name:   "config",
			Status: "warn",
			Detail: "no config file found (using defaults). See: aorta config sample",
		}
	}
	return doctorCheck{Name: "config", Status: "ok", Detail: path}
}

func checkServer(ctx context.Context) doctorCheck {
	ctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()

	if err := apiclient.New(cfg.Server).Health(ctx); err != nil {
		return doctorCheck{
			Name:   "server",
			Status: "fail",
			Detail: fmt.Sprintf("%s unreachable (%v)", cfg.Server, err),
		}
	}
	return doctorCheck{Name: "server", Status: "ok", Detail: cfg.Server}
}

func checkCredentials() doctorCheck {
	switch {
	case cfg.User != "" && cfg.AuthCode != "":
		return doctorCheck{Name: "credentials", Status: "ok", Detail: "user " + cfg.User}
	case cfg.User != "":
		return doctorCheck{Name: "credentials", Status: "ok", Detail: "user " + cfg.User + " (code will be prompted)"}
	case cfg.Session != "":
		return doctorCheck{Name: "credentials", Status: "ok", Detail: "stored session"}
	}
	return doctorCheck{
		Name:   "credentials",
		Status: "warn",
		Detail: "none. Run: aorta login --user <name>",
	}
}

func checkEngine(lookPath func(string) (string, error)) doctorCheck {
	if cfg.Engine == "" {
		return doctorCheck{Name: "engine", Status: "warn", Detail: "not configured ('aorta run' unavailable)"}
	}
	path, err := lookPath(cfg.Engine)
	if err != nil {
		return doctorCheck{
			Name:   "engine",
			Status: "warn",
			Detail: fmt.Sprintf("%s not found on PATH ('aorta run' unavailable)", cfg.Engine),
		}
	}
	return doctorCheck{Name: "engine", Status: "ok", Detail: path}
}

func checkStorage() doctorCheck {
	storagePath, err := cfg.GetStoragePath()
	if err != nil {
		return doctorCheck{Name: "storage", Status: "fail", Detail: err.Error()}
	}

	info, err := os.Stat(storagePath)
	if err != nil {
		return doctorCheck{
			Name:   "storage",
			Status: "ok",
			Detail: fmt.Sprintf("%s (will be created by serve)", storagePath),
		}
	}
	if !info.IsDir() {
		return doctorCheck{
			Name:   "storage",
			Status: "fail",
			Detail: fmt.Sprintf("%s exists but is not a directory", storagePath),
		}
	}

	tmpFile := filepath.Join(storagePath, ".doctor-check")
	if err := os.WriteFile(tmpFile, []byte("ok"), 0o600); err != nil {
		return doctorCheck{
			Name:   "storage",
			Status: "fail",
			Detail: fmt.Sprintf("%s not writable: %v", storagePath, err),
		}
	}
	_ = os.Remove(tmpFile)

	return doctorCheck{Name: "storage", Status: "ok", Detail: storagePath}
}

func checkSessions(ctx context.Context) doctorCheck {
	if cfg.SessionBackend != "redis" {
		return doctorCheck{Name: "sessions", Status: "ok", Detail: "file"}
	}

	client, err := session.NewRedisClient(ctx, session.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return doctorCheck{Name: "sessions", Status: "fail", Detail: err.Error()}
	}
	_ = client.Close()
	return doctorCheck{Name: "sessions", Status: "ok", Detail: "redis at " + cfg.RedisAddr}
}

func checkMail() doctorCheck {
	if cfg.SMTPHost == "" || cfg.SMTPFrom == "" {
		return doctorCheck{
			Name:   "mail",
			Status: "warn",
			Detail: "smtp_host or smtp_from not set (notifications are only logged)",
		}
	}
	return doctorCheck{Name: "mail", Status: "ok", Detail: fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort)}
}
