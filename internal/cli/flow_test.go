package cli

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/aorta/internal/access"
	"github.com/ppiankov/aorta/internal/api"
	"github.com/ppiankov/aorta/internal/credentials"
	"github.com/ppiankov/aorta/internal/lifecycle"
	"github.com/ppiankov/aorta/internal/models"
	"github.com/ppiankov/aorta/internal/session"
	"github.com/ppiankov/aorta/internal/storage"
)

// resetFlags restores every command flag variable to its default so one
// invocation does not leak into the next.
func resetFlags() {
	configFile, serverURL, userName = "", "", ""
	verbose, debug = false, false
	listFormat, jobsFormat, usersFormat, doctorFormat = "text", "text", "text", "text"
	inputFile, completeFile = "-", "-"
	showOutFile, digestOutFile, runOutFile = "", "", ""
	assignTester = ""
	usersOverwrite, runNoComplete = false, false
	runEngineArgs = nil
	authnIn, authnOut, authnSSO = "data/saml/authnRequest.xml", "", ""
}

// runCLI executes the root command with args and returns its stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	withTestConfig(t, cfg)
	resetFlags()
	t.Cleanup(resetFlags)

	rootCmd.SetArgs(args)
	var err error
	out := captureStdout(t, func() {
		err = rootCmd.ExecuteContext(t.Context())
	})
	return out, err
}

// startServer seeds users into a temp store and serves the API.
func startServer(t *testing.T) (*httptest.Server, *storage.LocalStorage) {
	t.Helper()

	dir := t.TempDir()
	st := storage.NewLocal(dir)
	if err := st.EnsureDirectoryExists(); err != nil {
		t.Fatal(err)
	}
	for _, u := range []models.User{
		{ID: "alice", AuthCode: "a-code", Roles: []models.Role{models.RoleOrder}},
		{ID: "bob", AuthCode: "b-code", Roles: []models.Role{models.RoleTest, models.RoleRead}},
		{ID: "dana", AuthCode: "d-code", Roles: []models.Role{models.RoleAssign}},
	} {
		data, err := json.Marshal(u)
		if err != nil {
			t.Fatal(err)
		}
		if err := st.Create(models.TypeUser, u.ID, data); err != nil {
			t.Fatal(err)
		}
	}

	srv := api.NewServer(access.NewGate(credentials.New(st)), lifecycle.New(st), api.Options{
		Sessions:   session.NewFileStore(filepath.Join(dir, "sessions"), time.Hour),
		RateLimit:  1000,
		RateWindow: time.Minute,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, st
}

// userConfig writes a client config file for one user.
func userConfig(t *testing.T, server, user, code string) string {
	t.Helper()
	content := fmt.Sprintf("server: %s\nuser: %s\nauth_code: %s\ndata_dir: %s\n",
		server, user, code, t.TempDir())
	return writeFile(t, t.TempDir(), user+".yaml", content)
}

func TestWorkflowThroughCLI(t *testing.T) {
	ts, st := startServer(t)
	alice := userConfig(t, ts.URL, "alice", "a-code")
	dana := userConfig(t, ts.URL, "dana", "d-code")
	bob := userConfig(t, ts.URL, "bob", "b-code")
	input := t.TempDir()

	script := writeFile(t, input, "script.json", `{"what":"home page"}`)
	out, err := runCLI(t, "--config", alice, "create", "script", "s1", "-f", script)
	if err != nil {
		t.Fatalf("create script: %v", err)
	}
	if !strings.Contains(out, "Created script s1") {
		t.Errorf("unexpected output %q", out)
	}

	order := writeFile(t, input, "order.json", `{"scriptName":"s1"}`)
	out, err = runCLI(t, "--config", alice, "create", "order", "-f", order)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	fields := strings.Fields(out)
	if len(fields) != 3 {
		t.Fatalf("unexpected output %q", out)
	}
	orderID := fields[2]

	out, err = runCLI(t, "--config", dana, "assign", orderID, "--tester", "bob")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if !strings.Contains(out, "to bob") {
		t.Errorf("unexpected output %q", out)
	}

	out, err = runCLI(t, "--config", bob, "jobs", "--format", "json")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	var jobs []models.Job
	if err := json.Unmarshal([]byte(out), &jobs); err != nil {
		t.Fatalf("decode jobs %q: %v", out, err)
	}
	if len(jobs) != 1 || jobs[0].ID != orderID {
		t.Fatalf("unexpected jobs %+v", jobs)
	}

	reports := writeFile(t, input, "reports.json", `[{"id":"rpt1","tester":"bob","scriptName":"missing"}]`)
	out, err = runCLI(t, "--config", bob, "complete", orderID, "-f", reports)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !strings.Contains(out, "rpt1") {
		t.Errorf("unexpected output %q", out)
	}
	if exists, _ := st.Exists(models.TypeJob, orderID); exists {
		t.Error("completed job still stored")
	}

	out, err = runCLI(t, "--config", bob, "list", "reports")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "rpt1") {
		t.Errorf("report missing from listing %q", out)
	}

	_, err = runCLI(t, "--config", bob, "digest", "rpt1")
	if err == nil {
		t.Fatal("digest of a report without a digester should fail")
	}
	if code := HandleError(err); code != ExitFailure {
		t.Errorf("exit code = %d, want %d", code, ExitFailure)
	}

	_, err = runCLI(t, "--config", alice, "list", "reports")
	if code := HandleError(err); code != ExitFailure {
		t.Errorf("missing role exit code = %d, want %d", code, ExitFailure)
	}
}

func TestCLIInputErrors(t *testing.T) {
	ts, _ := startServer(t)
	alice := userConfig(t, ts.URL, "alice", "a-code")

	tests := []struct {
		name string
		args []string
	}{
		{"unknown type", []string{"list", "widgets"}},
		{"create job", []string{"create", "job", "x", "-f", "unused.json"}},
		{"replace script", []string{"replace", "script", "s1", "-f", "unused.json"}},
		{"bad format", []string{"list", "scripts", "--format", "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, append([]string{"--config", alice}, tt.args...)...)
			if code := HandleError(err); code != ExitInvalidInput {
				t.Errorf("exit code = %d (%v), want %d", code, err, ExitInvalidInput)
			}
		})
	}
}

func TestCLIRejectedBody(t *testing.T) {
	ts, _ := startServer(t)
	alice := userConfig(t, ts.URL, "alice", "a-code")
	body := writeFile(t, t.TempDir(), "script.json", `{"what":"x"}`)

	_, err := runCLI(t, "--config", alice, "create", "script", "Bad-Id", "-f", body)
	if code := HandleError(err); code != ExitInvalidInput {
		t.Errorf("exit code = %d (%v), want %d", code, err, ExitInvalidInput)
	}
}

func TestLoginLogout(t *testing.T) {
	ts, _ := startServer(t)
	alice := userConfig(t, ts.URL, "alice", "a-code")

	out, err := runCLI(t, "--config", alice, "login")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(out, "Logged in as alice") {
		t.Errorf("unexpected output %q", out)
	}
	data, err := os.ReadFile(alice)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "session:") {
		t.Fatalf("session not stored in %q", data)
	}

	out, err = runCLI(t, "--config", alice, "logout")
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	if !strings.Contains(out, "Logged out.") {
		t.Errorf("unexpected output %q", out)
	}
	data, err = os.ReadFile(alice)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "session:") {
		t.Errorf("session still stored in %q", data)
	}
	if !strings.Contains(string(data), "user: alice") {
		t.Errorf("other settings lost: %q", data)
	}
}

func TestUsersImportCommand(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	conf := writeFile(t, dir, "aorta.yaml", "data_dir: "+dataDir+"\n")
	seedFile := writeFile(t, dir, "users.yaml", `version: 1
users:
  - id: root
    auth_code: secret
    roles: [manage]
  - id: Bad
    auth_code: x
    roles: [read]
`)

	out, err := runCLI(t, "--config", conf, "users", "import", seedFile)
	if code := HandleError(err); code != ExitInvalidInput {
		t.Fatalf("exit code = %d (%v), want %d", code, err, ExitInvalidInput)
	}
	if !strings.Contains(out, "1 created") || !strings.Contains(out, "1 failed") {
		t.Errorf("unexpected output %q", out)
	}

	exists, err := storage.NewLocal(dataDir).Exists(models.TypeUser, "root")
	if err != nil || !exists {
		t.Errorf("root not stored (exists=%v, err=%v)", exists, err)
	}
}

func TestAuthnRequestCommand(t *testing.T) {
	dir := t.TempDir()
	conf := writeFile(t, dir, "aorta.yaml", "data_dir: "+dir+"\n")
	in := writeFile(t, dir, "authn.xml", `<samlp:AuthnRequest ID="x"/>`)

	out, err := runCLI(t, "--config", conf, "authn-request", "--in", in, "--sso", "https://idp.example.org/sso")
	if err != nil {
		t.Fatalf("authn-request: %v", err)
	}
	if !strings.HasPrefix(out, "https://idp.example.org/sso?SAMLRequest=") {
		t.Errorf("unexpected output %q", out)
	}

	_, err = runCLI(t, "--config", conf, "authn-request", "--in", filepath.Join(dir, "missing.xml"))
	if code := HandleError(err); code != ExitInvalidInput {
		t.Errorf("exit code = %d, want %d", code, ExitInvalidInput)
	}
}

func TestVersionCommand(t *testing.T) {
	conf := writeFile(t, t.TempDir(), "aorta.yaml", "data_dir: data\n")
	out, err := runCLI(t, "--config", conf, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "AORTA v"+Version) {
		t.Errorf("unexpected output %q", out)
	}
}
