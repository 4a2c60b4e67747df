package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/ppiankov/aorta/internal/apiclient"
)

// stdinIsTerminal reports whether the user can be prompted.
var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// readSecret prompts for a secret without echo.
var readSecret = func(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read authorization code: %w", err)
	}
	return strings.TrimSpace(string(secret)), nil
}

// authCode returns the configured authorization code, prompting for it
// on a terminal when none is configured.
func authCode() (string, error) {
	if cfg.AuthCode != "" {
		return cfg.AuthCode, nil
	}
	if !stdinIsTerminal() {
		return "", &ValidationError{Message: "no authorization code: set auth_code or AORTA_AUTH_CODE"}
	}
	return readSecret(fmt.Sprintf("Authorization code for %s: ", cfg.User))
}

// newClient builds an API client from config. Explicit credentials win
// over a stored session.
func newClient() (*apiclient.Client, error) {
	switch {
	case cfg.User != "":
		code, err := authCode()
		if err != nil {
			return nil, err
		}
		logDebug("authenticating as %s against %s", cfg.User, cfg.Server)
		return apiclient.New(cfg.Server, apiclient.WithCredentials(cfg.User, code)), nil
	case cfg.Session != "":
		logDebug("using stored session against %s", cfg.Server)
		return apiclient.New(cfg.Server, apiclient.WithSession(cfg.Session)), nil
	}
	return nil, &ValidationError{Message: "not logged in: run 'aorta login --user <name>' or pass --user"}
}

// readInput reads a resource body from path, or from stdin when path is
// empty or "-".
func readInput(path string) ([]byte, error) {
	var r io.Reader = os.Stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	data, err := io.ReadAll(bufio.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, &ValidationError{Message: "input is empty"}
	}
	return data, nil
}

// stdoutIsTerminal reports whether a full-screen UI can be shown.
var stdoutIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
