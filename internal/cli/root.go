package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/aorta/internal/apiclient"
	"github.com/ppiankov/aorta/internal/config"
	"github.com/ppiankov/aorta/internal/logging"
	"github.com/ppiankov/aorta/internal/models"
)

const (
	ExitOK           = 0 // Success
	ExitFailure      = 1 // Runtime, server or authorization failure
	ExitInvalidInput = 2 // Bad arguments or rejected input
)

// Version is set at build time.
var Version = "0.1.0"

var (
	// Global config instance
	cfg *config.Config

	// Global flags
	configFile string
	verbose    bool
	debug      bool
	serverURL  string
	userName   string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "aorta",
	Short: "AORTA - accessibility testing workflow server and client",
	Long: `AORTA runs the workflow of accessibility testing: scripts and batches
describe what to test, orders request a run, jobs assign it to a tester,
reports hold the results and digests render them for people.

Server:
  aorta users import users.yaml
  aorta serve

Client:
  aorta login --user alice
  aorta create order -f order.json
  aorta assign <order> --tester bob
  aorta jobs
  aorta run <job>
  aorta digest <report>`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return &ValidationError{Message: fmt.Sprintf("failed to load config: %v", err)}
		}

		if verbose {
			cfg.Verbose = true
		}
		if debug {
			cfg.Debug = true
		}
		if serverURL != "" {
			cfg.Server = serverURL
		}
		if userName != "" {
			cfg.User = userName
		}

		return nil
	},
}

// Execute runs the root command and exits with its status.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		logError("%v", err)
	}
	os.Exit(HandleError(err))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (default: ./aorta.yaml or ~/aorta.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"debug mode (very verbose)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "",
		"server URL (default from config)")
	rootCmd.PersistentFlags().StringVarP(&userName, "user", "u", "",
		"username (default from config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(replaceCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(assignCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(digestCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(browseCmd)
	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(authnRequestCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
}

// versionCmd shows version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("AORTA v%s\n", Version)
		fmt.Println("Accessibility testing workflow")
	},
}

// HandleError determines the appropriate exit code for an error
func HandleError(err error) int {
	if err == nil {
		return ExitOK
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return ExitInvalidInput
	}

	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
			return ExitInvalidInput
		}
		return ExitFailure
	}

	if models.Classify(err) == models.CategoryValidation {
		return ExitInvalidInput
	}
	return ExitFailure
}

// ValidationError represents bad command-line input
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// newLogger builds the process logger from config and flags.
func newLogger() (*slog.Logger, error) {
	level := cfg.LogLevel
	switch {
	case cfg.Debug:
		level = "debug"
	case cfg.Verbose && level != "debug":
		level = "info"
	}
	return logging.New(level, cfg.LogFormat, os.Stderr)
}

// logVerbose prints a message if verbose mode is enabled
func logVerbose(format string, args ...interface{}) {
	if cfg != nil && cfg.Verbose {
		fmt.Fprintf(os.Stderr, "[INFO] "+format+"\n", args...)
	}
}

// logDebug prints a message if debug mode is enabled
func logDebug(format string, args ...interface{}) {
	if cfg != nil && cfg.Debug {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// logError prints an error message
func logError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "[ERROR] "+format+"\n", args...)
}
