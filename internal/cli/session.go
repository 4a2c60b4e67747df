package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/aorta/internal/apiclient"
	"github.com/ppiankov/aorta/internal/config"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Open a session and store it in your config file",
	Long: `Login authenticates with your username and authorization code and
stores the session id in your config file, so later commands need
neither.

Example:
  aorta login --user alice --server https://aorta.example.org`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Close the stored session",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

// sessionConfigPath is where login stores the session.
func sessionConfigPath() string {
	if configFile != "" {
		return configFile
	}
	return config.ConfigPath()
}

func runLogin(cmd *cobra.Command, args []string) error {
	if cfg.User == "" {
		return &ValidationError{Message: "login needs --user"}
	}
	code, err := authCode()
	if err != nil {
		return err
	}

	client := apiclient.New(cfg.Server, apiclient.WithCredentials(cfg.User, code))
	sess, err := client.Login(cmd.Context())
	if err != nil {
		return err
	}

	path := sessionConfigPath()
	if err := config.WriteSession(sess.ID, cfg.Server, path); err != nil {
		return err
	}
	fmt.Printf("Logged in as %s until %s\n", sess.Identity, sess.ExpiresAt.Local().Format("2006-01-02 15:04"))
	logVerbose("session stored in %s", path)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	if cfg.Session == "" {
		fmt.Println("Not logged in.")
		return nil
	}

	client := apiclient.New(cfg.Server, apiclient.WithSession(cfg.Session))
	if err := client.Logout(cmd.Context()); err != nil {
		logError("server did not close the session: %v", err)
	}

	if err := config.WriteSession("", "", sessionConfigPath()); err != nil {
		return err
	}
	fmt.Println("Logged out.")
	return nil
}
