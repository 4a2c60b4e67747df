package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/aorta/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configSampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Print a commented sample config file",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(config.GenerateSampleConfig())
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file login writes to",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(sessionConfigPath())
	},
}

func init() {
	configCmd.AddCommand(configSampleCmd)
	configCmd.AddCommand(configPathCmd)
}
