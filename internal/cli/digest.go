package cli

import (
	"github.com/spf13/cobra"
)

var digestOutFile string

var digestCmd = &cobra.Command{
	Use:   "digest <report>[-<host>]",
	Short: "Render the digest of a report",
	Long: `Digest asks the server to render a report for people and prints the
HTML. A suffix after a dash selects the host report whose id ends with it.

Examples:
  aorta digest 1a2b3c -o digest.html
  aorta digest 1a2b3c-w3c`,
	Args: cobra.ExactArgs(1),
	RunE: runDigest,
}

func init() {
	digestCmd.Flags().StringVarP(&digestOutFile, "out", "o", "", "write HTML to file instead of stdout")
}

func runDigest(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	html, err := client.Digest(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return writeOutput(digestOutFile, html)
}
