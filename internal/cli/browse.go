package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/aorta/internal/models"
	"github.com/ppiankov/aorta/internal/reporter"
	"github.com/ppiankov/aorta/internal/tui"
)

var browseCmd = &cobra.Command{
	Use:   "browse <type>",
	Short: "Browse resources of a type interactively",
	Long: `Browse opens a terminal table of a collection with search (/), sort (s),
content preview (enter) and reload (r). Without a terminal it prints the listing.`,
	Args: cobra.ExactArgs(1),
	RunE: runBrowse,
}

func runBrowse(cmd *cobra.Command, args []string) error {
	t, err := parseTypeArg(args[0])
	if err != nil {
		return err
	}
	client, err := newClient()
	if err != nil {
		return err
	}

	entries, err := client.List(cmd.Context(), t)
	if err != nil {
		return err
	}

	if !stdoutIsTerminal() {
		return reporter.NewTextReporter(os.Stdout).Entries(t, entries)
	}

	load := func(id string) ([]byte, error) {
		return client.Read(cmd.Context(), t, id)
	}
	list := func() ([]models.Entry, error) {
		return client.List(cmd.Context(), t)
	}
	if err := tui.Run(t, entries, load, list); err != nil {
		return fmt.Errorf("browser failed: %w", err)
	}
	return nil
}
