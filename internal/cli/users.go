package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/aorta/internal/seed"
	"github.com/ppiankov/aorta/internal/storage"
)

var (
	usersOverwrite bool
	usersFormat    string
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage user accounts directly in the local store",
}

var usersImportCmd = &cobra.Command{
	Use:   "import <seed.yaml>",
	Short: "Import users from a YAML seed file",
	Long: `Import writes the users of a seed file straight into the data directory
of this host, without going through the server. Use it to create the
first manage-role user.

Existing users are kept unless --overwrite is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runUsersImport,
}

var usersSampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Print a sample seed file",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(seed.Sample())
	},
}

func init() {
	usersImportCmd.Flags().BoolVar(&usersOverwrite, "overwrite", false, "replace users that already exist")
	usersImportCmd.Flags().StringVar(&usersFormat, "format", "text", "output format: text or json")
	usersCmd.AddCommand(usersImportCmd)
	usersCmd.AddCommand(usersSampleCmd)
}

func runUsersImport(cmd *cobra.Command, args []string) error {
	f, err := seed.LoadFromFile(args[0])
	if err != nil {
		return &ValidationError{Message: err.Error()}
	}

	dataDir, err := cfg.GetStoragePath()
	if err != nil {
		return err
	}
	st := storage.NewLocal(dataDir)
	if err := st.EnsureDirectoryExists(); err != nil {
		return err
	}

	res, err := seed.Import(st, f, usersOverwrite)
	if err != nil {
		return err
	}

	if usersFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		writeImportText(res)
	}

	if !res.OK() {
		return &ValidationError{Message: fmt.Sprintf("%d user(s) could not be imported", len(res.Failed))}
	}
	return nil
}

func writeImportText(res *seed.Result) {
	for _, id := range res.Created {
		fmt.Printf("  ✓ %-20s created\n", id)
	}
	for _, id := range res.Replaced {
		fmt.Printf("  ✓ %-20s replaced\n", id)
	}
	for _, id := range res.Skipped {
		fmt.Printf("  △ %-20s exists, skipped\n", id)
	}
	for _, f := range res.Failed {
		fmt.Printf("  ✗ %-20s %s\n", f.ID, f.Reason)
	}
	fmt.Printf("\n%d created, %d replaced, %d skipped, %d failed\n",
		len(res.Created), len(res.Replaced), len(res.Skipped), len(res.Failed))
}
