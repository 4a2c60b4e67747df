package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/aorta/internal/models"
	"github.com/ppiankov/aorta/internal/reporter"
)

var (
	listFormat  string
	inputFile   string
	showOutFile string
)

var listCmd = &cobra.Command{
	Use:   "list <type>",
	Short: "List resources of a type",
	Long: `List prints the id and description of every resource of a type:
scripts, batches, orders, jobs, reports, digests or users.`,
	Args: cobra.ExactArgs(1),
	RunE: runList,
}

var showCmd = &cobra.Command{
	Use:   "show <type> <id>",
	Short: "Print the stored content of a resource",
	Args:  cobra.ExactArgs(2),
	RunE:  runShow,
}

var createCmd = &cobra.Command{
	Use:   "create <type> [id]",
	Short: "Create a resource from a JSON file or stdin",
	Long: `Create submits a JSON body. Orders take no id; the server assigns one.
Reports and users carry their id in the body.

Examples:
  aorta create script home -f home.json
  aorta create order -f order.json
  aorta create report < report.json`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCreate,
}

var replaceCmd = &cobra.Command{
	Use:   "replace <user|report> <id>",
	Short: "Replace a user or report",
	Args:  cobra.ExactArgs(2),
	RunE:  runReplace,
}

var removeCmd = &cobra.Command{
	Use:   "remove <type> <id>",
	Short: "Remove a resource",
	Args:  cobra.ExactArgs(2),
	RunE:  runRemove,
}

func init() {
	listCmd.Flags().StringVar(&listFormat, "format", "text", "output format: text or json")
	showCmd.Flags().StringVarP(&showOutFile, "out", "o", "", "write to file instead of stdout")
	createCmd.Flags().StringVarP(&inputFile, "file", "f", "-", "JSON body file (- for stdin)")
	replaceCmd.Flags().StringVarP(&inputFile, "file", "f", "-", "JSON body file (- for stdin)")
}

// parseTypeArg resolves a type argument ("script" or "scripts").
func parseTypeArg(arg string) (models.ResourceType, error) {
	t, err := models.ParseResourceType(arg)
	if err != nil {
		return "", &ValidationError{Message: fmt.Sprintf("unknown resource type %q", arg)}
	}
	return t, nil
}

func runList(cmd *cobra.Command, args []string) error {
	t, err := parseTypeArg(args[0])
	if err != nil {
		return err
	}
	rep, err := reporter.New(listFormat, os.Stdout)
	if err != nil {
		return &ValidationError{Message: err.Error()}
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	entries, err := client.List(cmd.Context(), t)
	if err != nil {
		return err
	}
	return rep.Entries(t, entries)
}

func runShow(cmd *cobra.Command, args []string) error {
	t, err := parseTypeArg(args[0])
	if err != nil {
		return err
	}
	client, err := newClient()
	if err != nil {
		return err
	}

	data, err := client.Read(cmd.Context(), t, args[1])
	if err != nil {
		return err
	}
	return writeOutput(showOutFile, data)
}

func runCreate(cmd *cobra.Command, args []string) error {
	t, err := parseTypeArg(args[0])
	if err != nil {
		return err
	}
	if t == models.TypeJob {
		return &ValidationError{Message: "jobs are created with 'aorta assign'"}
	}
	if t == models.TypeDigest {
		return &ValidationError{Message: "digests are created with 'aorta digest'"}
	}
	id := ""
	if len(args) == 2 {
		id = args[1]
	}

	body, err := readInput(inputFile)
	if err != nil {
		return err
	}
	client, err := newClient()
	if err != nil {
		return err
	}

	created, err := client.Create(cmd.Context(), t, id, body)
	if err != nil {
		return err
	}
	fmt.Printf("Created %s %s\n", t, created)
	return nil
}

func runReplace(cmd *cobra.Command, args []string) error {
	t, err := parseTypeArg(args[0])
	if err != nil {
		return err
	}
	if t != models.TypeUser && t != models.TypeReport {
		return &ValidationError{Message: "only users and reports can be replaced"}
	}

	body, err := readInput(inputFile)
	if err != nil {
		return err
	}
	client, err := newClient()
	if err != nil {
		return err
	}

	if err := client.Replace(cmd.Context(), t, args[1], body); err != nil {
		return err
	}
	fmt.Printf("Replaced %s %s\n", t, args[1])
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	t, err := parseTypeArg(args[0])
	if err != nil {
		return err
	}
	client, err := newClient()
	if err != nil {
		return err
	}

	if err := client.Remove(cmd.Context(), t, args[1]); err != nil {
		return err
	}
	fmt.Printf("Removed %s %s\n", t, args[1])
	return nil
}

// writeOutput writes data to path, or to stdout when path is empty.
func writeOutput(path string, data []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(data)
		if err == nil && len(data) > 0 && data[len(data)-1] != '\n' {
			_, err = fmt.Println()
		}
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	logVerbose("wrote %s", path)
	return nil
}
