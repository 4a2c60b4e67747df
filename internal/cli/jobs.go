package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/aorta/internal/models"
	"github.com/ppiankov/aorta/internal/reporter"
	"github.com/ppiankov/aorta/internal/runner"
)

var (
	assignTester  string
	jobsFormat    string
	completeFile  string
	runNoComplete bool
	runOutFile    string
	runEngineArgs []string
)

var assignCmd = &cobra.Command{
	Use:   "assign <order>",
	Short: "Assign an order to a tester, turning it into a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runAssign,
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List the jobs assigned to you",
	Args:  cobra.NoArgs,
	RunE:  runJobs,
}

var completeCmd = &cobra.Command{
	Use:   "complete <job>",
	Short: "Submit the reports of a job",
	Long: `Complete submits one report or a JSON array of reports for a job
assigned to you. Every report must name you as its tester. The job is
removed once the reports are stored.`,
	Args: cobra.ExactArgs(1),
	RunE: runComplete,
}

var runCmd = &cobra.Command{
	Use:   "run <job>",
	Short: "Run a job with the test engine and submit its reports",
	Long: `Run fetches one of your jobs, hands it to the test engine (config key
engine) and submits the reports the engine produced.

Use --no-complete to keep the job open and write the engine's output to
a file instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	assignCmd.Flags().StringVarP(&assignTester, "tester", "t", "", "user who will run the job (required)")
	_ = assignCmd.MarkFlagRequired("tester")
	jobsCmd.Flags().StringVar(&jobsFormat, "format", "text", "output format: text or json")
	completeCmd.Flags().StringVarP(&completeFile, "file", "f", "-", "report file (- for stdin)")
	runCmd.Flags().BoolVar(&runNoComplete, "no-complete", false, "do not submit the reports")
	runCmd.Flags().StringVarP(&runOutFile, "out", "o", "", "write the engine result to this file")
	runCmd.Flags().StringSliceVar(&runEngineArgs, "engine-arg", nil, "extra argument for the engine (repeatable)")
}

func runAssign(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	job, err := client.Assign(cmd.Context(), args[0], assignTester)
	if err != nil {
		return err
	}
	fmt.Printf("Assigned order %s (%s) to %s\n", job.ID, job.ScriptName, job.Tester)
	return nil
}

func runJobs(cmd *cobra.Command, args []string) error {
	rep, err := reporter.New(jobsFormat, os.Stdout)
	if err != nil {
		return &ValidationError{Message: err.Error()}
	}
	client, err := newClient()
	if err != nil {
		return err
	}
	jobs, err := client.MyJobs(cmd.Context())
	if err != nil {
		return err
	}
	return rep.Jobs(jobs)
}

func runComplete(cmd *cobra.Command, args []string) error {
	data, err := readInput(completeFile)
	if err != nil {
		return err
	}
	reports, err := splitReports(data)
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	ids, err := client.Complete(cmd.Context(), args[0], reports)
	if err != nil {
		return err
	}
	printCompleted(args[0], ids)
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	jobs, err := client.MyJobs(cmd.Context())
	if err != nil {
		return err
	}
	job, ok := findJob(jobs, args[0])
	if !ok {
		return &ValidationError{Message: fmt.Sprintf("job %s is not assigned to you", args[0])}
	}

	r := runner.New(runner.Exec)
	defer func() { _ = r.Cleanup() }()

	logVerbose("running job %s with %s (timeout %s)", job.ID, cfg.Engine, cfg.EngineTimeout)
	res, err := r.Run(cmd.Context(), job, runner.Config{
		Binary:  cfg.Engine,
		Args:    runEngineArgs,
		Timeout: cfg.EngineTimeout,
	})
	if err != nil {
		return err
	}
	logVerbose("engine finished in %s: %d log entries, %d reports", res.Duration, len(res.Log), len(res.Reports))
	logDebug("engine output:\n%s", res.Output)

	if runOutFile != "" {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		if err := writeOutput(runOutFile, data); err != nil {
			return err
		}
	}

	if runNoComplete {
		return nil
	}
	if len(res.Reports) == 0 {
		return fmt.Errorf("engine produced no reports for job %s", job.ID)
	}

	ids, err := client.Complete(cmd.Context(), job.ID, res.Reports)
	if err != nil {
		return err
	}
	printCompleted(job.ID, ids)
	return nil
}

// splitReports accepts a single report object or an array of them.
func splitReports(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var reports []json.RawMessage
		if err := json.Unmarshal(trimmed, &reports); err != nil {
			return nil, &ValidationError{Message: fmt.Sprintf("invalid report array: %v", err)}
		}
		if len(reports) == 0 {
			return nil, &ValidationError{Message: "no reports given"}
		}
		return reports, nil
	}
	if !json.Valid(trimmed) {
		return nil, &ValidationError{Message: "report is not valid JSON"}
	}
	return []json.RawMessage{json.RawMessage(trimmed)}, nil
}

func findJob(jobs []models.Job, id string) (models.Job, bool) {
	for _, j := range jobs {
		if j.ID == id {
			return j, true
		}
	}
	return models.Job{}, false
}

func printCompleted(jobID string, ids []string) {
	fmt.Printf("Completed job %s with %d report(s):\n", jobID, len(ids))
	for _, id := range ids {
		fmt.Printf("  %s\n", id)
	}
}
