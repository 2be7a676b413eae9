package cli

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/persist/internal/harness"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
	Trace  bool   // print executed statements

	// IDGenerator overrides the run ID generator (for testing).
	IDGenerator harness.IDGenerator
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	RunID  string   `json:"run_id,omitempty"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// RunResult holds the overall run result.
type RunResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenarios>",
		Short: "Run persistence scenarios",
		Long: `Run scenario files (.yaml, .yml or .cue) against fresh in-memory databases.

Each scenario's trace of hooks and statements is compared with
golden/<file>.golden next to the scenario when that file exists.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  persist run ./scenarios
  persist run ./scenarios --filter "player-*"
  persist run ./scenarios --update
  persist run ./scenarios/upsert.cue --driver sqlite --trace`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "print executed statements")

	return cmd
}

func runScenarios(opts *RunOptions, path string, cmd *cobra.Command) error {
	files, err := findScenarioFiles(path, opts.Filter)
	if err != nil {
		return err
	}

	result := RunResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	if len(files) == 0 {
		if opts.Format == "json" {
			return outputRunJSON(opts, cmd, result)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	for _, file := range files {
		sr := runScenario(opts, file, cmd)
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Format == "json" {
		return outputRunJSON(opts, cmd, result)
	}
	return outputRunText(cmd, result)
}

// findScenarioFiles returns path itself when it is a file, or every
// scenario file below it whose base name matches filter.
func findScenarioFiles(path, filter string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "scenarios not found", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid filter pattern", err)
		}
	}

	var files []string
	err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if p != path && info.Name() == "golden" {
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(p)
		if !isScenarioExt(ext) {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(p), ext)
			if matched, _ := filepath.Match(filter, name); !matched {
				return nil
			}
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}
	return files, nil
}

func isScenarioExt(ext string) bool {
	switch ext {
	case ".yaml", ".yml", ".cue":
		return true
	}
	return false
}

// runScenario executes a single scenario file and reports it in text mode.
func runScenario(opts *RunOptions, file string, cmd *cobra.Command) ScenarioResult {
	w := cmd.OutOrStdout()
	sr := ScenarioResult{Name: filepath.Base(file), File: file}

	fail := func(msgs ...string) ScenarioResult {
		sr.Errors = append(sr.Errors, msgs...)
		if opts.Format != "json" {
			fmt.Fprintf(w, "✗ %s\n", sr.Name)
			for _, e := range sr.Errors {
				fmt.Fprintf(w, "  %s\n", e)
			}
		}
		return sr
	}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return fail(fmt.Sprintf("load error: %v", err))
	}
	sr.Name = scenario.Name

	runOpts := []harness.Option{
		harness.WithDriver(opts.Driver),
		harness.WithLogger(slog.Default()),
	}
	if opts.IDGenerator != nil {
		runOpts = append(runOpts, harness.WithIDGenerator(opts.IDGenerator))
	}
	result, err := harness.Run(cmd.Context(), scenario, runOpts...)
	if err != nil {
		return fail(fmt.Sprintf("execution error: %v", err))
	}
	sr.RunID = result.RunID
	if opts.Trace && opts.Format != "json" {
		printStatements(w, result.Trace)
	}

	trace, err := harness.MarshalTrace(scenario.Name, result.Trace)
	if err != nil {
		return fail(fmt.Sprintf("trace error: %v", err))
	}

	goldenPath := goldenFilePath(file)
	suffix := ""
	switch {
	case opts.Update:
		if err := writeGolden(goldenPath, trace); err != nil {
			return fail(err.Error())
		}
		suffix = " (golden updated)"
	default:
		golden, err := os.ReadFile(goldenPath)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return fail(fmt.Sprintf("failed to read golden file: %v", err))
		case !bytes.Equal(golden, trace):
			result.AddError("trace does not match golden file (run with --update to regenerate)")
		}
	}

	if !result.Pass {
		return fail(result.Errors...)
	}
	sr.Pass = true
	if opts.Format != "json" {
		fmt.Fprintf(w, "✓ %s%s\n", sr.Name, suffix)
	}
	return sr
}

func printStatements(w io.Writer, trace []harness.TraceEvent) {
	for _, ev := range trace {
		if ev.Type == harness.EventStatement {
			fmt.Fprintf(w, "  [%d] %s\n", ev.Step, ev.SQL)
		}
	}
}

// goldenFilePath returns golden/<name>.golden next to the scenario file.
func goldenFilePath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

func writeGolden(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

func outputRunJSON(opts *RunOptions, cmd *cobra.Command, result RunResult) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	var cliErr *CLIError
	if result.Failed > 0 {
		cliErr = &CLIError{
			Code:    ErrCodeScenarioFailed,
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}
	if err := f.Respond(result, cliErr); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, cliErr.Message)
	}
	return nil
}

func outputRunText(cmd *cobra.Command, result RunResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Run Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
