package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/persist/internal/harness"
)

// ValidationError is a scenario file that failed to load.
type ValidationError struct {
	File    string `json:"file"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Files  int               `json:"files"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "validate <scenarios>",
		Short: "Validate scenario files without running them",
		Long: `Parse and check scenario files (.yaml, .yml or .cue) without running them.

Reports unknown fields, unknown operations and malformed expectations or
assertions for every file, not just the first failing one.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], filter, cmd)
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runValidate(opts *RootOptions, path, filter string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	files, err := findScenarioFiles(path, filter)
	if err != nil {
		if ferr := formatter.Error(ErrCodeNotFound, err.Error(), nil); ferr != nil {
			return ferr
		}
		return err
	}

	result := ValidationResult{Files: len(files)}
	for _, file := range files {
		formatter.VerboseLog("Validating %s", file)
		if _, err := harness.LoadScenario(file); err != nil {
			result.Errors = append(result.Errors, ValidationError{File: file, Message: err.Error()})
		}
	}
	result.Valid = len(result.Errors) == 0

	if opts.Format == "json" {
		var cliErr *CLIError
		if !result.Valid {
			cliErr = &CLIError{
				Code:    ErrCodeInvalid,
				Message: fmt.Sprintf("%d invalid scenario(s)", len(result.Errors)),
			}
		}
		if err := formatter.Respond(result, cliErr); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, e := range result.Errors {
			fmt.Fprintf(w, "✗ %s\n  %s\n", e.File, e.Message)
		}
		if result.Valid {
			fmt.Fprintf(w, "✓ All scenarios valid (%d file(s))\n", result.Files)
		}
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d invalid scenario(s)", len(result.Errors)))
	}
	return nil
}
