package cli

import (
	"database/sql"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/persist/internal/dump"
	"github.com/roach88/persist/internal/record"
)

// StatementResult is the outcome of one executed statement.
type StatementResult struct {
	SQL          string `json:"sql"`
	RowsAffected int64  `json:"rows_affected"`
	LastInsertID int64  `json:"last_insert_id,omitempty"`
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec <sql | ->",
		Short: "Execute SQL statements",
		Long: `Execute one or more semicolon-separated statements against --db.

Pass - to read the script from stdin. Statements run in order and stop at
the first error. Use dump --sql to print query results.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runExec(opts *RootOptions, script string, cmd *cobra.Command) error {
	if script == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read stdin", err)
		}
		script = string(data)
	}
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	db := record.New(st, opts.databaseOptions()...)

	results := []StatementResult{}
	for _, stmt := range dump.SplitStatements(script) {
		res, err := db.Exec(cmd.Context(), stmt)
		if err != nil {
			if ferr := formatter.Error(ErrCodeSQL, err.Error(), map[string]any{"sql": stmt, "executed": len(results)}); ferr != nil {
				return ferr
			}
			return WrapExitError(ExitCommandError, "statement failed", err)
		}
		sr, err := statementResult(stmt, res)
		if err != nil {
			return WrapExitError(ExitCommandError, "statement failed", err)
		}
		results = append(results, sr)
		formatter.VerboseLog("%s: %d row(s) affected", stmt, sr.RowsAffected)
	}

	if opts.Format == "json" {
		return formatter.Success(results)
	}
	var affected int64
	for _, r := range results {
		affected += r.RowsAffected
	}
	return formatter.Success(fmt.Sprintf("✓ %d statement(s) executed, %d row(s) affected", len(results), affected))
}

func statementResult(stmt string, res sql.Result) (StatementResult, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return StatementResult{}, fmt.Errorf("rows affected: %w", err)
	}
	lastID, err := res.LastInsertId()
	if err != nil {
		return StatementResult{}, fmt.Errorf("last insert id: %w", err)
	}
	return StatementResult{SQL: stmt, RowsAffected: affected, LastInsertID: lastID}, nil
}
