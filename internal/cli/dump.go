package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/persist/internal/dump"
)

// DumpOptions holds flags for the dump command.
type DumpOptions struct {
	*RootOptions
	Style  string // debug | quote | json
	Header bool   // print the table name even for a single table
	SQL    string // dump the results of these statements instead of tables
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DumpOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dump [table...]",
		Short: "Print database content",
		Long: `Print the rows of the named tables, ordered by primary key.

Without tables, prints the schema followed by every table. With --sql,
prints the rows returned by each statement instead.

Examples:
  persist dump --db app.db
  persist dump --db app.db player team --style quote
  persist dump --db app.db --sql "SELECT name FROM player WHERE score > 100" --style json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Style, "style", "debug", "row format (debug|quote|json)")
	cmd.Flags().BoolVar(&opts.Header, "header", false, "print table names even for a single table")
	cmd.Flags().StringVar(&opts.SQL, "sql", "", "dump the rows returned by these statements")

	return cmd
}

func runDump(opts *DumpOptions, tables []string, cmd *cobra.Command) error {
	format, err := dump.ParseFormat(opts.Style)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --style", err)
	}
	if opts.SQL != "" && len(tables) > 0 {
		return NewExitError(ExitCommandError, "--sql cannot be combined with table names")
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	w := cmd.OutOrStdout()
	switch {
	case opts.SQL != "":
		err = dump.SQL(ctx, st, w, opts.SQL, format)
	case len(tables) > 0:
		header := dump.HeaderAutomatic
		if opts.Header {
			header = dump.HeaderAlways
		}
		err = dump.Tables(ctx, st, w, tables, format, header)
	default:
		err = dump.Content(ctx, st, w, format)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "dump failed", err)
	}
	return nil
}
