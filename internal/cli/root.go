package cli

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/persist/internal/config"
	"github.com/roach88/persist/internal/record"
	"github.com/roach88/persist/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	Database    string
	Driver      string
	Returning   string
	BusyTimeout time.Duration
	Migrations  string

	// Level is set to debug by --verbose. May be nil.
	Level *slog.LevelVar
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the persist CLI. Flag
// defaults come from cfg.
func NewRootCommand(cfg config.Config, level *slog.LevelVar) *cobra.Command {
	opts := &RootOptions{Level: level}

	cmd := &cobra.Command{
		Use:   "persist",
		Short: "persist - record persistence for SQLite",
		Long: `Inspect SQLite databases and run record persistence scenarios.

Settings are read from PERSIST_* environment variables; flags override them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if err := opts.config().Validate(); err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			if opts.Verbose && opts.Level != nil {
				opts.Level.Set(slog.LevelDebug)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", cfg.Database, "path to SQLite database")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", cfg.Driver, "SQLite driver (sqlite3|sqlite)")
	cmd.PersistentFlags().StringVar(&opts.Returning, "returning", cfg.Returning, "RETURNING support (auto|on|off)")
	cmd.PersistentFlags().DurationVar(&opts.BusyTimeout, "busy-timeout", cfg.BusyTimeout, "wait this long on a locked database")
	cmd.PersistentFlags().StringVar(&opts.Migrations, "migrations", cfg.Migrations, "directory of *.sql migrations applied on open")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewDumpCommand(opts))
	cmd.AddCommand(NewExecCommand(opts))

	return cmd
}

// config returns the flag values as a Config.
func (o *RootOptions) config() config.Config {
	return config.Config{
		Database:    o.Database,
		Driver:      o.Driver,
		LogLevel:    "info",
		Returning:   o.Returning,
		BusyTimeout: o.BusyTimeout,
		Migrations:  o.Migrations,
	}
}

// openStore opens the --db database and applies --migrations.
func (o *RootOptions) openStore() (*store.Store, error) {
	storeOpts := []store.Option{
		store.WithDriver(o.Driver),
		store.WithBusyTimeout(o.BusyTimeout),
	}
	if o.Migrations != "" {
		scripts, err := store.LoadMigrations(os.DirFS(o.Migrations), ".")
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load migrations", err)
		}
		storeOpts = append(storeOpts, store.WithMigrations(scripts...))
	}
	st, err := store.Open(o.Database, storeOpts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// databaseOptions returns record options for the configured RETURNING mode.
func (o *RootOptions) databaseOptions() []record.DatabaseOption {
	opts := []record.DatabaseOption{record.WithLogger(slog.Default())}
	if enabled, forced := o.config().ForcedReturning(); forced {
		opts = append(opts, record.WithReturning(enabled))
	}
	return opts
}
