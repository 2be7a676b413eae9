// Command persist runs record persistence scenarios and inspects SQLite
// databases.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/roach88/persist/internal/cli"
	"github.com/roach88/persist/internal/config"
)

func main() {
	if err := mainImpl(); err != nil {
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) || exitErr.Code != cli.ExitFailure {
			fmt.Fprintf(os.Stderr, "persist: %v\n", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}

func mainImpl() error {
	cfg, err := config.Load()
	if err != nil {
		return cli.WrapExitError(cli.ExitCommandError, "invalid configuration", err)
	}
	level, err := cfg.Level()
	if err != nil {
		return cli.WrapExitError(cli.ExitCommandError, "invalid configuration", err)
	}

	ll := &slog.LevelVar{}
	ll.Set(level)
	slog.SetDefault(slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return cli.NewRootCommand(cfg, ll).ExecuteContext(ctx)
}
