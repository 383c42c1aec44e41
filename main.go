package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/markis/gh-coverletter/internal/app"
	"github.com/markis/gh-coverletter/internal/args"
	"github.com/markis/gh-coverletter/internal/config"
	"github.com/markis/gh-coverletter/internal/logger"
)

// main function to parse arguments and generate the cover letter.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		stop()
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		return err
	}

	a, err := args.ParseArgs(ctx, *cfg, os.Args[1:])
	if errors.Is(err, args.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	l := logger.New(logger.WithDebug(a.Debug))
	return app.New(cfg, l).Run(ctx, a)
}
