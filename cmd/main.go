package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/trackbridge/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := NewRunner(RunnerOpts{Logger: logger})
	defer runner.Close()

	app := &cli.Command{
		Name:     "trackbridge",
		Usage:    "Move playlists from Spotify to SoundCloud",
		Version:  "0.1.0",
		Flags:    globalFlags(),
		Before:   runner.before,
		Commands: runner.register(),
	}

	if err := app.Run(ctx, os.Args); err != nil {
		runner.Close()
		logger.Fatalf("application error: %v", err)
	}
}
