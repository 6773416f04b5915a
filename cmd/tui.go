package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/trackbridge/internal/shared"
	"github.com/desertthunder/trackbridge/internal/tasks"
	"github.com/desertthunder/trackbridge/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUILogPath receives log output while the terminal UI owns the screen.
const TUILogPath = "./tmp/trackbridge-tui.log"

// TUI launches the interactive playlist browser and transfer view.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	from, err := platformFlag(cmd, "from")
	if err != nil {
		return err
	}
	to, err := platformFlag(cmd, "to")
	if err != nil {
		return err
	}
	return r.runTUI(ctx, &tasks.TransferRequest{Session: session(cmd), Source: from, Destination: to})
}

// runTUI runs the terminal UI. A request with a source url or tracks starts transferring right
// away; otherwise the user picks a playlist from req.Source first.
func (r *Runner) runTUI(ctx context.Context, req *tasks.TransferRequest) error {
	if err := os.MkdirAll(filepath.Dir(TUILogPath), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(TUILogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	level := r.logger.GetLevel()
	r.logger = shared.NewLogger(f)
	shared.SetLogLevel(r.logger, level)

	if err := r.wire(ctx); err != nil {
		return err
	}

	src, err := r.registry.Source(req.Source)
	if err != nil {
		return err
	}

	cfg := ui.Config{
		Session:     req.Session,
		Source:      req.Source,
		Destination: req.Destination,
		Runner:      r.engine,
		Browser:     src,
		Tokens:      r.tokens,
	}
	if req.SourceURL != "" || len(req.Tracks) > 0 {
		cfg.Request = req
	}

	model := ui.NewModel(ctx, cfg)
	if _, err := tea.NewProgram(model, tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	if job := model.Job(); job != nil {
		return r.printJob(job)
	}
	return model.Err()
}
