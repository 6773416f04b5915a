package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/trackbridge/internal/formatter"
	"github.com/desertthunder/trackbridge/internal/models"
	"github.com/desertthunder/trackbridge/internal/shared"
	"github.com/desertthunder/trackbridge/internal/tasks"
	"github.com/urfave/cli/v3"
)

// transferRequest builds the request described by the run flags.
func transferRequest(cmd *cli.Command) (tasks.TransferRequest, error) {
	from, err := platformFlag(cmd, "from")
	if err != nil {
		return tasks.TransferRequest{}, err
	}
	to, err := platformFlag(cmd, "to")
	if err != nil {
		return tasks.TransferRequest{}, err
	}

	req := tasks.TransferRequest{
		Session:     session(cmd),
		Source:      from,
		Destination: to,
		SourceURL:   cmd.StringArg("url"),
	}

	file := cmd.String("file")
	switch {
	case file != "":
		name, tracks, err := formatter.ReadTrackListFile(file)
		if err != nil {
			return tasks.TransferRequest{}, err
		}
		if len(tracks) == 0 {
			return tasks.TransferRequest{}, fmt.Errorf("%w: %s contains no tracks", shared.ErrInvalidInput, file)
		}
		req.Tracks, req.Name = tracks, name
		if n := cmd.String("name"); n != "" {
			req.Name = n
		}
		if req.SourceURL == "" {
			req.SourceURL = file
		}
	case req.SourceURL == "":
		return tasks.TransferRequest{}, fmt.Errorf("%w: a playlist url or --file is required", shared.ErrMissingArgument)
	}
	return req, nil
}

// TransferRun recreates a source playlist on the destination platform, printing progress as it goes.
func (r *Runner) TransferRun(ctx context.Context, cmd *cli.Command) error {
	req, err := transferRequest(cmd)
	if err != nil {
		return err
	}
	if cmd.Bool("tui") {
		return r.runTUI(ctx, &req)
	}
	if err := r.wire(ctx); err != nil {
		return err
	}

	r.logger.Info("starting transfer", "source", req.Source, "destination", req.Destination)
	r.writePlain("Starting playlist transfer...\n")
	r.writePlain("Source: %s %s\n", req.Source.DisplayName(), req.SourceURL)
	r.writePlain("Destination: %s\n\n", req.Destination.DisplayName())

	progressCh := make(chan tasks.ProgressUpdate, 100)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for update := range progressCh {
			r.printUpdate(update)
		}
	}()

	job := r.engine.Run(ctx, req, progressCh)
	close(progressCh)
	<-printed

	if cmd.Bool("json") {
		return r.writeJSON(job.Summary(), true)
	}
	return r.printJob(job)
}

func (r *Runner) printUpdate(update tasks.ProgressUpdate) {
	switch update.Phase {
	case tasks.FetchSource:
		r.writePlain("📥 %s\n", update.Message)
	case tasks.SearchTracks:
		if update.Step == 1 {
			r.writePlain("\n🔍 Searching %d tracks\n", update.Total)
		}
		r.writePlain("   %s\n", update.Message)
	case tasks.CreatePlaylist, tasks.AddTracks:
		r.writePlain("\n📝 %s\n", update.Message)
	case tasks.Finished:
	default:
		r.logger.Debug(update.Message, "phase", update.Phase, "percent", update.Percent)
	}
}

// printJob prints the outcome. Failed and cancelled jobs are returned as errors so the exit code
// reflects them.
func (r *Runner) printJob(job *models.TransferJob) error {
	s := job.Summary()

	r.writePlain("\n")
	r.writePlainHeader(fmt.Sprintf("Transfer %s", s.Status))
	r.writePlain("%s\n", s.Message)
	if s.TracksTotal > 0 {
		r.writePlain("Matched: %d/%d\n", s.TracksFound, s.TracksTotal)
	}
	if s.DestinationURL != "" {
		r.writePlain("Playlist: %s\n", s.DestinationURL)
	}
	if len(s.Warnings) > 0 {
		r.writePlain("\nNot found on the destination (%d):\n", len(s.Warnings))
		for _, w := range s.Warnings {
			r.writePlain("  - %s\n", w)
		}
	}

	switch s.Status {
	case models.StatusFailed:
		return fmt.Errorf("transfer failed: %s", s.Message)
	case models.StatusCancelled:
		return context.Canceled
	default:
		return nil
	}
}

// TransferHistory lists the session's recent transfers, newest first.
func (r *Runner) TransferHistory(ctx context.Context, cmd *cli.Command) error {
	if err := r.wire(ctx); err != nil {
		return err
	}
	if r.history == nil {
		return fmt.Errorf("%w: transfer history needs the database", shared.ErrServiceUnavailable)
	}

	criteria := map[string]any{"session_id": session(cmd), "limit": cmd.Int("limit")}
	if status := cmd.String("status"); status != "" {
		if !models.JobStatus(status).Valid() {
			return fmt.Errorf("%w: unknown status %q", shared.ErrInvalidArgument, status)
		}
		criteria["status"] = status
	}

	jobs, err := r.history.List(ctx, criteria)
	if err != nil {
		return err
	}

	summaries := make([]models.TransferSummary, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, job.Summary())
	}
	if cmd.Bool("json") {
		return r.writeJSON(summaries, true)
	}

	if len(summaries) == 0 {
		return r.writePlain("No transfers yet\n")
	}
	for i, s := range summaries {
		when := ""
		if s.CompletedAt != nil {
			when = s.CompletedAt.Local().Format("2006-01-02 15:04")
		}
		r.writePlain("%d. [%s] %s %s → %s (%d/%d)\n", i+1, strings.ToUpper(string(s.Status)), when,
			s.SourcePlatform.DisplayName(), s.DestinationPlatform.DisplayName(), s.TracksFound, s.TracksTotal)
		r.writePlain("   %s\n", s.SourceURL)
		if s.DestinationURL != "" {
			r.writePlain("   %s\n", s.DestinationURL)
		}
	}
	return nil
}
