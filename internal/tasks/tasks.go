// package tasks implements playlist transfers between music services.
//
// The core abstraction is TransferEngine, which validates authorization, resolves every source track on the
// destination platform and writes the resulting playlist. Operations emit progress updates via channels for
// non-blocking status reporting to CLI/UI layers and mirror them into a [ProgressRegistry] for HTTP polling.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackbridge/internal/models"
	"github.com/desertthunder/trackbridge/internal/resolver"
	"github.com/desertthunder/trackbridge/internal/services"
	"github.com/desertthunder/trackbridge/internal/shared"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultConcurrency   = 5
	DefaultProgressStart = 20
	DefaultProgressEnd   = 95

	historyTimeout = 5 * time.Second
)

// Platforms looks up platform clients by capability. Implemented by [services.Registry].
type Platforms interface {
	Source(p models.Platform) (services.Source, error)
	Destination(p models.Platform) (services.Destination, error)
}

// TokenProvider hands out access tokens. Implemented by tokens.Store.
type TokenProvider interface {
	Token(ctx context.Context, session string, platform models.Platform) (string, error)
}

// TrackResolver finds the destination equivalent of one track. Implemented by [resolver.Resolver].
type TrackResolver interface {
	Resolve(ctx context.Context, session string, q models.TrackQuery, dst resolver.Searcher) (models.ScoredMatch, error)
}

// HistoryRecorder persists finished jobs. Implemented by repositories.TransferRepository.
type HistoryRecorder interface {
	Save(ctx context.Context, job *models.TransferJob) error
}

// TransferRequest describes one transfer.
//
// When Tracks is set the source playlist is not fetched: Tracks and Name are used as-is and
// SourceURL is only recorded.
type TransferRequest struct {
	Session     string
	Source      models.Platform
	Destination models.Platform
	SourceURL   string
	Tracks      []models.Track
	Name        string
}

// TransferEngine runs transfers. One engine serves every session.
type TransferEngine struct {
	platforms   Platforms
	tokens      TokenProvider
	resolver    TrackResolver
	progress    *ProgressRegistry
	history     HistoryRecorder
	concurrency int
	start, end  int
	sleep       func(context.Context, time.Duration) error
	logger      *log.Logger
}

// EngineOption configures a [TransferEngine].
type EngineOption func(*TransferEngine)

func WithConcurrency(n int) EngineOption { return func(e *TransferEngine) { e.concurrency = n } }

// WithProgressBand sets the percent range covered by the search phase.
func WithProgressBand(start, end int) EngineOption {
	return func(e *TransferEngine) { e.start, e.end = start, end }
}

func WithProgressRegistry(r *ProgressRegistry) EngineOption {
	return func(e *TransferEngine) { e.progress = r }
}

func WithHistory(h HistoryRecorder) EngineOption { return func(e *TransferEngine) { e.history = h } }

func WithLogger(l *log.Logger) EngineOption { return func(e *TransferEngine) { e.logger = l } }

// WithSleeper replaces the wait used when the resolver reports a rate limit.
func WithSleeper(sleep func(context.Context, time.Duration) error) EngineOption {
	return func(e *TransferEngine) { e.sleep = sleep }
}

// NewTransferEngine creates a TransferEngine.
func NewTransferEngine(platforms Platforms, tokens TokenProvider, r TrackResolver, opts ...EngineOption) *TransferEngine {
	e := &TransferEngine{
		platforms:   platforms,
		tokens:      tokens,
		resolver:    r,
		progress:    NewProgressRegistry(),
		concurrency: DefaultConcurrency,
		start:       DefaultProgressStart,
		end:         DefaultProgressEnd,
		sleep:       shared.SleepWithContext,
		logger:      shared.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.concurrency < 1 {
		e.concurrency = 1
	}
	return e
}

// Progress returns the registry the engine reports into.
func (e *TransferEngine) Progress() *ProgressRegistry { return e.progress }

// transferRun is the mutable state of one Run call.
type transferRun struct {
	engine   *TransferEngine
	job      *models.TransferJob
	progress chan<- ProgressUpdate
	logger   *log.Logger
	mu       sync.Mutex
}

// report records u on the job. The job's percent never decreases, so the update carries the
// job's percent rather than the requested one. Sending under the lock keeps channel order
// consistent with that percent.
func (r *transferRun) report(u ProgressUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.job.Report(u.Percent, u.Message)
	u.Percent = r.job.Percent()
	r.engine.progress.Track(r.job)
	sendProgress(r.progress, u)
}

// finish moves the job to its terminal state once and records it.
func (r *transferRun) finish(ctx context.Context, status models.JobStatus, message string, cause error) *models.TransferJob {
	r.mu.Lock()
	if r.job.Status().Terminal() {
		r.mu.Unlock()
		return r.job
	}
	if cause != nil {
		r.job.SetErrorMessage(FriendlyMessage(cause))
	}
	r.job.Finish(status, message)
	r.engine.progress.Track(r.job)
	r.mu.Unlock()

	if cause != nil {
		r.logger.Warn("transfer ended", "status", status, "err", cause)
	} else {
		r.logger.Info("transfer ended", "status", status, "found", r.job.TracksFound(), "total", r.job.TracksTotal())
	}
	sendProgress(r.progress, finishedUpdate(r.job))
	r.engine.record(ctx, r.job, r.logger)
	return r.job
}

// fail ends the job from err, mapping cancellation to the cancelled status.
func (r *transferRun) fail(ctx context.Context, err error) *models.TransferJob {
	if errors.Is(err, context.Canceled) {
		return r.finish(ctx, models.StatusCancelled, FriendlyMessage(err), nil)
	}
	return r.finish(ctx, models.StatusFailed, FriendlyMessage(err), err)
}

// failAuth ends the job naming p when err is an authorization failure.
func (r *transferRun) failAuth(ctx context.Context, p models.Platform, err error) *models.TransferJob {
	if errors.Is(err, shared.ErrAuthRequired) {
		return r.finish(ctx, models.StatusFailed, authRequiredMessage(p), err)
	}
	return r.fail(ctx, err)
}

func (e *TransferEngine) record(ctx context.Context, job *models.TransferJob, logger *log.Logger) {
	if e.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
	defer cancel()
	if err := e.history.Save(ctx, job); err != nil {
		logger.Error("failed to record transfer", "err", err)
	}
}

// Run performs a full transfer and returns the job in its terminal state.
//
// Run never returns an error: every outcome, including cancellation of ctx, is reported on the
// job's status and message. The job reaches 100% exactly once.
func (e *TransferEngine) Run(ctx context.Context, req TransferRequest, progress chan<- ProgressUpdate) *models.TransferJob {
	job := models.NewTransferJob(req.Session, req.Source, req.Destination, req.SourceURL)
	job.Start()
	run := &transferRun{
		engine:   e,
		job:      job,
		progress: progress,
		logger:   shared.WithLogger(e.logger, "session", req.Session, "source", req.Source, "destination", req.Destination),
	}
	run.report(validateUpdate(0))

	dst, err := e.platforms.Destination(req.Destination)
	if err != nil {
		return run.fail(ctx, err)
	}

	var src services.Source
	var ref string
	if len(req.Tracks) == 0 {
		if src, err = e.platforms.Source(req.Source); err != nil {
			return run.fail(ctx, err)
		}
		if ref, err = src.ParsePlaylistRef(req.SourceURL); err != nil {
			return run.fail(ctx, err)
		}
	}

	var srcToken string
	if src != nil {
		if srcToken, err = e.tokens.Token(ctx, req.Session, req.Source); err != nil {
			return run.failAuth(ctx, req.Source, err)
		}
	}
	if _, err := e.tokens.Token(ctx, req.Session, req.Destination); err != nil {
		return run.failAuth(ctx, req.Destination, err)
	}

	export := &models.PlaylistExport{Playlist: models.Playlist{Name: req.Name}, Tracks: req.Tracks}
	if src != nil {
		run.report(fetchSourceUpdate(e.start/2, req.Source))
		if export, err = src.ExportPlaylist(ctx, srcToken, ref); err != nil {
			return run.fail(ctx, err)
		}
	}

	total := len(export.Tracks)
	job.SetTracksTotal(total)
	if total == 0 {
		return run.finish(ctx, models.StatusFailed, "The source playlist has no tracks", nil)
	}
	run.report(foundPlaylistUpdate(e.start, export))

	matches, err := e.resolveAll(ctx, run, export.Tracks, dst)
	switch {
	case ctx.Err() != nil:
		return run.fail(ctx, ctx.Err())
	case err != nil:
		return run.failAuth(ctx, req.Destination, err)
	}

	ids := make([]string, 0, total)
	for i, m := range matches {
		if m == nil {
			job.AddWarning(export.Tracks[i].Query().Label())
			continue
		}
		ids = append(ids, m.Candidate.ID)
	}
	found := len(ids)
	job.SetTracksFound(found)

	if found == 0 {
		return run.finish(ctx, models.StatusFailed, noMatchesMessage(req.Destination, total), nil)
	}

	return e.writePlaylist(ctx, run, dst, playlistTitle(export.Playlist.Name, req.Source), ids)
}

// resolveAll resolves tracks with bounded concurrency. The result is indexed like tracks, with
// nil for misses. Only authorization loss and cancellation abort the batch.
func (e *TransferEngine) resolveAll(ctx context.Context, run *transferRun, tracks []models.Track, dst services.Destination) ([]*models.ScoredMatch, error) {
	total := len(tracks)
	results := make([]*models.ScoredMatch, total)
	session := run.job.SessionID()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	var completed atomic.Int64
	for i, track := range tracks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			q := track.Query()
			match, err := e.resolveTrack(gctx, session, q, dst)
			switch {
			case err == nil:
				results[i] = &match
			case errors.Is(err, shared.ErrAuthRequired):
				return err
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				run.logger.Debug("track unresolved", "track", q.Label(), "err", err)
			}

			n := int(completed.Add(1))
			run.report(searchTrackUpdate(n, total, e.percent(n, total), q, err == nil))
			return nil
		})
	}

	return results, g.Wait()
}

// resolveTrack waits out rate limits until the resolver gives a definite answer or ctx ends.
func (e *TransferEngine) resolveTrack(ctx context.Context, session string, q models.TrackQuery, dst services.Destination) (models.ScoredMatch, error) {
	for {
		match, err := e.resolver.Resolve(ctx, session, q, dst)

		var limited *resolver.RateLimitedError
		if !errors.As(err, &limited) {
			return match, err
		}
		if err := e.sleep(ctx, limited.Wait); err != nil {
			return models.ScoredMatch{}, err
		}
	}
}

// writePlaylist creates the destination playlist and attaches ids.
func (e *TransferEngine) writePlaylist(ctx context.Context, run *transferRun, dst services.Destination, title string, ids []string) *models.TransferJob {
	job := run.job
	if ctx.Err() != nil {
		return run.fail(ctx, ctx.Err())
	}

	run.report(createDestinationUpdate(e.end, dst.Platform()))

	// the resolver may have refreshed the token during the search phase
	token, err := e.tokens.Token(ctx, job.SessionID(), dst.Platform())
	if err != nil {
		return run.failAuth(ctx, dst.Platform(), err)
	}

	description := fmt.Sprintf("Migrated from %s", job.SourcePlatform().DisplayName())
	if job.SourceURL() != "" {
		description += ": " + job.SourceURL()
	}

	pl, err := dst.CreatePlaylist(ctx, token, title, description)
	if err != nil {
		return run.fail(ctx, err)
	}
	job.SetDestinationURL(pl.URL)

	run.report(addTracksUpdate(e.end, len(ids)))
	added, err := dst.AddTracks(ctx, token, pl.ID, ids)
	job.SetTracksCreated(added)
	if err != nil {
		return run.finish(ctx, models.StatusPartial, attachFailedMessage(added, len(ids), pl.URL), err)
	}

	return run.finish(ctx, models.StatusCompleted, successMessage(len(ids), job.TracksTotal(), pl.URL), nil)
}

// percent maps n of total completed resolutions onto the search band.
func (e *TransferEngine) percent(n, total int) int {
	if total == 0 {
		return e.end
	}
	return e.start + (e.end-e.start)*n/total
}

func playlistTitle(name string, source models.Platform) string {
	if name == "" {
		name = "Imported playlist"
	}
	if source == "" {
		return name
	}
	return fmt.Sprintf("%s (from %s)", name, source.DisplayName())
}
