package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/desertthunder/trackbridge/internal/formatter"
	"github.com/desertthunder/trackbridge/internal/models"
	"github.com/desertthunder/trackbridge/internal/services"
	"golang.org/x/time/rate"
)

// BulkExportOpts contains configuration for bulk playlist exports.
type BulkExportOpts struct {
	Format     formatter.Format // Export format: json, csv, markdown, txt
	OutputDir  string           // Base output directory (default: {platform}_export_{epoch})
	NumWorkers int              // Concurrent workers (default: 5)
	RateLimit  float64          // Playlist fetches per second (default: 5)
}

// PlaylistExportResult is the outcome of exporting one playlist.
type PlaylistExportResult struct {
	Ref          string   `json:"ref"`
	PlaylistName string   `json:"playlist_name"`
	Success      bool     `json:"success"`
	Files        []string `json:"files,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// BulkExportResult summarizes a bulk export and is written as the manifest.
type BulkExportResult struct {
	TotalPlaylists    int                    `json:"total_playlists"`
	SuccessfulExports int                    `json:"successful_exports"`
	FailedExports     int                    `json:"failed_exports"`
	OutputDirectory   string                 `json:"output_directory"`
	ManifestPath      string                 `json:"-"`
	Results           []PlaylistExportResult `json:"results"`
}

type playlistExportJob struct {
	ref    string
	export *models.PlaylistExport
}

// BulkExport exports playlists of the session's source platform concurrently, writing one set of
// files per playlist and an export_manifest.json summary.
//
// Fetches are paced by a token bucket; file writing fans out over a worker pool. A playlist that
// fails to fetch or write is reported in the result and does not stop the others.
func (e *TransferEngine) BulkExport(
	ctx context.Context,
	prog chan<- ProgressUpdate,
	session string,
	platform models.Platform,
	refs []string,
	opts BulkExportOpts,
) (*BulkExportResult, error) {
	src, err := e.platforms.Source(platform)
	if err != nil {
		return nil, err
	}
	token, err := e.tokens.Token(ctx, session, platform)
	if err != nil {
		return nil, err
	}

	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("%s_export_%d", platform, time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = DefaultConcurrency
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &BulkExportResult{
		TotalPlaylists:  len(refs),
		OutputDirectory: opts.OutputDir,
		Results:         make([]PlaylistExportResult, 0, len(refs)),
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)

	jobs := make(chan playlistExportJob, len(refs))
	results := make(chan PlaylistExportResult, len(refs))

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go exportWorker(ctx, &wg, jobs, results, opts)
	}

	go func() {
		defer close(jobs)
		for i, ref := range refs {
			if err := limiter.Wait(ctx); err != nil {
				return
			}

			export, err := fetchPlaylist(ctx, src, token, ref)
			if err != nil {
				results <- PlaylistExportResult{
					Ref:          ref,
					PlaylistName: fmt.Sprintf("Unknown (%s)", ref),
					Error:        FriendlyMessage(err),
				}
				continue
			}

			sendProgress(prog, exportingPlaylistUpdate(i+1, len(refs), export.Playlist.Name))
			jobs <- playlistExportJob{ref: ref, export: export}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		result.Results = append(result.Results, res)

		if res.Success {
			result.SuccessfulExports++
			sendProgress(prog, exportCompletedUpdate(completed, len(refs), res.PlaylistName, len(res.Files)))
		} else {
			result.FailedExports++
			sendProgress(prog, exportFailedUpdate(completed, len(refs), res.PlaylistName, fmt.Errorf("%s", res.Error)))
		}
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	manifestPath := filepath.Join(opts.OutputDir, "export_manifest.json")
	if err := formatter.WriteManifest(result, manifestPath); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath
	return result, nil
}

func fetchPlaylist(ctx context.Context, src services.Source, token, ref string) (*models.PlaylistExport, error) {
	id, err := src.ParsePlaylistRef(ref)
	if err != nil {
		return nil, err
	}
	export, err := src.ExportPlaylist(ctx, token, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playlist: %w", err)
	}
	return export, nil
}

// exportWorker writes playlists from the jobs channel.
func exportWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	jobs <-chan playlistExportJob,
	results chan<- PlaylistExportResult,
	opts BulkExportOpts,
) {
	defer wg.Done()

	for job := range jobs {
		if ctx.Err() != nil {
			results <- PlaylistExportResult{Ref: job.ref, PlaylistName: job.export.Playlist.Name, Error: FriendlyMessage(ctx.Err())}
			continue
		}
		results <- exportSinglePlaylist(job, opts)
	}
}

// exportSinglePlaylist exports a single playlist to the requested format.
func exportSinglePlaylist(j playlistExportJob, opts BulkExportOpts) PlaylistExportResult {
	result := PlaylistExportResult{
		Ref:          j.ref,
		PlaylistName: j.export.Playlist.Name,
	}

	files, err := formatter.WriteExport(j.export, opts.Format, opts.OutputDir)
	if err != nil {
		result.Error = fmt.Sprintf("%s export failed: %v", opts.Format, err)
		return result
	}

	result.Files = files
	result.Success = true
	return result
}
