package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/trackbridge/internal/formatter"
	"github.com/desertthunder/trackbridge/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Playlists lists the session's playlists on a platform with optional limit.
func (r *Runner) Playlists(ctx context.Context, cmd *cli.Command) error {
	platform, err := platformFlag(cmd, "platform")
	if err != nil {
		return err
	}
	if err := r.wire(ctx); err != nil {
		return err
	}

	src, err := r.registry.Source(platform)
	if err != nil {
		return err
	}
	token, err := r.tokens.Token(ctx, session(cmd), platform)
	if err != nil {
		return err
	}

	limit := cmd.Int("limit")
	r.logger.Infof("listing %s playlists with limit %v", platform, limit)

	playlists, err := src.Playlists(ctx, token)
	if err != nil {
		return err
	}
	if limit > 0 && limit < len(playlists) {
		playlists = playlists[:limit]
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlists, cmd.Bool("pretty"))
	}

	r.writePlain("Found %d playlists:\n\n", len(playlists))
	for i, p := range playlists {
		r.writePlain("%d. %s (%d tracks)\n", i+1, p.Name, p.TrackCount)
		if p.Description != "" {
			r.writePlain("   Description: %s\n", p.Description)
		}
		if p.URL != "" {
			r.writePlain("   %s\n", p.URL)
		}
	}
	return nil
}

// Export writes the given playlists, or every playlist with --all, to files in the output directory.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	platform, err := platformFlag(cmd, "platform")
	if err != nil {
		return err
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	if err := r.wire(ctx); err != nil {
		return err
	}

	sess := session(cmd)
	refs := cmd.Args().Slice()
	if cmd.Bool("all") {
		if refs, err = r.allPlaylists(ctx, sess, cmd); err != nil {
			return err
		}
	}
	if len(refs) == 0 {
		return r.writePlain("Nothing to export: pass playlist urls or --all\n")
	}

	progressCh := make(chan tasks.ProgressUpdate, len(refs)*2)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for update := range progressCh {
			r.writePlain("%s\n", update.Message)
		}
	}()

	result, err := r.engine.BulkExport(ctx, progressCh, sess, platform, refs, tasks.BulkExportOpts{
		Format:     format,
		OutputDir:  cmd.String("output"),
		NumWorkers: cmd.Int("workers"),
		RateLimit:  cmd.Float64("rate"),
	})
	close(progressCh)
	<-printed
	if err != nil {
		return err
	}

	r.writePlain("\n")
	r.writePlainHeader("Export complete")
	r.writePlain("Exported: %d/%d\n", result.SuccessfulExports, result.TotalPlaylists)
	r.writePlain("Directory: %s\n", result.OutputDirectory)
	if result.ManifestPath != "" {
		r.writePlain("Manifest: %s\n", result.ManifestPath)
	}
	if result.FailedExports > 0 {
		return fmt.Errorf("%d playlists failed to export", result.FailedExports)
	}
	return nil
}

func (r *Runner) allPlaylists(ctx context.Context, sess string, cmd *cli.Command) ([]string, error) {
	platform, err := platformFlag(cmd, "platform")
	if err != nil {
		return nil, err
	}
	src, err := r.registry.Source(platform)
	if err != nil {
		return nil, err
	}
	token, err := r.tokens.Token(ctx, sess, platform)
	if err != nil {
		return nil, err
	}
	playlists, err := src.Playlists(ctx, token)
	if err != nil {
		return nil, err
	}

	refs := make([]string, 0, len(playlists))
	for _, p := range playlists {
		refs = append(refs, p.ID)
	}
	return refs, nil
}
