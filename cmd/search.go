package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/trackbridge/internal/formatter"
	"github.com/desertthunder/trackbridge/internal/shared"
	"github.com/urfave/cli/v3"
)

// Search resolves a single "Title - Artist" query on a destination platform, going through the
// same rate limits, cache and matcher as a transfer.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	query := strings.TrimSpace(cmd.StringArg("query"))
	if query == "" {
		return fmt.Errorf("%w: query", shared.ErrMissingArgument)
	}
	platform, err := platformFlag(cmd, "platform")
	if err != nil {
		return err
	}
	if err := r.wire(ctx); err != nil {
		return err
	}

	dst, err := r.registry.Destination(platform)
	if err != nil {
		return err
	}

	_, tracks, err := formatter.ParseTrackList(strings.NewReader(query))
	if err != nil {
		return err
	}
	if len(tracks) == 0 {
		return fmt.Errorf("%w: query", shared.ErrMissingArgument)
	}
	q := tracks[0].Query()

	r.logger.Info("searching", "platform", platform, "query", q.Label())

	match, err := r.resolver.Resolve(ctx, session(cmd), q, dst)
	if errors.Is(err, shared.ErrTrackNotFound) {
		return r.writePlain("No match for %s on %s\n", q.Label(), platform.DisplayName())
	}
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(match, true)
	}

	r.writePlain("Found track:\n\n")
	r.writePlain("Title: %s\n", match.Candidate.Title)
	if match.Candidate.Artist != "" {
		r.writePlain("Artist: %s\n", match.Candidate.Artist)
	}
	r.writePlain("ID: %s\n", match.Candidate.ID)
	if match.Candidate.URL != "" {
		r.writePlain("URL: %s\n", match.Candidate.URL)
	}
	r.writePlain("Score: %.2f\n", match.Score)
	return nil
}
