package main

import (
	"context"

	"github.com/desertthunder/trackbridge/internal/models"
	"github.com/desertthunder/trackbridge/internal/server"
	"github.com/desertthunder/trackbridge/internal/shared"
	"github.com/desertthunder/trackbridge/internal/tasks"
	"github.com/urfave/cli/v3"
)

// api builds the HTTP API around a job manager bound to ctx.
func (r *Runner) api(ctx context.Context) (*server.API, *tasks.JobManager) {
	logger := shared.WithLogger(r.logger, "component", "server")
	jobs := tasks.NewJobManager(ctx, r.engine, shared.WithLogger(r.logger, "component", "jobs"))

	cfg := server.APIConfig{
		Jobs:        jobs,
		Platforms:   r.registry,
		Tokens:      r.tokens,
		Sessions:    r.sessions,
		Source:      models.Spotify,
		Destination: models.SoundCloud,
		HTTPClient:  r.httpClient,
		Logger:      logger,
	}
	if r.history != nil {
		cfg.History = r.history
	}
	if r.db != nil {
		cfg.DB = r.db
	}
	return server.NewAPI(cfg), jobs
}

// Serve runs the HTTP API until the process is interrupted. Running transfers are cancelled on
// shutdown and recorded as cancelled.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if err := r.wire(ctx); err != nil {
		return err
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}

	api, jobs := r.api(ctx)
	defer jobs.Wait()

	r.writePlain("→ Serving on http://%s\n", addr)
	return server.ListenAndServe(ctx, addr, api.Routes(), shared.WithLogger(r.logger, "component", "http"))
}
