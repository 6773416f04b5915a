package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/desertthunder/trackbridge/internal/models"
	"github.com/desertthunder/trackbridge/internal/server"
	"github.com/desertthunder/trackbridge/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const authTimeout = 2 * time.Minute

// AuthLogin runs the authorization-code flow for one platform and stores the token for the session.
//
// Starts a local HTTP server, opens the browser for user authorization, and exchanges the code for tokens.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	platform, err := platformFlag(cmd, "platform")
	if err != nil {
		return err
	}
	if err := r.wire(ctx); err != nil {
		return err
	}

	config, ok := r.registry.OAuthConfigs()[platform]
	if !ok {
		return fmt.Errorf("%w: %s credentials are not configured", shared.ErrMissingCredentials, platform.DisplayName())
	}

	token, err := r.doOAuth(ctx, platform, config)
	if err != nil {
		return err
	}

	sess := session(cmd)
	if err := r.tokens.SaveToken(ctx, sess, platform, token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	if _, err := r.sessions.Touch(ctx, sess); err != nil {
		r.logger.Warn("failed to record session", "error", err)
	}

	r.writePlainln("✓ %s connected", platform.DisplayName())
	return r.writePlain("Tokens saved for session %q\n", sess)
}

// AuthStatus prints whether each configured platform holds a usable token.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.wire(ctx); err != nil {
		return err
	}

	status, err := r.tokens.Status(ctx, session(cmd))
	if err != nil {
		return err
	}

	for _, p := range r.registry.Platforms() {
		if status[p] {
			r.writePlain("%-12s ✓ Connected\n", p.DisplayName())
		} else {
			r.writePlain("%-12s ✗ Not connected (run: trackbridge auth login -p %s)\n", p.DisplayName(), p)
		}
	}
	return nil
}

// AuthLogout deletes the stored token of a platform.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	platform, err := platformFlag(cmd, "platform")
	if err != nil {
		return err
	}
	if err := r.wire(ctx); err != nil {
		return err
	}

	if err := r.tokens.Delete(ctx, session(cmd), platform); err != nil {
		return err
	}
	return r.writePlain("✓ %s disconnected\n", platform.DisplayName())
}

// doOAuth executes the OAuth2 authorization flow with a local HTTP server
func (r *Runner) doOAuth(ctx context.Context, platform models.Platform, config *oauth2.Config) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	handler := server.NewOAuthHandler(platform, config, state)
	router := server.NewBasicRouter()
	router.Handler(handler)

	listener, err := net.Listen("tcp", r.config.Server.Addr())
	if err != nil {
		return nil, fmt.Errorf("failed to start callback server: %w", err)
	}
	httpServer := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth callback server at %v", listener.Addr())
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()

	authURL := config.AuthCodeURL(state, oauth2.AccessTypeOffline)
	r.writePlain("→ Opening browser for %s authorization...\n", platform.DisplayName())
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	timeout := time.NewTimer(authTimeout)
	defer timeout.Stop()

	var result server.OAuthResult
	select {
	case result = <-handler.Result():
	case err := <-serverErrors:
		return nil, fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after 2 minutes", shared.ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrAuthFailed, result.Error())
	}
	if result.Token == nil {
		return nil, fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
	}
	return result.Token, nil
}
