// Package tokens hands out valid access tokens per (session, platform).
//
// Records live behind a [KeyValue]. Stale tokens are refreshed through the platform's OAuth2 token
// endpoint, and concurrent refreshes of the same key collapse into one request.
package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackbridge/internal/models"
	"github.com/desertthunder/trackbridge/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultSkew           = 60 * time.Second
	DefaultRefreshTimeout = 20 * time.Second
)

// Store is the token store. It is safe for concurrent use.
type Store struct {
	kv      KeyValue
	configs map[models.Platform]*oauth2.Config
	client  *http.Client
	skew    time.Duration
	timeout time.Duration
	now     func() time.Time
	logger  *log.Logger
	flight  singleflight.Group
}

// Option configures a [Store].
type Option func(*Store)

func WithSkew(d time.Duration) Option           { return func(s *Store) { s.skew = d } }
func WithRefreshTimeout(d time.Duration) Option { return func(s *Store) { s.timeout = d } }
func WithClock(now func() time.Time) Option     { return func(s *Store) { s.now = now } }
func WithLogger(l *log.Logger) Option           { return func(s *Store) { s.logger = l } }

// WithHTTPClient sets the client used for refresh calls.
func WithHTTPClient(c *http.Client) Option { return func(s *Store) { s.client = c } }

// NewStore creates a Store. configs holds the OAuth2 registration of every platform that can be refreshed.
func NewStore(kv KeyValue, configs map[models.Platform]*oauth2.Config, opts ...Option) *Store {
	s := &Store{
		kv:      kv,
		configs: configs,
		skew:    DefaultSkew,
		timeout: DefaultRefreshTimeout,
		now:     time.Now,
		logger:  shared.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: s.timeout}
	}
	return s
}

func recordKey(session string, platform models.Platform) string {
	return "token:" + string(platform) + ":" + session
}

// Load returns the persisted record, or [shared.ErrRecordNotFound].
func (s *Store) Load(ctx context.Context, session string, platform models.Platform) (models.TokenRecord, error) {
	raw, err := s.kv.Get(ctx, recordKey(session, platform))
	if err != nil {
		return models.TokenRecord{}, err
	}

	var rec models.TokenRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return models.TokenRecord{}, fmt.Errorf("failed to decode token record: %w", err)
	}
	return rec, nil
}

// Save persists rec under its session and platform.
func (s *Store) Save(ctx context.Context, rec models.TokenRecord) error {
	if rec.SessionID == "" || rec.Platform == "" {
		return fmt.Errorf("%w: token record needs a session and platform", shared.ErrInvalidInput)
	}
	if rec.AccessToken == "" {
		return fmt.Errorf("%w: empty access token", shared.ErrInvalidInput)
	}
	rec.UpdatedAt = s.now()

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode token record: %w", err)
	}
	return s.kv.Put(ctx, recordKey(rec.SessionID, rec.Platform), raw)
}

// SaveToken persists an [oauth2.Token] obtained from an authorization-code exchange.
func (s *Store) SaveToken(ctx context.Context, session string, platform models.Platform, tok *oauth2.Token) error {
	if tok == nil {
		return fmt.Errorf("%w: nil token", shared.ErrInvalidInput)
	}
	return s.Save(ctx, fromOAuth(session, platform, tok, ""))
}

// Delete forgets the record.
func (s *Store) Delete(ctx context.Context, session string, platform models.Platform) error {
	return s.kv.Delete(ctx, recordKey(session, platform))
}

// Token returns a usable access token, refreshing a stale one first.
//
// Any failure to produce a token (no record, no refresh token, refresh rejected) wraps [shared.ErrAuthRequired].
func (s *Store) Token(ctx context.Context, session string, platform models.Platform) (string, error) {
	rec, err := s.Load(ctx, session, platform)
	if errors.Is(err, shared.ErrRecordNotFound) {
		return "", fmt.Errorf("%w: no %s token for session", shared.ErrAuthRequired, platform.DisplayName())
	}
	if err != nil {
		return "", err
	}

	if !rec.Stale(s.now(), s.skew) {
		return rec.AccessToken, nil
	}
	return s.refresh(ctx, session, platform, "")
}

// Refresh forces a refresh after the platform rejected the access token rejected.
// If another caller already replaced that token, the replacement is returned without a new request.
func (s *Store) Refresh(ctx context.Context, session string, platform models.Platform, rejected string) (string, error) {
	return s.refresh(ctx, session, platform, rejected)
}

func (s *Store) refresh(ctx context.Context, session string, platform models.Platform, rejected string) (string, error) {
	key := session + ":" + string(platform)

	v, err, joined := s.flight.Do(key, func() (any, error) {
		// state may have moved on while this caller waited for the key
		rec, err := s.Load(ctx, session, platform)
		if errors.Is(err, shared.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: no %s token for session", shared.ErrAuthRequired, platform.DisplayName())
		}
		if err != nil {
			return "", err
		}

		forced := rejected != ""
		if forced && rec.AccessToken != rejected {
			return rec.AccessToken, nil
		}
		if !forced && !rec.Stale(s.now(), s.skew) {
			return rec.AccessToken, nil
		}
		if !rec.CanRefresh() {
			return "", fmt.Errorf("%w: %w", shared.ErrAuthRequired, shared.ErrNoRefreshToken)
		}

		next, err := s.exchange(ctx, rec)
		if err != nil {
			s.logger.Warn("token refresh failed", "platform", platform, "error", err)
			return "", fmt.Errorf("%w: %w", shared.ErrAuthRequired, err)
		}
		if err := s.Save(ctx, next); err != nil {
			return "", fmt.Errorf("failed to persist refreshed token: %w", err)
		}
		s.logger.Debug("token refreshed", "platform", platform)
		return next.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	if joined {
		s.logger.Debug("joined in-flight refresh", "platform", platform)
	}
	return v.(string), nil
}

// exchange performs the refresh_token grant.
func (s *Store) exchange(ctx context.Context, rec models.TokenRecord) (models.TokenRecord, error) {
	cfg, ok := s.configs[rec.Platform]
	if !ok || cfg == nil {
		return models.TokenRecord{}, fmt.Errorf("%w: %s", shared.ErrMissingCredentials, rec.Platform)
	}

	// one caller's cancellation must not fail the others sharing this refresh
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)

	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: rec.RefreshToken}).Token()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return models.TokenRecord{}, fmt.Errorf("%w: %w", shared.ErrRefreshFailed, shared.ErrTimeout)
		}
		return models.TokenRecord{}, fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}
	return fromOAuth(rec.SessionID, rec.Platform, tok, rec.RefreshToken), nil
}

// fromOAuth converts tok, keeping previousRefresh when the platform did not rotate the refresh token.
func fromOAuth(session string, platform models.Platform, tok *oauth2.Token, previousRefresh string) models.TokenRecord {
	rec := models.TokenRecord{
		SessionID:    session,
		Platform:     platform,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if rec.RefreshToken == "" {
		rec.RefreshToken = previousRefresh
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry
		rec.ExpiresAt = &expiry
	}
	return rec
}

// Status reports, for every configured platform, whether the session holds a token that is usable
// as is or can be refreshed.
func (s *Store) Status(ctx context.Context, session string) (map[models.Platform]bool, error) {
	out := make(map[models.Platform]bool, len(s.configs))
	for platform := range s.configs {
		rec, err := s.Load(ctx, session, platform)
		switch {
		case errors.Is(err, shared.ErrRecordNotFound):
			out[platform] = false
		case err != nil:
			return nil, err
		default:
			out[platform] = !rec.Stale(s.now(), s.skew) || rec.CanRefresh()
		}
	}
	return out, nil
}
