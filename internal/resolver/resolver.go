// Package resolver finds the destination-platform equivalent of one source track.
//
// A resolution consults the search cache first; only a miss costs a token lookup, a rate-limit
// reservation and a platform search. Accepted matches are cached, misses never are.
package resolver

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackbridge/internal/matcher"
	"github.com/desertthunder/trackbridge/internal/models"
	"github.com/desertthunder/trackbridge/internal/ratelimit"
	"github.com/desertthunder/trackbridge/internal/services"
	"github.com/desertthunder/trackbridge/internal/shared"
)

const DefaultReserveRetries = 5

// TokenProvider hands out access tokens. Implemented by tokens.Store.
type TokenProvider interface {
	Token(ctx context.Context, session string, platform models.Platform) (string, error)
	Refresh(ctx context.Context, session string, platform models.Platform, rejected string) (string, error)
}

// Throttle is the rate limiter contract. Implemented by ratelimit.Limiter.
type Throttle interface {
	Reserve(platform models.Platform, session string) ratelimit.Reservation
	Consume(platform models.Platform, session string)
	Release(platform models.Platform, session string)
}

// Cache memoizes accepted matches. Implemented by cache.SearchCache.
type Cache interface {
	Get(query string, platform models.Platform) (models.ScoredMatch, bool)
	Put(query string, platform models.Platform, match models.ScoredMatch)
}

// Searcher is the slice of [services.Destination] the resolver needs.
//
// Search must pass every outbound request attempt through [shared.AcquireAttempt] so each one is
// reserved against the limiter.
type Searcher interface {
	Platform() models.Platform
	Search(ctx context.Context, token string, q models.TrackQuery, limit int) ([]models.Candidate, error)
}

// RateLimitedError is returned when the reservation retries ran out. Wait is the limiter's last
// suggestion. It matches [shared.ErrRateLimited].
type RateLimitedError struct {
	Platform models.Platform
	Wait     time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: rate limited, retry in %s", e.Platform.DisplayName(), e.Wait)
}

func (e *RateLimitedError) Unwrap() error { return shared.ErrRateLimited }

// Stats counts what resolutions cost.
type Stats struct {
	CacheHits int64
	Searches  int64
	Matches   int64
	Misses    int64
}

// Resolver is safe for concurrent use.
type Resolver struct {
	tokens  TokenProvider
	limiter Throttle
	cache   Cache
	matcher matcher.Matcher
	retries int
	limit   int
	sleep   func(context.Context, time.Duration) error
	logger  *log.Logger

	cacheHits atomic.Int64
	searches  atomic.Int64
	matches   atomic.Int64
	misses    atomic.Int64
}

// Option configures a [Resolver].
type Option func(*Resolver)

// WithMatcher replaces the default combined-string matcher.
func WithMatcher(m matcher.Matcher) Option { return func(r *Resolver) { r.matcher = m } }

// WithReserveRetries bounds how often a denied reservation is waited out before giving up.
func WithReserveRetries(n int) Option { return func(r *Resolver) { r.retries = n } }

// WithSearchLimit sets how many candidates each search asks for.
func WithSearchLimit(n int) Option { return func(r *Resolver) { r.limit = n } }

// WithSleeper replaces the context-aware sleep used between reservations.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(r *Resolver) { r.sleep = sleep }
}

func WithLogger(l *log.Logger) Option { return func(r *Resolver) { r.logger = l } }

func New(tokens TokenProvider, limiter Throttle, cache Cache, opts ...Option) *Resolver {
	r := &Resolver{
		tokens:  tokens,
		limiter: limiter,
		cache:   cache,
		matcher: matcher.New(matcher.Combined),
		retries: DefaultReserveRetries,
		limit:   services.DefaultSearchLimit,
		sleep:   shared.SleepWithContext,
		logger:  shared.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the best destination match for q.
//
// Errors: [shared.ErrTrackNotFound] when no candidate reaches the threshold, [shared.ErrAuthRequired]
// when no usable token exists, [*RateLimitedError] when the limiter kept denying, and
// [shared.ErrAPIRequest] for platform failures.
func (r *Resolver) Resolve(ctx context.Context, session string, q models.TrackQuery, dst Searcher) (models.ScoredMatch, error) {
	platform := dst.Platform()
	key := matcher.CacheKey(q)
	if key == "" {
		r.misses.Add(1)
		return models.ScoredMatch{}, fmt.Errorf("%w: empty query", shared.ErrTrackNotFound)
	}

	if match, ok := r.cache.Get(key, platform); ok {
		r.cacheHits.Add(1)
		return match, nil
	}

	token, err := r.tokens.Token(ctx, session, platform)
	if err != nil {
		return models.ScoredMatch{}, err
	}

	candidates, err := r.search(ctx, session, token, q, dst)
	if services.IsUnauthorized(err) {
		r.logger.Debug("search rejected token, refreshing", "platform", platform)
		token, err = r.tokens.Refresh(ctx, session, platform, token)
		if err != nil {
			return models.ScoredMatch{}, err
		}
		candidates, err = r.search(ctx, session, token, q, dst)
		if services.IsUnauthorized(err) {
			return models.ScoredMatch{}, fmt.Errorf("%w: %w", shared.ErrAuthRequired, err)
		}
	}
	if err != nil {
		return models.ScoredMatch{}, err
	}

	match, ok := r.matcher.Best(q, candidates)
	if !ok {
		r.misses.Add(1)
		return models.ScoredMatch{}, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, q.Label())
	}

	r.matches.Add(1)
	r.cache.Put(key, platform, match)
	return match, nil
}

// search issues one search with every request attempt gated by the limiter.
func (r *Resolver) search(ctx context.Context, session, token string, q models.TrackQuery, dst Searcher) ([]models.Candidate, error) {
	r.searches.Add(1)
	ctx = shared.WithAttemptGate(ctx, &slotGate{r: r, platform: dst.Platform(), session: session})
	return dst.Search(ctx, token, q, r.limit)
}

// slotGate reserves a limiter slot per attempt and settles it once the attempt is known to be sent or not.
type slotGate struct {
	r        *Resolver
	platform models.Platform
	session  string
}

func (g *slotGate) Acquire(ctx context.Context) (func(sent bool), error) {
	if err := g.r.reserve(ctx, g.platform, g.session); err != nil {
		return nil, err
	}
	return func(sent bool) {
		if sent {
			g.r.limiter.Consume(g.platform, g.session)
		} else {
			g.r.limiter.Release(g.platform, g.session)
		}
	}, nil
}

func (r *Resolver) reserve(ctx context.Context, platform models.Platform, session string) error {
	for attempt := 0; ; attempt++ {
		res := r.limiter.Reserve(platform, session)
		if res.Allowed {
			return nil
		}
		if attempt >= r.retries {
			return &RateLimitedError{Platform: platform, Wait: res.Wait}
		}

		r.logger.Debug("rate limited, waiting", "platform", platform, "wait", res.Wait)
		if err := r.sleep(ctx, res.Wait); err != nil {
			return err
		}
	}
}

// Stats returns a snapshot of the counters.
func (r *Resolver) Stats() Stats {
	return Stats{
		CacheHits: r.cacheHits.Load(),
		Searches:  r.searches.Load(),
		Matches:   r.matches.Load(),
		Misses:    r.misses.Load(),
	}
}
