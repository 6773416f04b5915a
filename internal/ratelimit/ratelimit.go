// Package ratelimit throttles outbound requests per (platform, session).
//
// Each key carries a one minute and a one hour sliding window of consumed request timestamps plus a
// token bucket that caps bursts. Callers [Limiter.Reserve] before every attempt, then either
// [Limiter.Consume] once the request has actually been sent or [Limiter.Release] when it never was.
// A granted reservation holds its slot until one of the two is called, so concurrent callers sharing
// a key cannot all pass the same check.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"github.com/desertthunder/trackbridge/internal/models"
	"github.com/desertthunder/trackbridge/internal/shared"
	"golang.org/x/time/rate"
)

const (
	minuteWindow = time.Minute
	hourWindow   = time.Hour

	// wait suggested when only the burst bucket is empty or every free slot is held by a pending reservation
	bucketWait = time.Second
)

// Limits is the ceiling for one platform. A zero PerMinute or PerHour leaves that window unbounded.
type Limits struct {
	PerMinute int
	PerHour   int
	Burst     int
}

// FromConfig converts the [shared.Config] rate limit table into per-platform [Limits].
func FromConfig(cfg map[string]shared.RateLimitConfig) map[models.Platform]Limits {
	out := make(map[models.Platform]Limits, len(cfg))
	for name, c := range cfg {
		out[models.Platform(name)] = Limits{PerMinute: c.PerMinute, PerHour: c.PerHour, Burst: c.Burst}
	}
	return out
}

// Reservation is the answer to [Limiter.Reserve].
type Reservation struct {
	Allowed bool
	Wait    time.Duration // how long to sleep before reserving again; zero when allowed
}

type bucket struct {
	mu     sync.Mutex
	minute []time.Time
	hour   []time.Time
	burst  *rate.Limiter

	pending int // reservations granted but not yet consumed or released
}

// windowWait reports whether a window with ceiling max is full once pending reservations are counted.
func (b *bucket) windowWait(ts []time.Time, max int, now time.Time, window time.Duration) (time.Duration, bool) {
	if max <= 0 || len(ts)+b.pending < max {
		return 0, false
	}
	if len(ts) >= max {
		return waitFor(ts[0], now, window), true
	}
	return bucketWait, true
}

// Limiter holds every per-key bucket. It is safe for concurrent use.
type Limiter struct {
	limits map[models.Platform]Limits
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// Option configures a [Limiter].
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a Limiter. Platforms missing from limits are never throttled.
func New(limits map[models.Platform]Limits, opts ...Option) *Limiter {
	l := &Limiter{
		limits:  limits,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func key(platform models.Platform, session string) string {
	return string(platform) + ":" + session
}

// bucketFor returns the bucket for the key, creating it on first reference.
func (l *Limiter) bucketFor(platform models.Platform, session string, lim Limits) *bucket {
	k := key(platform, session)

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[k]
	if !ok {
		b = &bucket{}
		if lim.PerMinute > 0 && lim.Burst > 0 {
			b.burst = rate.NewLimiter(rate.Limit(float64(lim.PerMinute)/60), lim.Burst)
		}
		l.buckets[k] = b
	}
	return b
}

// Reserve reports whether a request may be sent now for the key and, if not, how long to wait.
// An allowed reservation holds one slot in each window and in the burst bucket until it is settled by
// [Limiter.Consume] or [Limiter.Release].
func (l *Limiter) Reserve(platform models.Platform, session string) Reservation {
	lim, ok := l.limits[platform]
	if !ok {
		return Reservation{Allowed: true}
	}

	b := l.bucketFor(platform, session, lim)
	now := l.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.minute = prune(b.minute, now, minuteWindow)
	b.hour = prune(b.hour, now, hourWindow)

	if wait, full := b.windowWait(b.minute, lim.PerMinute, now, minuteWindow); full {
		return Reservation{Wait: wait}
	}
	if wait, full := b.windowWait(b.hour, lim.PerHour, now, hourWindow); full {
		return Reservation{Wait: wait}
	}
	if b.burst != nil && b.burst.TokensAt(now)-float64(b.pending) < 1 {
		return Reservation{Wait: bucketWait}
	}
	b.pending++
	return Reservation{Allowed: true}
}

// Consume records one sent request against both windows and takes a token from the burst bucket,
// settling one pending reservation if there is any.
func (l *Limiter) Consume(platform models.Platform, session string) {
	lim, ok := l.limits[platform]
	if !ok {
		return
	}

	b := l.bucketFor(platform, session, lim)
	now := l.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.minute = append(prune(b.minute, now, minuteWindow), now)
	b.hour = append(prune(b.hour, now, hourWindow), now)
	if b.burst != nil {
		b.burst.ReserveN(now, 1)
	}
	if b.pending > 0 {
		b.pending--
	}
}

// Release gives back a reservation whose request was never sent.
func (l *Limiter) Release(platform models.Platform, session string) {
	lim, ok := l.limits[platform]
	if !ok {
		return
	}

	b := l.bucketFor(platform, session, lim)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending > 0 {
		b.pending--
	}
}

// Usage returns how many requests the key has consumed in the last minute and hour. Pending
// reservations are not counted.
func (l *Limiter) Usage(platform models.Platform, session string) (minute, hour int) {
	l.mu.Lock()
	b, ok := l.buckets[key(platform, session)]
	l.mu.Unlock()
	if !ok {
		return 0, 0
	}

	now := l.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.minute = prune(b.minute, now, minuteWindow)
	b.hour = prune(b.hour, now, hourWindow)
	return len(b.minute), len(b.hour)
}

// prune drops timestamps that have aged out of the window. Timestamps are kept in ascending order.
func prune(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}

// waitFor is the whole number of seconds until oldest leaves the window, plus one.
func waitFor(oldest, now time.Time, window time.Duration) time.Duration {
	remaining := window - now.Sub(oldest)
	secs := math.Floor(remaining.Seconds()) + 1
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}
