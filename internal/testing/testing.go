// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/trackbridge/internal/models"
	"github.com/desertthunder/trackbridge/internal/shared"
	"golang.org/x/oauth2"
)

// FakePlatform is a test double implementing [services.Source] and [services.Destination].
//
// Search results are keyed by [models.TrackQuery.String]. Unknown queries return no candidates.
type FakePlatform struct {
	Name         models.Platform
	Export       *models.PlaylistExport
	ExportErr    error
	Results      map[string][]models.Candidate
	SearchErrs   []error // returned in order by the first searches, nil entries fall through
	SearchDelay  time.Duration
	SearchDelays map[string]time.Duration // per-query delay, overrides SearchDelay
	CreateErr    error
	AddErr       error
	AddLimit     int // when AddErr is set, the number of ids reported as attached
	PlaylistURL  string
	Refs         map[string]string
	SearchTokens []string

	mu       sync.Mutex
	searches int
	created  []string
	added    []string
}

func NewFakePlatform(name models.Platform) *FakePlatform {
	return &FakePlatform{Name: name, Results: make(map[string][]models.Candidate)}
}

func (f *FakePlatform) Platform() models.Platform { return f.Name }

func (f *FakePlatform) OAuthConfig() *oauth2.Config {
	return &oauth2.Config{ClientID: "fake", Endpoint: oauth2.Endpoint{
		AuthURL:  "https://" + string(f.Name) + ".test/authorize",
		TokenURL: "https://" + string(f.Name) + ".test/token",
	}}
}

func (f *FakePlatform) ParsePlaylistRef(ref string) (string, error) {
	if id, ok := f.Refs[ref]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: %q is not a %s playlist url", shared.ErrInvalidInput, ref, f.Name.DisplayName())
}

func (f *FakePlatform) ExportPlaylist(ctx context.Context, token, ref string) (*models.PlaylistExport, error) {
	if f.ExportErr != nil {
		return nil, f.ExportErr
	}
	if f.Export == nil {
		return nil, shared.ErrPlaylistNotFound
	}
	return f.Export, nil
}

func (f *FakePlatform) Playlists(ctx context.Context, token string) ([]models.Playlist, error) {
	if f.Export == nil {
		return nil, nil
	}
	return []models.Playlist{f.Export.Playlist}, nil
}

// Search counts as one request attempt against the context's [shared.AttemptGate]. A delay cut short
// by cancellation reports the attempt as unsent.
func (f *FakePlatform) Search(ctx context.Context, token string, q models.TrackQuery, limit int) ([]models.Candidate, error) {
	done, err := shared.AcquireAttempt(ctx)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	n := f.searches
	f.searches++
	f.SearchTokens = append(f.SearchTokens, token)
	f.mu.Unlock()

	delay := f.SearchDelay
	if d, ok := f.SearchDelays[q.String()]; ok {
		delay = d
	}
	if delay > 0 {
		if err := shared.SleepWithContext(ctx, delay); err != nil {
			done(!errors.Is(err, context.Canceled))
			return nil, err
		}
	}
	done(true)
	if n < len(f.SearchErrs) && f.SearchErrs[n] != nil {
		return nil, f.SearchErrs[n]
	}

	results := f.Results[q.String()]
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (f *FakePlatform) CreatePlaylist(ctx context.Context, token, title, description string) (*models.Playlist, error) {
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, title)
	return &models.Playlist{ID: "created-1", Name: title, Description: description, URL: f.PlaylistURL}, nil
}

func (f *FakePlatform) AddTracks(ctx context.Context, token, playlistID string, ids []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AddErr != nil {
		n := min(f.AddLimit, len(ids))
		f.added = append(f.added, ids[:n]...)
		return n, f.AddErr
	}
	f.added = append(f.added, ids...)
	return len(ids), nil
}

// Searches returns the number of Search calls.
func (f *FakePlatform) Searches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searches
}

// Created returns the titles of created playlists.
func (f *FakePlatform) Created() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...)
}

// Added returns every attached track id in order.
func (f *FakePlatform) Added() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.added...)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
