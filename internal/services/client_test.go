package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/trackbridge/internal/models"
	"github.com/desertthunder/trackbridge/internal/shared"
	tu "github.com/desertthunder/trackbridge/internal/testing"
)

func testClient(opts ...Option) *apiClient {
	base := []Option{WithRetryPolicy(shared.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond})}
	return newAPIClient(models.SoundCloud, "OAuth", newSettings(append(base, opts...)))
}

// countingGate admits every attempt unless err is set, tallying how each one settled.
type countingGate struct {
	err error

	acquired, sent, unsent atomic.Int32
}

func (g *countingGate) Acquire(ctx context.Context) (func(bool), error) {
	if g.err != nil {
		return nil, g.err
	}
	g.acquired.Add(1)
	return func(sent bool) {
		if sent {
			g.sent.Add(1)
		} else {
			g.unsent.Add(1)
		}
	}, nil
}

func TestAPIClient(t *testing.T) {
	ctx := context.Background()

	t.Run("Sends Auth Header And Decodes JSON", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "OAuth tok" {
				t.Errorf("expected OAuth header, got %q", got)
			}
			if r.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", r.Method)
			}
			if got := r.Header.Get("Content-Type"); got != "application/json" {
				t.Errorf("expected JSON content type, got %q", got)
			}

			var body map[string]string
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("failed to decode body: %v", err)
			}
			json.NewEncoder(w).Encode(map[string]string{"echo": body["name"]})
		}))
		defer server.Close()

		var out map[string]string
		err := testClient().do(ctx, http.MethodPost, server.URL, "tok", map[string]string{"name": "x"}, &out)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if out["echo"] != "x" {
			t.Errorf("expected echo x, got %v", out)
		}
	})

	t.Run("Client Error Is Not Retried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "nope", http.StatusBadRequest)
		}))
		defer server.Close()

		err := testClient().do(ctx, http.MethodGet, server.URL, "tok", nil, nil)

		var se *StatusError
		if !errors.As(err, &se) {
			t.Fatalf("expected StatusError, got %v", err)
		}
		if se.StatusCode() != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", se.StatusCode())
		}
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Error("expected ErrAPIRequest in chain")
		}
		if IsUnauthorized(err) {
			t.Error("400 is not unauthorized")
		}
		if calls.Load() != 1 {
			t.Errorf("expected 1 call, got %d", calls.Load())
		}
	})

	t.Run("Unauthorized", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		err := testClient().do(ctx, http.MethodGet, server.URL, "tok", nil, nil)
		if !IsUnauthorized(err) {
			t.Fatalf("expected unauthorized, got %v", err)
		}
	})

	t.Run("Server Errors Are Retried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			json.NewEncoder(w).Encode(map[string]int{"ok": 1})
		}))
		defer server.Close()

		var out map[string]int
		if err := testClient().do(ctx, http.MethodGet, server.URL, "", nil, &out); err != nil {
			t.Fatalf("expected success after retries, got %v", err)
		}
		if calls.Load() != 3 {
			t.Errorf("expected 3 calls, got %d", calls.Load())
		}
	})

	t.Run("Rate Limited Exhausts Attempts", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		err := testClient().do(ctx, http.MethodGet, server.URL, "", nil, nil)
		if code, ok := statusCode(err); !ok || code != http.StatusTooManyRequests {
			t.Fatalf("expected 429 status error, got %v", err)
		}
		if calls.Load() != 3 {
			t.Errorf("expected 3 calls, got %d", calls.Load())
		}
	})

	t.Run("Timeout", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)

		client := testClient(WithTimeout(10*time.Millisecond), WithRetryPolicy(shared.RetryPolicy{Attempts: 1}))
		err := client.do(ctx, http.MethodGet, server.URL, "", nil, nil)
		if !errors.Is(err, shared.ErrTimeout) {
			t.Fatalf("expected timeout, got %v", err)
		}
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Error("expected ErrAPIRequest in chain")
		}
	})

	t.Run("Transport Failure", func(t *testing.T) {
		client := testClient(
			WithHTTPClient(&http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection failed"))}),
			WithRetryPolicy(shared.RetryPolicy{Attempts: 1}),
		)

		err := client.do(ctx, http.MethodGet, "http://example.com", "", nil, nil)
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Fatalf("expected ErrAPIRequest, got %v", err)
		}
	})

	t.Run("Unreadable Body", func(t *testing.T) {
		resp := &http.Response{StatusCode: http.StatusOK, Body: &tu.FCloser{}, Header: http.Header{}}
		client := testClient(
			WithHTTPClient(&http.Client{Transport: tu.NewMockRoundTripper(resp, nil)}),
			WithRetryPolicy(shared.RetryPolicy{Attempts: 1}),
		)

		var out map[string]any
		err := client.do(ctx, http.MethodGet, "http://example.com", "", nil, &out)
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Fatalf("expected ErrAPIRequest, got %v", err)
		}
	})

	t.Run("Invalid JSON", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("{not json"))
		}))
		defer server.Close()

		var out map[string]any
		err := testClient().do(ctx, http.MethodGet, server.URL, "", nil, &out)
		if err == nil {
			t.Fatal("expected decode error")
		}
	})

	t.Run("Post Is Sent Once", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		err := testClient().do(ctx, http.MethodPost, server.URL, "tok", map[string]string{"title": "Mix"}, nil)
		if code, ok := statusCode(err); !ok || code != http.StatusInternalServerError {
			t.Fatalf("expected 500 status error, got %v", err)
		}
		if calls.Load() != 1 {
			t.Errorf("expected 1 POST, got %d", calls.Load())
		}

		calls.Store(0)
		testClient().do(ctx, http.MethodPut, server.URL, "tok", map[string]string{"title": "Mix"}, nil)
		if calls.Load() != 3 {
			t.Errorf("expected PUT to be retried 3 times, got %d", calls.Load())
		}
	})

	t.Run("Every Attempt Passes The Gate", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		gate := &countingGate{}
		testClient().do(shared.WithAttemptGate(ctx, gate), http.MethodGet, server.URL, "", nil, nil)
		if calls.Load() != 3 {
			t.Fatalf("expected 3 calls, got %d", calls.Load())
		}
		if gate.acquired.Load() != calls.Load() || gate.sent.Load() != calls.Load() {
			t.Errorf("expected one sent admission per request, got %d acquired/%d sent", gate.acquired.Load(), gate.sent.Load())
		}
	})

	t.Run("Gate Denial Sends Nothing", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		}))
		defer server.Close()

		denied := errors.New("slow down")
		err := testClient().do(shared.WithAttemptGate(ctx, &countingGate{err: denied}), http.MethodGet, server.URL, "", nil, nil)
		if !errors.Is(err, denied) {
			t.Fatalf("expected gate error, got %v", err)
		}
		if calls.Load() != 0 {
			t.Errorf("expected no requests, got %d", calls.Load())
		}
	})

	t.Run("Unsent Attempt Is Reported", func(t *testing.T) {
		gate := &countingGate{}
		testClient().do(shared.WithAttemptGate(ctx, gate), http.MethodGet, "http://example.com/\x00", "", nil, nil)
		if gate.acquired.Load() != 1 || gate.unsent.Load() != 1 || gate.sent.Load() != 0 {
			t.Errorf("expected one unsent admission, got %d/%d/%d", gate.acquired.Load(), gate.sent.Load(), gate.unsent.Load())
		}
	})

	t.Run("Failed Request Creation", func(t *testing.T) {
		err := testClient().do(ctx, http.MethodGet, "http://example.com/\x00", "", nil, nil)
		if err == nil {
			t.Fatal("expected error for invalid URL")
		}
	})
}
