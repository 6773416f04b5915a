package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/trackbridge/internal/models"
	"golang.org/x/oauth2"
)

func newTokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("token request: %v", err)
		}
		if r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access-1","refresh_token":"refresh-1","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func oauthConfig(ts *httptest.Server) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{AuthURL: ts.URL + "/authorize", TokenURL: ts.URL + "/token"},
		RedirectURL:  "http://localhost:3000/callback",
	}
}

func receive(t *testing.T, h *OAuthHandler) OAuthResult {
	t.Helper()
	select {
	case res := <-h.Result():
		return res
	case <-time.After(time.Second):
		t.Fatal("no oauth result")
		return OAuthResult{}
	}
}

func TestOAuthHandler(t *testing.T) {
	ts := newTokenServer(t)

	t.Run("exchanges the code", func(t *testing.T) {
		h := NewOAuthHandler(models.SoundCloud, oauthConfig(ts), "state-1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=state-1&code=good-code", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "SoundCloud connected") {
			t.Errorf("expected confirmation page, got %q", rec.Body.String())
		}

		res := receive(t, h)
		if res.Error() != nil {
			t.Fatalf("unexpected error: %v", res.Error())
		}
		if res.Token.AccessToken != "access-1" || res.Token.RefreshToken != "refresh-1" {
			t.Errorf("unexpected token %+v", res.Token)
		}
	})

	t.Run("rejects a mismatched state", func(t *testing.T) {
		h := NewOAuthHandler(models.Spotify, oauthConfig(ts), "state-1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=forged&code=good-code", nil))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		if res := receive(t, h); res.Error() == nil {
			t.Error("expected an error result")
		}
	})

	t.Run("reports a provider error", func(t *testing.T) {
		h := NewOAuthHandler(models.Spotify, oauthConfig(ts), "s")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=s&error=access_denied", nil))

		res := receive(t, h)
		if res.Error() == nil || !strings.Contains(res.Error().Error(), "access_denied") {
			t.Errorf("expected access_denied error, got %v", res.Error())
		}
	})

	t.Run("processes only one callback", func(t *testing.T) {
		h := NewOAuthHandler(models.Spotify, oauthConfig(ts), "s")
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/callback?state=s&code=good-code", nil))
		receive(t, h)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=s&code=good-code", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected replay to be rejected, got %d", rec.Code)
		}
	})

	t.Run("routes", func(t *testing.T) {
		h := NewOAuthHandler(models.SoundCloud, oauthConfig(ts), "s")
		routes := h.Routes()
		if len(routes) != 2 || routes[0] != "GET /callback/soundcloud" {
			t.Errorf("unexpected routes %v", routes)
		}
	})
}
