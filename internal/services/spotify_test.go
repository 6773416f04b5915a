package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/trackbridge/internal/models"
	"github.com/desertthunder/trackbridge/internal/shared"
)

var testCreds = shared.ClientConfig{
	ClientID:     "test_client_id",
	ClientSecret: "test_client_secret",
	RedirectURI:  "http://127.0.0.1:3000/callback/spotify",
}

func fastRetry() Option {
	return WithRetryPolicy(shared.RetryPolicy{Attempts: 2, BaseDelay: time.Millisecond})
}

func TestSpotifyService(t *testing.T) {
	t.Run("NewSpotifyService", func(t *testing.T) {
		t.Run("With Valid Credentials", func(t *testing.T) {
			srv, err := NewSpotifyService(testCreds)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if srv.Platform() != models.Spotify {
				t.Errorf("expected platform spotify, got %s", srv.Platform())
			}
			if srv.OAuthConfig().RedirectURL != testCreds.RedirectURI {
				t.Errorf("expected redirect %s, got %s", testCreds.RedirectURI, srv.OAuthConfig().RedirectURL)
			}
		})

		t.Run("Missing Client ID", func(t *testing.T) {
			_, err := NewSpotifyService(shared.ClientConfig{ClientSecret: "s"})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Missing Client Secret", func(t *testing.T) {
			_, err := NewSpotifyService(shared.ClientConfig{ClientID: "c"})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})
	})

	t.Run("ParsePlaylistRef", func(t *testing.T) {
		srv, _ := NewSpotifyService(testCreds)

		tc := []struct {
			name    string
			ref     string
			want    string
			wantErr bool
		}{
			{name: "plain", ref: "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M", want: "37i9dQZF1DXcBWIGoYBM5M"},
			{name: "query string", ref: "https://open.spotify.com/playlist/abc123?si=xyz", want: "abc123"},
			{name: "trailing slash", ref: " https://open.spotify.com/playlist/abc123/ ", want: "abc123"},
			{name: "album", ref: "https://open.spotify.com/album/abc123", wantErr: true},
			{name: "empty id", ref: "https://open.spotify.com/playlist/?si=1", wantErr: true},
			{name: "other site", ref: "https://soundcloud.com/a/sets/b", wantErr: true},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				got, err := srv.ParsePlaylistRef(tt.ref)
				if tt.wantErr {
					if !errors.Is(err, shared.ErrInvalidInput) {
						t.Errorf("expected ErrInvalidInput, got %v", err)
					}
					return
				}
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got != tt.want {
					t.Errorf("expected %s, got %s", tt.want, got)
				}
			})
		}
	})

	t.Run("Auth URL", func(t *testing.T) {
		reg := NewRegistry()
		srv, _ := NewSpotifyService(testCreds)
		reg.Register(srv)

		authURL, err := reg.AuthURL(models.Spotify, "test_state")
		if err != nil {
			t.Fatalf("failed to build auth URL: %v", err)
		}
		for _, want := range []string{"accounts.spotify.com", "test_client_id", "test_state", "playlist-modify-private"} {
			if !strings.Contains(authURL, want) {
				t.Errorf("auth URL should contain %s: %s", want, authURL)
			}
		}
	})

	t.Run("ExportPlaylist Follows Pagination", func(t *testing.T) {
		var server *httptest.Server
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer tok" {
				t.Errorf("expected bearer header, got %q", got)
			}
			switch r.URL.Path {
			case "/playlists/p1":
				next := server.URL + "/playlists/p1/tracks?offset=2"
				json.NewEncoder(w).Encode(SpotifyPlaylist{
					ID:   "p1",
					Name: "Road Trip",
					Tracks: SpotifyPlaylistTracks{
						Total: 3,
						Next:  &next,
						Items: []SpotifyPlaylistTrack{
							{Track: &SpotifyTrack{ID: "t1", Name: "Blinding Lights", Artists: []SpotifyArtist{{Name: "The Weeknd"}}}},
							{Track: nil},
						},
					},
					ExternalURLs: externalURLs{Spotify: "https://open.spotify.com/playlist/p1"},
				})
			case "/playlists/p1/tracks":
				json.NewEncoder(w).Encode(SpotifyPlaylistTracks{
					Items: []SpotifyPlaylistTrack{
						{Track: &SpotifyTrack{ID: "t2", Name: "Levitating", Artists: []SpotifyArtist{{Name: "Dua Lipa"}}, DurationMS: 203000}},
					},
				})
			default:
				http.NotFound(w, r)
			}
		}))
		defer server.Close()

		srv, _ := NewSpotifyService(testCreds, WithBaseURL(server.URL), fastRetry())
		export, err := srv.ExportPlaylist(context.Background(), "tok", "p1")
		if err != nil {
			t.Fatalf("failed to export: %v", err)
		}

		if export.Playlist.Name != "Road Trip" {
			t.Errorf("expected playlist name, got %s", export.Playlist.Name)
		}
		if len(export.Tracks) != 2 {
			t.Fatalf("expected 2 tracks, got %d", len(export.Tracks))
		}
		if export.Tracks[1].Title != "Levitating" || export.Tracks[1].Artist != "Dua Lipa" || export.Tracks[1].Duration != 203 {
			t.Errorf("unexpected track %+v", export.Tracks[1])
		}
	})

	t.Run("ExportPlaylist Not Found", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		defer server.Close()

		srv, _ := NewSpotifyService(testCreds, WithBaseURL(server.URL), fastRetry())
		_, err := srv.ExportPlaylist(context.Background(), "tok", "missing")
		if !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected ErrPlaylistNotFound, got %v", err)
		}
	})

	t.Run("Search", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("type") != "track" || q.Get("q") != "Blinding Lights The Weeknd" || q.Get("limit") != "10" {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
			fmt.Fprint(w, `{"tracks":{"items":[
				{"id":"t1","name":"Blinding Lights","artists":[{"name":"The Weeknd"}],"external_urls":{"spotify":"https://open.spotify.com/track/t1"}}
			]}}`)
		}))
		defer server.Close()

		srv, _ := NewSpotifyService(testCreds, WithBaseURL(server.URL), fastRetry())
		got, err := srv.Search(context.Background(), "tok", models.TrackQuery{Title: "Blinding Lights", Artist: "The Weeknd"}, 0)
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		want := models.Candidate{ID: "t1", Title: "Blinding Lights", Artist: "The Weeknd", URL: "https://open.spotify.com/track/t1"}
		if len(got) != 1 || got[0] != want {
			t.Errorf("unexpected candidates %+v", got)
		}
	})

	t.Run("CreatePlaylist And AddTracks", func(t *testing.T) {
		var batches atomic.Int32
		var created map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.URL.Path == "/me":
				fmt.Fprint(w, `{"id":"user1"}`)
			case r.URL.Path == "/users/user1/playlists" && r.Method == http.MethodPost:
				json.NewDecoder(r.Body).Decode(&created)
				w.WriteHeader(http.StatusCreated)
				fmt.Fprint(w, `{"id":"new","name":"Mix (from Spotify)","external_urls":{"spotify":"https://open.spotify.com/playlist/new"}}`)
			case r.URL.Path == "/playlists/new/tracks" && r.Method == http.MethodPost:
				var body struct {
					URIs []string `json:"uris"`
				}
				json.NewDecoder(r.Body).Decode(&body)
				if len(body.URIs) > spotifyAddBatch {
					t.Errorf("batch too large: %d", len(body.URIs))
				}
				if !strings.HasPrefix(body.URIs[0], "spotify:track:") {
					t.Errorf("expected track URIs, got %s", body.URIs[0])
				}
				batches.Add(1)
				w.WriteHeader(http.StatusCreated)
				fmt.Fprint(w, `{"snapshot_id":"s"}`)
			default:
				http.NotFound(w, r)
			}
		}))
		defer server.Close()

		srv, _ := NewSpotifyService(testCreds, WithBaseURL(server.URL), fastRetry())
		ctx := context.Background()

		playlist, err := srv.CreatePlaylist(ctx, "tok", "Mix (from Spotify)", "")
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if playlist.URL != "https://open.spotify.com/playlist/new" {
			t.Errorf("unexpected url %s", playlist.URL)
		}
		if created["public"] != false {
			t.Errorf("expected private playlist, got %v", created["public"])
		}

		ids := make([]string, 250)
		for i := range ids {
			ids[i] = fmt.Sprintf("t%d", i)
		}
		added, err := srv.AddTracks(ctx, "tok", "new", ids)
		if err != nil {
			t.Fatalf("add failed: %v", err)
		}
		if added != 250 {
			t.Errorf("expected 250 added, got %d", added)
		}
		if batches.Load() != 3 {
			t.Errorf("expected 3 batches, got %d", batches.Load())
		}
	})

	t.Run("AddTracks Partial Failure", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) > 1 {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusCreated)
		}))
		defer server.Close()

		srv, _ := NewSpotifyService(testCreds, WithBaseURL(server.URL), fastRetry())
		ids := make([]string, 150)
		for i := range ids {
			ids[i] = "t"
		}

		added, err := srv.AddTracks(context.Background(), "tok", "p", ids)
		if !errors.Is(err, shared.ErrAttachFailed) {
			t.Fatalf("expected ErrAttachFailed, got %v", err)
		}
		if added != 100 {
			t.Errorf("expected first batch to count, got %d", added)
		}
	})
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	sp, _ := NewSpotifyService(testCreds)
	sc, _ := NewSoundCloudService(testCreds)
	reg.Register(sp)
	reg.Register(sc)

	if _, err := reg.Source(models.Spotify); err != nil {
		t.Errorf("expected spotify source: %v", err)
	}
	if _, err := reg.Destination(models.SoundCloud); err != nil {
		t.Errorf("expected soundcloud destination: %v", err)
	}
	if _, err := reg.Destination(models.Platform("tidal")); !errors.Is(err, shared.ErrUnknownPlatform) {
		t.Errorf("expected ErrUnknownPlatform, got %v", err)
	}

	platforms := reg.Platforms()
	if len(platforms) != 2 || platforms[0] != models.SoundCloud || platforms[1] != models.Spotify {
		t.Errorf("unexpected platforms %v", platforms)
	}
	if len(reg.OAuthConfigs()) != 2 {
		t.Errorf("expected 2 oauth configs")
	}
}
