// Spotify Web API client implementing [Source] and [Destination]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/desertthunder/trackbridge/internal/models"
	"github.com/desertthunder/trackbridge/internal/shared"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	spotifyPlaylistMarker = "open.spotify.com/playlist/"
	// most items accepted by one add-tracks call
	spotifyAddBatch = 100
)

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type externalIDs struct {
	ISRC string `json:"isrc"`
}

type externalURLs struct {
	Spotify string `json:"spotify"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Artists      []SpotifyArtist `json:"artists"`
	Album        SpotifyAlbum    `json:"album"`
	DurationMS   int             `json:"duration_ms"`
	ExternalIDs  externalIDs     `json:"external_ids"`
	ExternalURLs externalURLs    `json:"external_urls"`
	URI          string          `json:"uri"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// SpotifyPlaylistTrack represents a track within a playlist context. Track is nil for removed or local items.
type SpotifyPlaylistTrack struct {
	AddedAt string        `json:"added_at"`
	Track   *SpotifyTrack `json:"track"`
}

// SpotifyPlaylistTracks is one page of playlist items.
type SpotifyPlaylistTracks struct {
	Items []SpotifyPlaylistTrack `json:"items"`
	Total int                    `json:"total"`
	Next  *string                `json:"next"`
}

// SpotifyPlaylist represents a Spotify playlist.
type SpotifyPlaylist struct {
	ID           string                `json:"id"`
	Name         string                `json:"name"`
	Description  string                `json:"description"`
	Owner        Owner                 `json:"owner"`
	Public       bool                  `json:"public"`
	Tracks       SpotifyPlaylistTracks `json:"tracks"`
	ExternalURLs externalURLs          `json:"external_urls"`
}

// SpotifyPaginatedPlaylists represents a paginated response of playlists.
type SpotifyPaginatedPlaylists struct {
	Items []SpotifyPlaylist `json:"items"`
	Total int               `json:"total"`
	Next  *string           `json:"next"`
}

type spotifySearchResponse struct {
	Tracks struct {
		Items []SpotifyTrack `json:"items"`
	} `json:"tracks"`
}

// SpotifyService talks to the Spotify Web API. Tokens are supplied per call.
type SpotifyService struct {
	config  *oauth2.Config
	api     *apiClient
	baseURL string
}

// NewSpotifyService creates a Spotify client for the registered application in creds.
func NewSpotifyService(creds shared.ClientConfig, opts ...Option) (*SpotifyService, error) {
	if creds.ClientID == "" {
		return nil, fmt.Errorf("%w: missing spotify client_id", shared.ErrMissingCredentials)
	}
	if creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing spotify client_secret", shared.ErrMissingCredentials)
	}

	s := newSettings(opts)
	config := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURI,
		Scopes: []string{
			"user-read-private",
			"playlist-read-private",
			"playlist-read-collaborative",
			"playlist-modify-private",
			"playlist-modify-public",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:   orDefault(s.authURL, spotifyAuthURL),
			TokenURL:  orDefault(s.tokenURL, spotifyTokenURL),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	return &SpotifyService{
		config:  config,
		api:     newAPIClient(models.Spotify, "Bearer", s),
		baseURL: orDefault(s.baseURL, spotifyBaseURL),
	}, nil
}

func (s *SpotifyService) Platform() models.Platform   { return models.Spotify }
func (s *SpotifyService) OAuthConfig() *oauth2.Config { return s.config }

// ParsePlaylistRef extracts the playlist ID from an open.spotify.com playlist URL.
func (s *SpotifyService) ParsePlaylistRef(ref string) (string, error) {
	_, rest, ok := strings.Cut(strings.TrimSpace(ref), spotifyPlaylistMarker)
	if !ok {
		return "", fmt.Errorf("%w: not a Spotify playlist URL", shared.ErrInvalidInput)
	}
	id, _, _ := strings.Cut(rest, "?")
	id = strings.Trim(id, "/")
	if id == "" || strings.Contains(id, "/") {
		return "", fmt.Errorf("%w: missing Spotify playlist ID", shared.ErrInvalidInput)
	}
	return id, nil
}

// UserProfile retrieves the token owner's profile.
func (s *SpotifyService) UserProfile(ctx context.Context, token string) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.api.do(ctx, http.MethodGet, s.baseURL+"/me", token, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Playlist retrieves the first page of a playlist.
func (s *SpotifyService) Playlist(ctx context.Context, token, playlistID string) (*SpotifyPlaylist, error) {
	var playlist SpotifyPlaylist
	if err := s.api.do(ctx, http.MethodGet, s.baseURL+"/playlists/"+url.PathEscape(playlistID), token, nil, &playlist); err != nil {
		if code, ok := statusCode(err); ok && code == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %w", shared.ErrPlaylistNotFound, err)
		}
		return nil, err
	}
	return &playlist, nil
}

// Playlists lists the token owner's playlists, following pagination.
func (s *SpotifyService) Playlists(ctx context.Context, token string) ([]models.Playlist, error) {
	var all []models.Playlist
	next := s.baseURL + "/me/playlists?limit=50"

	for next != "" {
		var page SpotifyPaginatedPlaylists
		if err := s.api.do(ctx, http.MethodGet, next, token, nil, &page); err != nil {
			return nil, err
		}
		for _, sp := range page.Items {
			all = append(all, sp.toModel())
		}
		next = deref(page.Next)
	}
	return all, nil
}

// ExportPlaylist reads a playlist and every page of its tracks. Items without a track are skipped.
func (s *SpotifyService) ExportPlaylist(ctx context.Context, token, playlistID string) (*models.PlaylistExport, error) {
	sp, err := s.Playlist(ctx, token, playlistID)
	if err != nil {
		return nil, err
	}

	export := &models.PlaylistExport{Playlist: sp.toModel()}
	page := sp.Tracks
	for {
		for _, item := range page.Items {
			if item.Track == nil || item.Track.Name == "" {
				continue
			}
			export.Tracks = append(export.Tracks, item.Track.toModel())
		}

		next := deref(page.Next)
		if next == "" {
			break
		}
		page = SpotifyPlaylistTracks{}
		if err := s.api.do(ctx, http.MethodGet, next, token, nil, &page); err != nil {
			return nil, err
		}
	}
	return export, nil
}

// Search queries the track catalog. Spotify has no legacy search endpoint.
func (s *SpotifyService) Search(ctx context.Context, token string, q models.TrackQuery, limit int) ([]models.Candidate, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	params := url.Values{}
	params.Set("q", q.String())
	params.Set("type", "track")
	params.Set("limit", strconv.Itoa(limit))

	var resp spotifySearchResponse
	if err := s.api.do(ctx, http.MethodGet, s.baseURL+"/search?"+params.Encode(), token, nil, &resp); err != nil {
		return nil, err
	}

	candidates := make([]models.Candidate, 0, len(resp.Tracks.Items))
	for _, t := range resp.Tracks.Items {
		track := t.toModel()
		candidates = append(candidates, models.Candidate{
			ID:     t.ID,
			Title:  track.Title,
			Artist: track.Artist,
			URL:    t.ExternalURLs.Spotify,
		})
	}
	return candidates, nil
}

// CreatePlaylist creates a private playlist owned by the token's user.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, token, title, description string) (*models.Playlist, error) {
	user, err := s.UserProfile(ctx, token)
	if err != nil {
		return nil, err
	}

	body := map[string]any{"name": title, "description": description, "public": false}
	var created SpotifyPlaylist
	endpoint := s.baseURL + "/users/" + url.PathEscape(user.ID) + "/playlists"
	if err := s.api.doTimeout(ctx, s.api.timeout*3/2, http.MethodPost, endpoint, token, body, &created); err != nil {
		return nil, err
	}

	playlist := created.toModel()
	return &playlist, nil
}

// AddTracks appends ids in batches of 100.
func (s *SpotifyService) AddTracks(ctx context.Context, token, playlistID string, ids []string) (int, error) {
	endpoint := s.baseURL + "/playlists/" + url.PathEscape(playlistID) + "/tracks"
	added := 0

	for start := 0; start < len(ids); start += spotifyAddBatch {
		end := min(start+spotifyAddBatch, len(ids))
		uris := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			uris = append(uris, "spotify:track:"+id)
		}

		if err := s.api.do(ctx, http.MethodPost, endpoint, token, map[string]any{"uris": uris}, nil); err != nil {
			return added, fmt.Errorf("%w: %w", shared.ErrAttachFailed, err)
		}
		added = end
	}
	return added, nil
}

func (sp SpotifyPlaylist) toModel() models.Playlist {
	return models.Playlist{
		ID:          sp.ID,
		Name:        sp.Name,
		Description: sp.Description,
		TrackCount:  sp.Tracks.Total,
		Public:      sp.Public,
		URL:         sp.ExternalURLs.Spotify,
	}
}

func (t SpotifyTrack) toModel() models.Track {
	track := models.Track{
		ID:       t.ID,
		Title:    t.Name,
		Album:    t.Album.Name,
		Duration: t.DurationMS / 1000,
		ISRC:     t.ExternalIDs.ISRC,
	}
	if len(t.Artists) > 0 {
		track.Artist = t.Artists[0].Name
	}
	return track
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
