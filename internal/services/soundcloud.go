// SoundCloud API client implementing [Source] and [Destination]
package services

import (
	"bytes"
	"context"
	"encoding/json"
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
	soundcloudAuthURL   = "https://soundcloud.com/connect"
	soundcloudTokenURL  = "https://api.soundcloud.com/oauth2/token"
	soundcloudBaseURL   = "https://api.soundcloud.com"
	soundcloudSearchURL = "https://api-v2.soundcloud.com/search/tracks"
	soundcloudLegacyURL = "https://api.soundcloud.com/tracks"
)

type soundcloudUser struct {
	Username string `json:"username"`
}

// SoundCloudTrack is a track as returned by both search generations and playlist resources.
type SoundCloudTrack struct {
	ID           int64          `json:"id"`
	Title        string         `json:"title"`
	User         soundcloudUser `json:"user"`
	PermalinkURL string         `json:"permalink_url"`
	Duration     int            `json:"duration"` // milliseconds
}

// SoundCloudPlaylist is a playlist ("set") resource.
type SoundCloudPlaylist struct {
	Kind         string            `json:"kind"`
	ID           int64             `json:"id"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Sharing      string            `json:"sharing"`
	PermalinkURL string            `json:"permalink_url"`
	TrackCount   int               `json:"track_count"`
	Tracks       []SoundCloudTrack `json:"tracks"`
}

type soundcloudTrackRef struct {
	ID int64 `json:"id"`
}

type soundcloudPlaylistBody struct {
	Playlist soundcloudPlaylistFields `json:"playlist"`
}

type soundcloudPlaylistFields struct {
	Title       string               `json:"title,omitempty"`
	Description string               `json:"description,omitempty"`
	Sharing     string               `json:"sharing,omitempty"`
	Tracks      []soundcloudTrackRef `json:"tracks,omitempty"`
}

// collection decodes either {"collection": [...]} or a bare JSON array.
type collection[T any] struct {
	Items []T
}

func (c *collection[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &c.Items)
	}
	var wrapped struct {
		Collection []T `json:"collection"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	c.Items = wrapped.Collection
	return nil
}

// SoundCloudService talks to the SoundCloud API. Tokens are supplied per call and sent as "OAuth <token>".
type SoundCloudService struct {
	config    *oauth2.Config
	api       *apiClient
	baseURL   string
	searchURL string
	legacyURL string
}

// NewSoundCloudService creates a SoundCloud client for the registered application in creds.
func NewSoundCloudService(creds shared.ClientConfig, opts ...Option) (*SoundCloudService, error) {
	if creds.ClientID == "" {
		return nil, fmt.Errorf("%w: missing soundcloud client_id", shared.ErrMissingCredentials)
	}
	if creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing soundcloud client_secret", shared.ErrMissingCredentials)
	}

	s := newSettings(opts)
	config := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURI,
		Scopes:       []string{"non-expiring"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   orDefault(s.authURL, soundcloudAuthURL),
			TokenURL:  orDefault(s.tokenURL, soundcloudTokenURL),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	return &SoundCloudService{
		config:    config,
		api:       newAPIClient(models.SoundCloud, "OAuth", s),
		baseURL:   orDefault(s.baseURL, soundcloudBaseURL),
		searchURL: orDefault(s.searchURL, soundcloudSearchURL),
		legacyURL: orDefault(s.legacyURL, soundcloudLegacyURL),
	}, nil
}

func (s *SoundCloudService) Platform() models.Platform   { return models.SoundCloud }
func (s *SoundCloudService) OAuthConfig() *oauth2.Config { return s.config }

// ParsePlaylistRef accepts soundcloud.com set URLs and returns them without query or fragment.
func (s *SoundCloudService) ParsePlaylistRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if !strings.Contains(ref, "soundcloud.com") || !strings.Contains(ref, "/sets/") {
		return "", fmt.Errorf("%w: not a SoundCloud playlist URL", shared.ErrInvalidInput)
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// Search tries the v2 search endpoint and falls back to the legacy v1 endpoint once on any non-2xx
// answer other than 401.
func (s *SoundCloudService) Search(ctx context.Context, token string, q models.TrackQuery, limit int) ([]models.Candidate, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	params := url.Values{}
	params.Set("q", q.String())
	params.Set("limit", strconv.Itoa(limit))

	var found collection[SoundCloudTrack]
	err := s.api.do(ctx, http.MethodGet, s.searchURL+"?"+params.Encode(), token, nil, &found)
	if code, ok := statusCode(err); ok && code != http.StatusUnauthorized {
		s.api.logger.Debug("primary search failed, using legacy endpoint", "status", code)

		params.Set("linked_partitioning", "1")
		params.Set("client_id", s.config.ClientID)
		found = collection[SoundCloudTrack]{}
		err = s.api.do(ctx, http.MethodGet, s.legacyURL+"?"+params.Encode(), token, nil, &found)
	}
	if err != nil {
		return nil, err
	}

	candidates := make([]models.Candidate, 0, len(found.Items))
	for _, t := range found.Items {
		candidates = append(candidates, t.toCandidate())
	}
	return candidates, nil
}

// ExportPlaylist resolves a set URL into its playlist and tracks.
func (s *SoundCloudService) ExportPlaylist(ctx context.Context, token, ref string) (*models.PlaylistExport, error) {
	var playlist SoundCloudPlaylist
	endpoint := s.baseURL + "/resolve?" + url.Values{"url": {ref}}.Encode()
	if err := s.api.do(ctx, http.MethodGet, endpoint, token, nil, &playlist); err != nil {
		if code, ok := statusCode(err); ok && code == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %w", shared.ErrPlaylistNotFound, err)
		}
		return nil, err
	}
	if playlist.Kind != "" && playlist.Kind != "playlist" {
		return nil, fmt.Errorf("%w: %s resolves to a %s", shared.ErrPlaylistNotFound, ref, playlist.Kind)
	}

	export := &models.PlaylistExport{Playlist: playlist.toModel()}
	for _, t := range playlist.Tracks {
		if t.Title == "" {
			continue
		}
		export.Tracks = append(export.Tracks, t.toModel())
	}
	return export, nil
}

// Playlists lists the token owner's sets.
func (s *SoundCloudService) Playlists(ctx context.Context, token string) ([]models.Playlist, error) {
	var found collection[SoundCloudPlaylist]
	if err := s.api.do(ctx, http.MethodGet, s.baseURL+"/me/playlists", token, nil, &found); err != nil {
		return nil, err
	}
	out := make([]models.Playlist, 0, len(found.Items))
	for _, p := range found.Items {
		out = append(out, p.toModel())
	}
	return out, nil
}

// CreatePlaylist creates an empty private set.
func (s *SoundCloudService) CreatePlaylist(ctx context.Context, token, title, description string) (*models.Playlist, error) {
	body := soundcloudPlaylistBody{Playlist: soundcloudPlaylistFields{
		Title:       title,
		Description: description,
		Sharing:     "private",
	}}

	var created SoundCloudPlaylist
	if err := s.api.doTimeout(ctx, s.api.timeout*3/2, http.MethodPost, s.baseURL+"/playlists", token, body, &created); err != nil {
		return nil, err
	}
	playlist := created.toModel()
	return &playlist, nil
}

// AddTracks sets the playlist's track list in one PUT; SoundCloud replaces the whole list on update,
// so the ids are never split across calls.
func (s *SoundCloudService) AddTracks(ctx context.Context, token, playlistID string, ids []string) (int, error) {
	refs := make([]soundcloudTrackRef, 0, len(ids))
	for _, id := range ids {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %w: track id %q", shared.ErrAttachFailed, shared.ErrInvalidInput, id)
		}
		refs = append(refs, soundcloudTrackRef{ID: n})
	}
	if len(refs) == 0 {
		return 0, nil
	}

	body := soundcloudPlaylistBody{Playlist: soundcloudPlaylistFields{Tracks: refs}}
	endpoint := s.baseURL + "/playlists/" + url.PathEscape(playlistID)
	if err := s.api.do(ctx, http.MethodPut, endpoint, token, body, nil); err != nil {
		return 0, fmt.Errorf("%w: %w", shared.ErrAttachFailed, err)
	}
	return len(refs), nil
}

func (t SoundCloudTrack) toCandidate() models.Candidate {
	return models.Candidate{
		ID:     strconv.FormatInt(t.ID, 10),
		Title:  t.Title,
		Artist: t.User.Username,
		URL:    t.PermalinkURL,
	}
}

func (t SoundCloudTrack) toModel() models.Track {
	return models.Track{
		ID:       strconv.FormatInt(t.ID, 10),
		Title:    t.Title,
		Artist:   t.User.Username,
		Duration: t.Duration / 1000,
	}
}

func (p SoundCloudPlaylist) toModel() models.Playlist {
	return models.Playlist{
		ID:          strconv.FormatInt(p.ID, 10),
		Name:        p.Title,
		Description: p.Description,
		TrackCount:  max(p.TrackCount, len(p.Tracks)),
		Public:      p.Sharing == "public",
		URL:         p.PermalinkURL,
	}
}
