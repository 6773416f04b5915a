// package services defines the capabilities of music platforms and implements them for Spotify and SoundCloud
package services

import (
	"context"
	"fmt"
	"slices"

	"github.com/desertthunder/trackbridge/internal/models"
	"github.com/desertthunder/trackbridge/internal/shared"
	"golang.org/x/oauth2"
)

// DefaultSearchLimit is the number of candidates requested per search.
const DefaultSearchLimit = 10

// Platform is implemented by every platform client.
type Platform interface {
	// Platform names the service.
	Platform() models.Platform

	// OAuthConfig returns the client registration used for authorization and token refresh.
	OAuthConfig() *oauth2.Config
}

// Source exports playlists. Every call takes the caller's access token so one client serves all sessions.
type Source interface {
	Platform

	// ParsePlaylistRef validates a user supplied playlist URL and extracts the reference the
	// platform understands. Failures wrap [shared.ErrInvalidInput].
	ParsePlaylistRef(ref string) (string, error)

	// ExportPlaylist reads the playlist with all its tracks.
	ExportPlaylist(ctx context.Context, token, ref string) (*models.PlaylistExport, error)

	// Playlists lists the playlists of the token's owner.
	Playlists(ctx context.Context, token string) ([]models.Playlist, error)
}

// Destination searches the catalog and writes playlists.
type Destination interface {
	Platform

	// Search returns up to limit candidates for q. A 401 is returned unchanged so the caller can
	// refresh the token and retry; other failures wrap [shared.ErrAPIRequest].
	Search(ctx context.Context, token string, q models.TrackQuery, limit int) ([]models.Candidate, error)

	// CreatePlaylist creates an empty private playlist.
	CreatePlaylist(ctx context.Context, token, title, description string) (*models.Playlist, error)

	// AddTracks attaches ids in order and returns how many were attached before any failure.
	AddTracks(ctx context.Context, token, playlistID string, ids []string) (int, error)
}

// Registry holds the configured platform clients.
type Registry struct {
	sources      map[models.Platform]Source
	destinations map[models.Platform]Destination
	platforms    map[models.Platform]Platform
}

func NewRegistry() *Registry {
	return &Registry{
		sources:      make(map[models.Platform]Source),
		destinations: make(map[models.Platform]Destination),
		platforms:    make(map[models.Platform]Platform),
	}
}

// Register adds p under every capability it implements.
func (r *Registry) Register(p Platform) {
	r.platforms[p.Platform()] = p
	if s, ok := p.(Source); ok {
		r.sources[p.Platform()] = s
	}
	if d, ok := p.(Destination); ok {
		r.destinations[p.Platform()] = d
	}
}

func (r *Registry) Source(p models.Platform) (Source, error) {
	s, ok := r.sources[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot be used as a source", shared.ErrUnknownPlatform, p)
	}
	return s, nil
}

func (r *Registry) Destination(p models.Platform) (Destination, error) {
	d, ok := r.destinations[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot be used as a destination", shared.ErrUnknownPlatform, p)
	}
	return d, nil
}

// OAuthConfigs returns the client registration of every platform, keyed for the token store.
func (r *Registry) OAuthConfigs() map[models.Platform]*oauth2.Config {
	out := make(map[models.Platform]*oauth2.Config, len(r.platforms))
	for name, p := range r.platforms {
		out[name] = p.OAuthConfig()
	}
	return out
}

// AuthURL returns the authorization URL of platform p carrying state.
func (r *Registry) AuthURL(p models.Platform, state string) (string, error) {
	platform, ok := r.platforms[p]
	if !ok {
		return "", fmt.Errorf("%w: %s", shared.ErrUnknownPlatform, p)
	}
	return platform.OAuthConfig().AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// Platforms lists the registered platforms.
func (r *Registry) Platforms() []models.Platform {
	out := make([]models.Platform, 0, len(r.platforms))
	for p := range r.platforms {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}
