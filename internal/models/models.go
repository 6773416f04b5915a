// package models defines the data model for the playlist migration service
package models

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Model defines the base interface for persistent models.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
type Repository[T Model] interface {
	Create(ctx context.Context, model T) error                      // Create inserts a new model
	Get(ctx context.Context, id string) (T, error)                  // Get retrieves a model by its ID
	Update(ctx context.Context, model T) error                      // Update modifies an existing model
	List(ctx context.Context, criteria map[string]any) ([]T, error) // List retrieves all models matching the criteria
}

// Platform names an external music service.
type Platform string

const (
	Spotify    Platform = "spotify"
	SoundCloud Platform = "soundcloud"
)

// ParsePlatform maps a user supplied name onto a known [Platform].
func ParsePlatform(name string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "spotify", "sp":
		return Spotify, nil
	case "soundcloud", "sc":
		return SoundCloud, nil
	default:
		return "", fmt.Errorf("unknown platform %q", name)
	}
}

// DisplayName returns the human readable platform name.
func (p Platform) DisplayName() string {
	switch p {
	case Spotify:
		return "Spotify"
	case SoundCloud:
		return "SoundCloud"
	default:
		return string(p)
	}
}

// Playlist represents a music playlist from any service
type Playlist struct {
	ID          string
	Name        string
	Description string
	TrackCount  int
	Public      bool
	URL         string
}

// PlaylistExport represents a playlist with all its tracks for migration
type PlaylistExport struct {
	Playlist Playlist
	Tracks   []Track
}

// Track represents a music track from any service
type Track struct {
	ID       string
	Title    string
	Artist   string
	Album    string
	Duration int    // Duration in seconds
	ISRC     string // International Standard Recording Code
}

// Query returns the [TrackQuery] used to resolve the track elsewhere.
func (t Track) Query() TrackQuery {
	return TrackQuery{Title: t.Title, Artist: t.Artist}
}

// TrackQuery is the (title, artist) pair extracted from a source playlist. Artist may be empty.
type TrackQuery struct {
	Title  string
	Artist string
}

// String joins title and artist into the search string sent to platforms.
func (q TrackQuery) String() string {
	return strings.TrimSpace(q.Title + " " + q.Artist)
}

// Label renders the query for progress messages.
func (q TrackQuery) Label() string {
	if q.Artist == "" {
		return q.Title
	}
	return q.Title + " - " + q.Artist
}

// Candidate is a destination platform search hit.
type Candidate struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
	URL    string `json:"url"`
}

// ScoredMatch pairs a [Candidate] with its similarity score in [0, 1].
type ScoredMatch struct {
	Candidate Candidate `json:"candidate"`
	Score     float64   `json:"score"`
}
