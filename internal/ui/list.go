package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/trackbridge/internal/models"
)

var (
	_ list.Item = playlistItem{}
	_ list.Item = trackItem{}
)

// playlistItem wraps [models.Playlist] to implement [list.Item].
type playlistItem struct {
	playlist models.Playlist
}

func (i playlistItem) FilterValue() string { return i.playlist.Name }
func (i playlistItem) Title() string       { return i.playlist.Name }
func (i playlistItem) Description() string {
	parts := []string{fmt.Sprintf("%d tracks", i.playlist.TrackCount)}
	if !i.playlist.Public {
		parts = append(parts, "private")
	}
	if i.playlist.Description != "" {
		parts = append(parts, i.playlist.Description)
	}
	return strings.Join(parts, " • ")
}

// trackItem wraps [models.Track] to implement [list.Item]. Filtering matches the search string
// sent to the destination.
type trackItem struct {
	track models.Track
}

func (i trackItem) FilterValue() string { return i.track.Query().String() }
func (i trackItem) Title() string       { return i.track.Title }
func (i trackItem) Description() string {
	parts := []string{i.track.Artist}
	if i.track.Album != "" {
		parts = append(parts, i.track.Album)
	}
	if i.track.Duration > 0 {
		parts = append(parts, fmt.Sprintf("%d:%02d", i.track.Duration/60, i.track.Duration%60))
	}
	return strings.Join(parts, " • ")
}

func playlistItems(playlists []models.Playlist) []list.Item {
	items := make([]list.Item, len(playlists))
	for i, pl := range playlists {
		items[i] = playlistItem{playlist: pl}
	}
	return items
}

func trackItems(tracks []models.Track) []list.Item {
	items := make([]list.Item, len(tracks))
	for i, t := range tracks {
		items[i] = trackItem{track: t}
	}
	return items
}
