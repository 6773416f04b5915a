package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/trackbridge/internal/models"
	"github.com/desertthunder/trackbridge/internal/tasks"
)

var (
	_ tea.Msg = playlistsFetchedMsg{}
	_ tea.Msg = tracksFetchedMsg{}
	_ tea.Msg = progressMsg{}
	_ tea.Msg = transferDoneMsg{}
)

type playlistsFetchedMsg struct {
	playlists []models.Playlist
	err       error
}

type tracksFetchedMsg struct {
	playlist *models.PlaylistExport
	err      error
}

// progressMsg carries one engine update.
type progressMsg tasks.ProgressUpdate

// transferDoneMsg arrives once the engine returned and its progress channel is drained.
type transferDoneMsg struct {
	job *models.TransferJob
}
