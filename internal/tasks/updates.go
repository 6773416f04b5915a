package tasks

import (
	"fmt"

	"github.com/desertthunder/trackbridge/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Percent int    // Overall job percent, 0-100
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	Validate Phase = iota
	FetchSource
	SearchTracks
	CreatePlaylist
	AddTracks
	Finished
	ExportPlaylist
)

func (p Phase) String() string {
	switch p {
	case Validate:
		return "validate"
	case FetchSource:
		return "fetch_source"
	case SearchTracks:
		return "search_tracks"
	case CreatePlaylist:
		return "create_playlist"
	case AddTracks:
		return "add_tracks"
	case Finished:
		return "finished"
	case ExportPlaylist:
		return "export_playlist"
	default:
		return ""
	}
}

func validateUpdate(percent int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Validate,
		Step:    1,
		Total:   1,
		Percent: percent,
		Message: "Checking authorization...",
	}
}

func fetchSourceUpdate(percent int, p models.Platform) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchSource,
		Step:    1,
		Total:   1,
		Percent: percent,
		Message: fmt.Sprintf("Fetching source playlist from %s...", p.DisplayName()),
	}
}

func foundPlaylistUpdate(percent int, export *models.PlaylistExport) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchSource,
		Step:    1,
		Total:   1,
		Percent: percent,
		Message: fmt.Sprintf("Found playlist: %s (%d tracks)", export.Playlist.Name, len(export.Tracks)),
		Data:    export,
	}
}

func searchTrackUpdate(step, total, percent int, q models.TrackQuery, matched bool) ProgressUpdate {
	mark := "✓"
	if !matched {
		mark = "✗"
	}
	return ProgressUpdate{
		Phase:   SearchTracks,
		Step:    step,
		Total:   total,
		Percent: percent,
		Message: fmt.Sprintf("[%d/%d] %s %s", step, total, mark, q.Label()),
		Data:    matched,
	}
}

func createDestinationUpdate(percent int, p models.Platform) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CreatePlaylist,
		Step:    1,
		Total:   1,
		Percent: percent,
		Message: fmt.Sprintf("Creating playlist on %s...", p.DisplayName()),
	}
}

func addTracksUpdate(percent, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   AddTracks,
		Step:    1,
		Total:   1,
		Percent: percent,
		Message: fmt.Sprintf("Adding %d tracks...", count),
	}
}

func finishedUpdate(job *models.TransferJob) ProgressUpdate {
	summary := job.Summary()
	return ProgressUpdate{
		Phase:   Finished,
		Step:    1,
		Total:   1,
		Percent: summary.Percent,
		Message: summary.Message,
		Data:    summary,
	}
}

func exportingPlaylistUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Exporting: %s...", step, total, name),
	}
}

func exportCompletedUpdate(step, total int, name string, filesCount int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d files)", step, total, name, filesCount),
	}
}

func exportFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name, err),
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
