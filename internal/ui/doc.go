// Package ui implements the interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI walks through a playlist transfer:
//  1. [PlaylistListView] : browse and select a source playlist
//  2. [TrackListView] : preview its tracks
//  3. [ConfirmView] : confirm the destination
//  4. [TransferView] : a progress bar fed by the engine's updates, with the latest matches
//  5. [ResultView] : the job's outcome, destination link and missing tracks
//
// When [Config.Request] is set (a URL or a track list given on the command line) the TUI starts
// in [TransferView] and quits from [ResultView].
//
// Updates flow from the engine through a buffered channel. A single command waits on it at a
// time, so updates reach [Model.Update] in the order they were sent. Quitting during a transfer
// cancels it and waits for the engine to record the cancelled job.
package ui
