// Package tasks orchestrates playlist transfers between music services with real-time progress reporting.
//
// # Core Operations
//
//  1. [TransferEngine.Run] : one playlist transfer
//     - Checks the session holds tokens for both platforms before any other call
//     - Exports the source playlist (or uses a track list read from a file)
//     - Resolves every track on the destination with bounded concurrency
//     - Creates a private playlist and attaches the matched tracks in source order
//
//  2. [TransferEngine.BulkExport] : write source playlists to files
//     - Paced fetches, a worker pool for writing, and a JSON manifest
//
// # Outcomes
//
// A job always ends at 100% exactly once. Zero matches end it as failed without creating a
// playlist. A created playlist whose tracks could not be attached ends it as partial, carrying
// the playlist link. Missing authorization ends it before any search. Per-track failures
// (no match, API errors, timeouts) are counted as misses and never stop the batch.
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, the overall percent, messages, and
// optional data for advanced UI rendering. Updates use select with default to prevent blocking.
// The search phase covers 20% to 95% of the bar, computed from a shared completed count so the
// percent never moves backwards when resolutions finish out of order.
//
// Every update is also mirrored into a [ProgressRegistry], which the HTTP layer polls in constant
// time. [JobManager] runs jobs in the background, one per session, and cancels them on request.
package tasks
