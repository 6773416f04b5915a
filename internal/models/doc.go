// Package models defines the domain entities shared by the trackbridge packages.
//
// The package contains three groups of types:
//
// 1. Catalog DTOs describing external service data
//   - [Playlist] : Basic playlist metadata
//   - [PlaylistExport] : Playlist with its complete track listing
//   - [Track] : Song metadata used as the source of a [TrackQuery]
//
// 2. Resolution types
//   - [TrackQuery] : The (title, artist) pair resolved on a destination
//   - [Candidate] : One destination search hit
//   - [ScoredMatch] : A candidate with its fuzzy score
//
// 3. Session state
//   - [TokenRecord] : Per (session, platform) OAuth credentials
//   - [TransferJob] : One playlist migration run and its progress
//
// Persistent entities implement the [Model] interface and are stored through a [Repository].
package models
