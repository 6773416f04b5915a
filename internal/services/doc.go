// Package services implements the music platform clients.
//
// # Capabilities
//
// A platform client implements [Platform] plus [Source] (playlist export) and/or [Destination]
// (catalog search and playlist writes). The [Registry] looks clients up by [models.Platform].
// Clients hold no user credentials: every call takes the session's access token, so one client
// serves every session.
//
// # Spotify
//
// [SpotifyService] uses bearer tokens. Playlist exports follow the "next" links of paginated
// track lists. Tracks are added in batches of 100.
//
// # SoundCloud
//
// [SoundCloudService] sends "Authorization: OAuth <token>". Search goes to the v2 endpoint and
// falls back once to the legacy v1 endpoint on a non-2xx answer other than 401. Responses may be
// a {"collection": [...]} envelope or a bare list.
//
// # Error Handling
//
// Non-2xx answers are returned as [*StatusError], which matches [shared.ErrAPIRequest] and, for a
// 401, [shared.ErrUnauthorized]. Transport failures wrap [shared.ErrAPIRequest], and timeouts also
// wrap [shared.ErrTimeout]. Throttling and server errors are retried with [shared.Retry] before
// they are returned.
package services
