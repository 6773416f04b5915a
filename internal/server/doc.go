// Package server provides HTTP routing, middleware, the transfer API and OAuth callback handling.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support. [BasicRouter] uses
// [http.ServeMux] method patterns, so handlers read path wildcards with [http.Request.PathValue].
//
// [Middleware] is applied in registration order: the first added runs first. [Logging] and
// [Recover] are the standard stack.
//
// # Transfer API
//
// [API] serves:
//   - POST /transfer?spotify_url=&session_id= : validates the playlist url and the session's
//     authorizations, then starts a background job (202, 400, 401 with an auth_url, or 409)
//   - GET /progress?session_id= : {"percent", "message"} of the session's job, never blocking
//   - POST /cancel, GET /history, GET /health
//   - GET /auth/{platform} and GET /callback/{platform} : the browser authorization flow
//
// The session id is read from the session_id query parameter, then from the session_id cookie.
// A request carrying neither is issued a new id in an HttpOnly cookie.
//
// # OAuth Callback Handler
//
// [OAuthHandler] completes a single authorization-code callback for the command line login. It
// validates the state parameter, exchanges the code and sends the token through a channel. A
// temporary server on localhost serves it and shuts down once the token arrives.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which adds a route list to [http.Handler] so
// one handler can register several routes.
package server
