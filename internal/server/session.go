package server

import (
	"net/http"

	"github.com/desertthunder/trackbridge/internal/shared"
)

// SessionCookie names the cookie carrying the session id.
const SessionCookie = "session_id"

const sessionMaxAge = 30 * 24 * 60 * 60

// sessionID returns the request's session id. The session_id query parameter wins over the cookie.
func sessionID(r *http.Request) string {
	if id := r.URL.Query().Get(SessionCookie); id != "" {
		return id
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// ensureSession returns the request's session id, issuing a new one when absent, and (re)sets the cookie.
func ensureSession(w http.ResponseWriter, r *http.Request) string {
	id := sessionID(r)
	if id == "" {
		id = shared.GenerateID()
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
	return id
}
