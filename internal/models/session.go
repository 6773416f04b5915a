package models

import "time"

// Session scopes one user's stored credentials and job progress.
type Session struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// NewSession starts a session at now.
func NewSession(id string, now time.Time) Session {
	return Session{ID: id, CreatedAt: now, LastActivity: now}
}

// Touch records activity at now. Older timestamps are ignored.
func (s *Session) Touch(now time.Time) {
	if now.After(s.LastActivity) {
		s.LastActivity = now
	}
}
