package models

import "time"

// TokenRecord holds the OAuth credentials of one session on one platform.
type TokenRecord struct {
	SessionID    string     `json:"session_id"`
	Platform     Platform   `json:"platform"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	TokenType    string     `json:"token_type,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"` // nil when the platform does not report expiry
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Stale reports whether the access token must be refreshed before use.
// Records without an expiry never go stale.
func (r TokenRecord) Stale(now time.Time, skew time.Duration) bool {
	if r.ExpiresAt == nil {
		return false
	}
	return !now.Before(r.ExpiresAt.Add(-skew))
}

// CanRefresh reports whether a refresh token is available.
func (r TokenRecord) CanRefresh() bool {
	return r.RefreshToken != ""
}
