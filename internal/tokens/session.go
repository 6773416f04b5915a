package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/trackbridge/internal/models"
	"github.com/desertthunder/trackbridge/internal/shared"
)

// Sessions records session creation and last activity in the same [KeyValue] as the tokens.
type Sessions struct {
	kv  KeyValue
	now func() time.Time
}

func NewSessions(kv KeyValue) *Sessions {
	return &Sessions{kv: kv, now: time.Now}
}

func sessionKey(id string) string {
	return "session:" + id
}

// Touch loads the session, creating it on first reference, and bumps its last activity.
func (s *Sessions) Touch(ctx context.Context, id string) (models.Session, error) {
	if id == "" {
		return models.Session{}, fmt.Errorf("%w: empty session id", shared.ErrInvalidInput)
	}

	now := s.now()
	sess, err := s.Get(ctx, id)
	switch {
	case errors.Is(err, shared.ErrRecordNotFound):
		sess = models.NewSession(id, now)
	case err != nil:
		return models.Session{}, err
	default:
		sess.Touch(now)
	}

	raw, err := json.Marshal(sess)
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.kv.Put(ctx, sessionKey(id), raw); err != nil {
		return models.Session{}, err
	}
	return sess, nil
}

// Get returns the stored session or [shared.ErrRecordNotFound].
func (s *Sessions) Get(ctx context.Context, id string) (models.Session, error) {
	raw, err := s.kv.Get(ctx, sessionKey(id))
	if err != nil {
		return models.Session{}, err
	}
	var sess models.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return models.Session{}, fmt.Errorf("failed to decode session: %w", err)
	}
	return sess, nil
}
