package tasks

import (
	"sync"

	"github.com/desertthunder/trackbridge/internal/models"
)

// WaitingMessage is reported for sessions that have not started a transfer.
const WaitingMessage = "Waiting…"

// Progress is the polled view of a session's current transfer.
type Progress struct {
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// ProgressRegistry holds the last known progress of every session.
//
// Entries are created on first write and live for the life of the process. Reads never block on
// a running job.
type ProgressRegistry struct {
	mu      sync.RWMutex
	entries map[string]Progress
}

func NewProgressRegistry() *ProgressRegistry {
	return &ProgressRegistry{entries: make(map[string]Progress)}
}

// Set stores the session's progress, clamping percent to [0, 100]. Last write wins.
func (r *ProgressRegistry) Set(session string, percent int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[session] = Progress{Percent: models.ClampPercent(percent), Message: message}
}

// Get returns the session's progress, or {0, "Waiting…"} for unknown sessions.
func (r *ProgressRegistry) Get(session string) Progress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.entries[session]; ok {
		return p
	}
	return Progress{Percent: 0, Message: WaitingMessage}
}

// Track mirrors the job's progress into the registry.
func (r *ProgressRegistry) Track(job *models.TransferJob) {
	r.Set(job.SessionID(), job.Percent(), job.Message())
}
