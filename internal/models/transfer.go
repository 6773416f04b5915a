package models

import (
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of a [TransferJob].
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusPartial   JobStatus = "partial"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transitions happen from s.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusPartial, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	return s == StatusQueued || s == StatusRunning || s.Terminal()
}

// TransferJob is one playlist migration run.
//
// It implements [Model] so finished runs can be stored as transfer history.
type TransferJob struct {
	id                  string
	sequence            int
	sessionID           string
	sourcePlatform      Platform
	destinationPlatform Platform
	sourceURL           string
	destinationURL      string
	status              JobStatus
	tracksTotal         int
	tracksFound         int
	tracksCreated       int
	percent             int
	message             string
	errorMessage        string
	warnings            []string
	startedAt           *time.Time
	completedAt         *time.Time
	createdAt           time.Time
	updatedAt           time.Time
}

// NewTransferJob creates a queued job.
func NewTransferJob(sessionID string, source, destination Platform, sourceURL string) *TransferJob {
	now := time.Now()
	return &TransferJob{
		sessionID:           sessionID,
		sourcePlatform:      source,
		destinationPlatform: destination,
		sourceURL:           sourceURL,
		status:              StatusQueued,
		message:             "Transfer queued…",
		createdAt:           now,
		updatedAt:           now,
	}
}

func (j *TransferJob) ID() string                    { return j.id }
func (j *TransferJob) Sequence() int                 { return j.sequence }
func (j *TransferJob) SessionID() string             { return j.sessionID }
func (j *TransferJob) SourcePlatform() Platform      { return j.sourcePlatform }
func (j *TransferJob) DestinationPlatform() Platform { return j.destinationPlatform }
func (j *TransferJob) SourceURL() string             { return j.sourceURL }
func (j *TransferJob) DestinationURL() string        { return j.destinationURL }
func (j *TransferJob) Status() JobStatus             { return j.status }
func (j *TransferJob) TracksTotal() int              { return j.tracksTotal }
func (j *TransferJob) TracksFound() int              { return j.tracksFound }
func (j *TransferJob) TracksCreated() int            { return j.tracksCreated }
func (j *TransferJob) Percent() int                  { return j.percent }
func (j *TransferJob) Message() string               { return j.message }
func (j *TransferJob) ErrorMessage() string          { return j.errorMessage }
func (j *TransferJob) Warnings() []string            { return j.warnings }
func (j *TransferJob) StartedAt() *time.Time         { return j.startedAt }
func (j *TransferJob) CompletedAt() *time.Time       { return j.completedAt }
func (j *TransferJob) CreatedAt() time.Time          { return j.createdAt }
func (j *TransferJob) UpdatedAt() time.Time          { return j.updatedAt }

func (j *TransferJob) SetID(id string)              { j.id = id }
func (j *TransferJob) SetSequence(seq int)          { j.sequence = seq }
func (j *TransferJob) SetDestinationURL(url string) { j.destinationURL = url }
func (j *TransferJob) SetTracksTotal(n int)         { j.tracksTotal = n }
func (j *TransferJob) SetTracksFound(n int)         { j.tracksFound = n }
func (j *TransferJob) SetTracksCreated(n int)       { j.tracksCreated = n }
func (j *TransferJob) SetErrorMessage(msg string)   { j.errorMessage = msg }
func (j *TransferJob) SetStartedAt(t *time.Time)    { j.startedAt = t }
func (j *TransferJob) SetCompletedAt(t *time.Time)  { j.completedAt = t }
func (j *TransferJob) SetCreatedAt(t time.Time)     { j.createdAt = t }
func (j *TransferJob) SetUpdatedAt(t time.Time)     { j.updatedAt = t }
func (j *TransferJob) AddWarning(w string)          { j.warnings = append(j.warnings, w) }
func (j *TransferJob) SetStatus(status JobStatus)   { j.status = status }

// Start moves a queued job to running.
func (j *TransferJob) Start() {
	now := time.Now()
	j.status = StatusRunning
	j.startedAt = &now
	j.updatedAt = now
}

// Report records progress. Percent never decreases and is clamped to [0, 100].
func (j *TransferJob) Report(percent int, message string) {
	percent = ClampPercent(percent)
	if percent > j.percent {
		j.percent = percent
	}
	j.message = message
	j.updatedAt = time.Now()
}

// Finish moves the job to a terminal status at 100%.
// It returns false when the job was already terminal, leaving it untouched.
func (j *TransferJob) Finish(status JobStatus, message string) bool {
	if j.status.Terminal() {
		return false
	}
	now := time.Now()
	j.status = status
	j.percent = 100
	j.message = message
	j.completedAt = &now
	j.updatedAt = now
	return true
}

// Validate checks the fields required for persistence.
func (j *TransferJob) Validate() error {
	if j.sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if j.sourcePlatform == "" || j.destinationPlatform == "" {
		return fmt.Errorf("source and destination platforms are required")
	}
	if !j.status.Valid() {
		return fmt.Errorf("invalid status %q", j.status)
	}
	if j.tracksFound > j.tracksTotal {
		return fmt.Errorf("tracks found (%d) exceeds total (%d)", j.tracksFound, j.tracksTotal)
	}
	return nil
}

// TransferSummary is the serializable view of a [TransferJob].
type TransferSummary struct {
	ID                  string     `json:"id"`
	SessionID           string     `json:"session_id"`
	SourcePlatform      Platform   `json:"source_platform"`
	DestinationPlatform Platform   `json:"destination_platform"`
	SourceURL           string     `json:"source_url"`
	DestinationURL      string     `json:"destination_url,omitempty"`
	Status              JobStatus  `json:"status"`
	TracksTotal         int        `json:"tracks_total"`
	TracksFound         int        `json:"tracks_found"`
	TracksCreated       int        `json:"tracks_created"`
	Percent             int        `json:"percent"`
	Message             string     `json:"message"`
	Error               string     `json:"error,omitempty"`
	Warnings            []string   `json:"warnings,omitempty"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
}

// Summary returns a copy of the job suitable for JSON output.
func (j *TransferJob) Summary() TransferSummary {
	return TransferSummary{
		ID:                  j.id,
		SessionID:           j.sessionID,
		SourcePlatform:      j.sourcePlatform,
		DestinationPlatform: j.destinationPlatform,
		SourceURL:           j.sourceURL,
		DestinationURL:      j.destinationURL,
		Status:              j.status,
		TracksTotal:         j.tracksTotal,
		TracksFound:         j.tracksFound,
		TracksCreated:       j.tracksCreated,
		Percent:             j.percent,
		Message:             j.message,
		Error:               j.errorMessage,
		Warnings:            append([]string(nil), j.warnings...),
		StartedAt:           j.startedAt,
		CompletedAt:         j.completedAt,
	}
}

// ClampPercent bounds p to [0, 100].
func ClampPercent(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
