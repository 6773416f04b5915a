package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackbridge/internal/models"
	"github.com/desertthunder/trackbridge/internal/shared"
)

// ErrJobRunning is returned when a session submits a transfer while its previous one is still running.
var ErrJobRunning = fmt.Errorf("a transfer is already running for this session")

// QueuedMessage is reported between submission and the first engine update.
const QueuedMessage = "Transfer queued…"

// JobManager runs transfers in the background, at most one per session.
type JobManager struct {
	engine *TransferEngine
	base   context.Context
	logger *log.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
	last    map[string]*models.TransferJob
	wg      sync.WaitGroup
}

// NewJobManager creates a JobManager. Cancelling ctx cancels every running job.
func NewJobManager(ctx context.Context, engine *TransferEngine, logger *log.Logger) *JobManager {
	if logger == nil {
		logger = shared.NopLogger()
	}
	return &JobManager{
		engine:  engine,
		base:    ctx,
		logger:  logger,
		running: make(map[string]context.CancelFunc),
		last:    make(map[string]*models.TransferJob),
	}
}

// Submit starts req in the background and returns immediately. Progress is readable from the
// engine's registry as soon as Submit returns.
func (m *JobManager) Submit(req TransferRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.running[req.Session]; busy {
		return ErrJobRunning
	}

	ctx, cancel := context.WithCancel(m.base)
	m.running[req.Session] = cancel
	m.engine.progress.Set(req.Session, 0, QueuedMessage)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()

		job := m.engine.Run(ctx, req, nil)

		m.mu.Lock()
		delete(m.running, req.Session)
		m.last[req.Session] = job
		m.mu.Unlock()
	}()

	m.logger.Info("transfer submitted", "session", req.Session, "source", req.SourceURL)
	return nil
}

// Cancel cancels the session's running transfer. It reports whether one was running.
func (m *JobManager) Cancel(session string) bool {
	m.mu.Lock()
	cancel, ok := m.running[session]
	m.mu.Unlock()

	if ok {
		cancel()
	}
	return ok
}

// Running reports whether the session has a transfer in flight.
func (m *JobManager) Running(session string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[session]
	return ok
}

// Last returns the session's most recently finished job.
func (m *JobManager) Last(session string) (*models.TransferJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.last[session]
	return job, ok
}

// Progress returns the session's polled progress.
func (m *JobManager) Progress(session string) Progress {
	return m.engine.progress.Get(session)
}

// Wait blocks until every submitted transfer has finished.
func (m *JobManager) Wait() {
	m.wg.Wait()
}
