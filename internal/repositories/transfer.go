package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/trackbridge/internal/models"
	"github.com/desertthunder/trackbridge/internal/shared"
)

// TransferRepository implements models.Repository[*models.TransferJob] for transfer history.
type TransferRepository struct {
	db *sql.DB
}

// NewTransferRepository creates a new TransferRepository with the given database connection
func NewTransferRepository(db *sql.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

const transferColumns = `
	id, sequence, session_id, source_platform, destination_platform,
	source_url, destination_url, status, message, tracks_total,
	tracks_found, tracks_created, error_message, started_at,
	completed_at, created_at, updated_at
`

// Create inserts a new transfer with generated ID and sequence
func (r *TransferRepository) Create(ctx context.Context, job *models.TransferJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}

	sequence, err := NextSequence(ctx, r.db, "transfers")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()

	query := `INSERT INTO transfers (` + transferColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		id,
		sequence,
		job.SessionID(),
		job.SourcePlatform(),
		job.DestinationPlatform(),
		job.SourceURL(),
		nullable(job.DestinationURL()),
		job.Status(),
		job.Message(),
		job.TracksTotal(),
		job.TracksFound(),
		job.TracksCreated(),
		nullable(job.ErrorMessage()),
		job.StartedAt(),
		job.CompletedAt(),
		job.CreatedAt(),
		job.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transfer: %w", err)
	}

	job.SetID(id)
	job.SetSequence(sequence)
	return nil
}

// Get retrieves a transfer by ID
func (r *TransferRepository) Get(ctx context.Context, id string) (*models.TransferJob, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE id = ?`
	return scanTransfer(r.db.QueryRowContext(ctx, query, id))
}

// Update writes the mutable fields of an existing transfer
func (r *TransferRepository) Update(ctx context.Context, job *models.TransferJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}

	now := time.Now()
	job.SetUpdatedAt(now)

	query := `
		UPDATE transfers
		SET destination_url = ?, status = ?, message = ?, tracks_total = ?,
			tracks_found = ?, tracks_created = ?, error_message = ?,
			started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		nullable(job.DestinationURL()),
		job.Status(),
		job.Message(),
		job.TracksTotal(),
		job.TracksFound(),
		job.TracksCreated(),
		nullable(job.ErrorMessage()),
		job.StartedAt(),
		job.CompletedAt(),
		now,
		job.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update transfer: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: transfer %s", shared.ErrRecordNotFound, job.ID())
	}

	return nil
}

// Save creates the transfer on first call and updates it afterwards.
func (r *TransferRepository) Save(ctx context.Context, job *models.TransferJob) error {
	if job.ID() == "" {
		return r.Create(ctx, job)
	}
	return r.Update(ctx, job)
}

// List retrieves transfers matching the given criteria, newest first.
//
// Supported criteria: session_id, status, destination_platform (strings) and limit (int).
func (r *TransferRepository) List(ctx context.Context, criteria map[string]any) ([]*models.TransferJob, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE 1 = 1`
	args := []any{}

	if sessionID, ok := criteria["session_id"].(string); ok && sessionID != "" {
		query += " AND session_id = ?"
		args = append(args, sessionID)
	}

	if status, ok := criteria["status"].(string); ok && status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	if destination, ok := criteria["destination_platform"].(string); ok && destination != "" {
		query += " AND destination_platform = ?"
		args = append(args, destination)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}
	defer rows.Close()

	var jobs []*models.TransferJob
	for rows.Next() {
		job, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return jobs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanTransfer scans a [sql.Row] or the current row of [sql.Rows] into a [models.TransferJob]
func scanTransfer(row scanner) (*models.TransferJob, error) {
	var (
		id                  string
		sequence            int
		sessionID           string
		sourcePlatform      string
		destinationPlatform string
		sourceURL           string
		destinationURL      sql.NullString
		status              string
		message             string
		tracksTotal         int
		tracksFound         int
		tracksCreated       int
		errorMessage        sql.NullString
		startedAt           sql.NullTime
		completedAt         sql.NullTime
		createdAt           time.Time
		updatedAt           time.Time
	)

	err := row.Scan(
		&id, &sequence, &sessionID, &sourcePlatform, &destinationPlatform,
		&sourceURL, &destinationURL, &status, &message, &tracksTotal,
		&tracksFound, &tracksCreated, &errorMessage, &startedAt,
		&completedAt, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transfer", shared.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transfer: %w", err)
	}

	job := models.NewTransferJob(sessionID, models.Platform(sourcePlatform), models.Platform(destinationPlatform), sourceURL)
	job.SetID(id)
	job.SetSequence(sequence)
	job.SetStatus(models.JobStatus(status))
	job.SetTracksTotal(tracksTotal)
	job.SetTracksFound(tracksFound)
	job.SetTracksCreated(tracksCreated)
	if destinationURL.Valid {
		job.SetDestinationURL(destinationURL.String)
	}
	if errorMessage.Valid {
		job.SetErrorMessage(errorMessage.String)
	}
	if startedAt.Valid {
		job.SetStartedAt(&startedAt.Time)
	}
	if completedAt.Valid {
		job.SetCompletedAt(&completedAt.Time)
	}

	percent := 0
	if job.Status().Terminal() {
		percent = 100
	}
	job.Report(percent, message)
	job.SetCreatedAt(createdAt)
	job.SetUpdatedAt(updatedAt)

	return job, nil
}
