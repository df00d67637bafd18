// Package postgres is the PostgreSQL batch.Datastore.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/compose-network/xdomain-relayer/internal/batch"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

type Store struct {
	db *sqlx.DB
}

var _ batch.Datastore = (*Store)(nil)

// Open connects to dsn and applies pending migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := Migrate(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}

	return New(db), nil
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InsertBatch inserts a BUILDING row. The insert only succeeds when batchNumber is
// above every stored number, checked in the same statement.
func (s *Store) InsertBatch(ctx context.Context, batchNumber uint64) (*batch.Submission, error) {
	var sub batch.Submission
	err := s.db.GetContext(ctx, &sub, `
		INSERT INTO batch_submissions (batch_number, status)
		SELECT $1::BIGINT, $2::TEXT
		WHERE NOT EXISTS (SELECT 1 FROM batch_submissions WHERE batch_number >= $1::BIGINT)
		RETURNING batch_number, submission_tx_hash, status, created_at, updated_at`,
		batchNumber, batch.StatusBuilding,
	)

	var pqErr *pq.Error
	switch {
	case errors.As(err, &pqErr) && pqErr.Code == uniqueViolation:
		return nil, fmt.Errorf("%w: %d", batch.ErrDuplicateBatch, batchNumber)
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("%w: %d", batch.ErrNonMonotonic, batchNumber)
	case err != nil:
		return nil, fmt.Errorf("failed to insert batch: %w", err)
	}

	return &sub, nil
}

func (s *Store) MarkSent(ctx context.Context, batchNumber uint64, txHash string) error {
	return s.transition(ctx, batchNumber, batch.StatusBuilding, batch.StatusSent, &txHash)
}

func (s *Store) MarkConfirmed(ctx context.Context, batchNumber uint64) error {
	return s.transition(ctx, batchNumber, batch.StatusSent, batch.StatusConfirmed, nil)
}

func (s *Store) MarkFinal(ctx context.Context, batchNumber uint64, txHash string) error {
	return s.transition(ctx, batchNumber, batch.StatusConfirmed, batch.StatusFinal, &txHash)
}

func (s *Store) MarkFailed(ctx context.Context, batchNumber uint64) error {
	return s.transition(ctx, batchNumber, batch.StatusSent, batch.StatusFailed, nil)
}

// transition is a compare-and-set on status. When no row matched, the current row
// is read back to tell a missing batch from an unexpected status.
func (s *Store) transition(ctx context.Context, batchNumber uint64, from, to batch.Status, txHash *string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE batch_submissions
		SET status = $1, submission_tx_hash = COALESCE($2::TEXT, submission_tx_hash), updated_at = NOW()
		WHERE batch_number = $3 AND status = $4`,
		to, txHash, batchNumber, from,
	)
	if err != nil {
		return fmt.Errorf("failed to update batch %d to %s: %w", batchNumber, to, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 1 {
		return nil
	}

	current, err := s.GetBatch(ctx, batchNumber)
	if err != nil {
		return err
	}
	return &batch.BatchStatusInconsistencyError{BatchNumber: batchNumber, Expected: from, Actual: current.Status}
}

func (s *Store) GetOldestBatch(ctx context.Context, status batch.Status) (*batch.Submission, error) {
	var sub batch.Submission
	err := s.db.GetContext(ctx, &sub, `
		SELECT batch_number, submission_tx_hash, status, created_at, updated_at
		FROM batch_submissions
		WHERE status = $1
		ORDER BY batch_number ASC
		LIMIT 1`,
		status,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch oldest %s batch: %w", status, err)
	}
	return &sub, nil
}

func (s *Store) GetBatch(ctx context.Context, batchNumber uint64) (*batch.Submission, error) {
	var sub batch.Submission
	err := s.db.GetContext(ctx, &sub, `
		SELECT batch_number, submission_tx_hash, status, created_at, updated_at
		FROM batch_submissions
		WHERE batch_number = $1`,
		batchNumber,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", batch.ErrBatchNotFound, batchNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch batch %d: %w", batchNumber, err)
	}
	return &sub, nil
}

func (s *Store) LatestBatchNumber(ctx context.Context) (uint64, bool, error) {
	var latest sql.NullInt64
	if err := s.db.GetContext(ctx, &latest, `SELECT MAX(batch_number) FROM batch_submissions`); err != nil {
		return 0, false, fmt.Errorf("failed to fetch latest batch number: %w", err)
	}
	if !latest.Valid {
		return 0, false, nil
	}
	return uint64(latest.Int64), true, nil
}
