// Package batch tracks L2 batch submissions to L1 from local assembly to finality.
package batch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

type Status string

const (
	StatusBuilding  Status = "BUILDING"
	StatusSent      Status = "SENT"
	StatusConfirmed Status = "CONFIRMED"
	StatusFinal     Status = "FINAL"
	StatusFailed    Status = "FAILED"
)

// transitions lists the statuses each status may move to.
var transitions = map[Status][]Status{
	StatusBuilding:  {StatusSent},
	StatusSent:      {StatusConfirmed, StatusFailed},
	StatusConfirmed: {StatusFinal},
}

// CanTransition reports whether a batch in status from may move to status to.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

func (s Status) Valid() bool {
	switch s {
	case StatusBuilding, StatusSent, StatusConfirmed, StatusFinal, StatusFailed:
		return true
	default:
		return false
	}
}

type (
	Submission struct {
		BatchNumber      uint64    `db:"batch_number" json:"batchNumber" yaml:"batchNumber"`
		SubmissionTxHash *string   `db:"submission_tx_hash" json:"submissionTxHash" yaml:"submissionTxHash"`
		Status           Status    `db:"status" json:"status" yaml:"status"`
		CreatedAt        time.Time `db:"created_at" json:"createdAt" yaml:"createdAt"`
		UpdatedAt        time.Time `db:"updated_at" json:"updatedAt" yaml:"updatedAt"`
	}

	// Datastore persists submissions. Every Mark* call is a compare-and-set on the
	// current status and fails with BatchStatusInconsistencyError when the stored
	// status is not the expected predecessor.
	Datastore interface {
		InsertBatch(ctx context.Context, batchNumber uint64) (*Submission, error)
		MarkSent(ctx context.Context, batchNumber uint64, txHash string) error
		MarkConfirmed(ctx context.Context, batchNumber uint64) error
		MarkFinal(ctx context.Context, batchNumber uint64, txHash string) error
		MarkFailed(ctx context.Context, batchNumber uint64) error
		// GetOldestBatch returns the lowest numbered batch in status, nil if none.
		GetOldestBatch(ctx context.Context, status Status) (*Submission, error)
		GetBatch(ctx context.Context, batchNumber uint64) (*Submission, error)
		// LatestBatchNumber returns the highest batch number, false when empty.
		LatestBatchNumber(ctx context.Context) (uint64, bool, error)
	}

	// BatchStatusInconsistencyError reports a stored status the tracker did not
	// expect. The datastore can no longer be trusted and the tracker must stop.
	BatchStatusInconsistencyError struct {
		BatchNumber uint64
		Expected    Status
		Actual      Status
		Reason      string
	}
)

var (
	ErrBatchNotFound  = errors.New("batch not found")
	ErrNonMonotonic   = errors.New("batch numbers must increase")
	ErrDuplicateBatch = errors.New("batch already exists")
)

func (e *BatchStatusInconsistencyError) Error() string {
	msg := fmt.Sprintf("batch %d is %s, expected %s", e.BatchNumber, e.Actual, e.Expected)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// IsFatal reports whether err means the datastore is in an unexpected state.
func IsFatal(err error) bool {
	var inconsistency *BatchStatusInconsistencyError
	return errors.As(err, &inconsistency)
}

func (s *Submission) TxHash() string {
	if s.SubmissionTxHash == nil {
		return ""
	}
	return *s.SubmissionTxHash
}
