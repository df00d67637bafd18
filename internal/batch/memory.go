package batch

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is a Datastore kept in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	batches map[uint64]*Submission
	now     func() time.Time
}

var _ Datastore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		batches: make(map[uint64]*Submission),
		now:     time.Now,
	}
}

func (s *MemoryStore) InsertBatch(_ context.Context, batchNumber uint64) (*Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.batches[batchNumber]; exists {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateBatch, batchNumber)
	}
	if latest, ok := s.latest(); ok && batchNumber <= latest {
		return nil, fmt.Errorf("%w: %d after %d", ErrNonMonotonic, batchNumber, latest)
	}

	now := s.now()
	sub := &Submission{
		BatchNumber: batchNumber,
		Status:      StatusBuilding,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.batches[batchNumber] = sub

	return copySubmission(sub), nil
}

func (s *MemoryStore) MarkSent(_ context.Context, batchNumber uint64, txHash string) error {
	return s.transition(batchNumber, StatusBuilding, StatusSent, &txHash)
}

func (s *MemoryStore) MarkConfirmed(_ context.Context, batchNumber uint64) error {
	return s.transition(batchNumber, StatusSent, StatusConfirmed, nil)
}

func (s *MemoryStore) MarkFinal(_ context.Context, batchNumber uint64, txHash string) error {
	return s.transition(batchNumber, StatusConfirmed, StatusFinal, &txHash)
}

func (s *MemoryStore) MarkFailed(_ context.Context, batchNumber uint64) error {
	return s.transition(batchNumber, StatusSent, StatusFailed, nil)
}

func (s *MemoryStore) transition(batchNumber uint64, from, to Status, txHash *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.batches[batchNumber]
	if !ok {
		return fmt.Errorf("%w: %d", ErrBatchNotFound, batchNumber)
	}
	if sub.Status != from {
		return &BatchStatusInconsistencyError{BatchNumber: batchNumber, Expected: from, Actual: sub.Status}
	}

	sub.Status = to
	if txHash != nil {
		hash := *txHash
		sub.SubmissionTxHash = &hash
	}
	sub.UpdatedAt = s.now()

	return nil
}

func (s *MemoryStore) GetOldestBatch(_ context.Context, status Status) (*Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var oldest *Submission
	for _, sub := range s.batches {
		if sub.Status != status {
			continue
		}
		if oldest == nil || sub.BatchNumber < oldest.BatchNumber {
			oldest = sub
		}
	}
	if oldest == nil {
		return nil, nil
	}
	return copySubmission(oldest), nil
}

func (s *MemoryStore) GetBatch(_ context.Context, batchNumber uint64) (*Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.batches[batchNumber]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrBatchNotFound, batchNumber)
	}
	return copySubmission(sub), nil
}

func (s *MemoryStore) LatestBatchNumber(_ context.Context) (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest, ok := s.latest()
	return latest, ok, nil
}

func (s *MemoryStore) latest() (uint64, bool) {
	var (
		latest uint64
		found  bool
	)
	for n := range s.batches {
		if !found || n > latest {
			latest, found = n, true
		}
	}
	return latest, found
}

func copySubmission(sub *Submission) *Submission {
	out := *sub
	if sub.SubmissionTxHash != nil {
		hash := *sub.SubmissionTxHash
		out.SubmissionTxHash = &hash
	}
	return &out
}
