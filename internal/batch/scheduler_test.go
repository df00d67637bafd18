package batch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler(context.Background())
	err := s.Add("broken", "every now and then", func(context.Context) error { return nil }, nil)
	assert.Error(t, err)
}

func TestSchedulerStopsOnFatalError(t *testing.T) {
	s := NewScheduler(context.Background())

	var runs atomic.Int32
	fatal := &BatchStatusInconsistencyError{BatchNumber: 1, Expected: StatusSent, Actual: StatusFinal}
	require.NoError(t, s.Add("finalize", "@every 1s", func(context.Context) error {
		runs.Add(1)
		return fatal
	}, IsFatal))

	s.Start()
	defer s.Stop()

	select {
	case err := <-s.Err():
		assert.True(t, IsFatal(err))
		assert.True(t, errors.Is(err, fatal))
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not report the fatal error")
	}
	assert.Equal(t, int32(1), runs.Load())
}

func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	s := NewScheduler(context.Background())

	var running, overlaps, runs atomic.Int32
	require.NoError(t, s.Add("slow", "@every 1s", func(ctx context.Context) error {
		if running.Add(1) > 1 {
			overlaps.Add(1)
		}
		defer running.Add(-1)
		runs.Add(1)

		select {
		case <-ctx.Done():
		case <-time.After(2500 * time.Millisecond):
		}
		return nil
	}, nil))

	s.Start()
	time.Sleep(3500 * time.Millisecond)
	s.Stop()

	assert.Zero(t, overlaps.Load())
	assert.GreaterOrEqual(t, runs.Load(), int32(1))
}
