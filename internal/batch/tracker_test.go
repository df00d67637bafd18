package batch

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/compose-network/xdomain-relayer/internal/chain/chaintest"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingStore remembers every status a batch was moved into.
type recordingStore struct {
	*MemoryStore
	seen map[uint64][]Status
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: NewMemoryStore(), seen: make(map[uint64][]Status)}
}

func (s *recordingStore) InsertBatch(ctx context.Context, n uint64) (*Submission, error) {
	sub, err := s.MemoryStore.InsertBatch(ctx, n)
	if err == nil {
		s.seen[n] = append(s.seen[n], StatusBuilding)
	}
	return sub, err
}

func (s *recordingStore) record(n uint64, status Status, err error) error {
	if err == nil {
		s.seen[n] = append(s.seen[n], status)
	}
	return err
}

func (s *recordingStore) MarkSent(ctx context.Context, n uint64, h string) error {
	return s.record(n, StatusSent, s.MemoryStore.MarkSent(ctx, n, h))
}

func (s *recordingStore) MarkConfirmed(ctx context.Context, n uint64) error {
	return s.record(n, StatusConfirmed, s.MemoryStore.MarkConfirmed(ctx, n))
}

func (s *recordingStore) MarkFinal(ctx context.Context, n uint64, h string) error {
	return s.record(n, StatusFinal, s.MemoryStore.MarkFinal(ctx, n, h))
}

func (s *recordingStore) MarkFailed(ctx context.Context, n uint64) error {
	return s.record(n, StatusFailed, s.MemoryStore.MarkFailed(ctx, n))
}

// brokenStore hands out a batch in the wrong status.
type brokenStore struct {
	*MemoryStore
}

func (brokenStore) GetOldestBatch(context.Context, Status) (*Submission, error) {
	hash := "0x01"
	return &Submission{BatchNumber: 3, Status: StatusFinal, SubmissionTxHash: &hash}, nil
}

// flakyFinalStore fails the next failures MarkFinal calls.
type flakyFinalStore struct {
	*recordingStore
	failures int
}

func (s *flakyFinalStore) MarkFinal(ctx context.Context, n uint64, h string) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("connection reset by peer")
	}
	return s.recordingStore.MarkFinal(ctx, n, h)
}

type stubSender struct {
	hash common.Hash
	err  error
}

func (s stubSender) SendBatch(context.Context, uint64) (common.Hash, error) {
	return s.hash, s.err
}

func sentBatch(t *testing.T, tracker *Tracker, client *chaintest.Client, n uint64, txHash common.Hash, block uint64, status uint64) {
	t.Helper()

	_, err := tracker.Build(context.Background(), n)
	require.NoError(t, err)
	_, err = tracker.Submit(context.Background(), n, stubSender{hash: txHash})
	require.NoError(t, err)

	client.AddReceipt(&types.Receipt{TxHash: txHash, BlockNumber: new(big.Int).SetUint64(block), Status: status})
}

func newTestTracker(store Datastore, client *chaintest.Client) *Tracker {
	return NewTracker(store, client, TrackerConfig{ConfirmationsUntilFinal: 3, WaitTimeout: time.Second})
}

func TestPollNextToFinalizeHappyPath(t *testing.T) {
	ctx := context.Background()
	store, client := newRecordingStore(), chaintest.New()
	tracker := newTestTracker(store, client)

	txHash := common.HexToHash("0xaa")
	sentBatch(t, tracker, client, 1, txHash, 10, types.ReceiptStatusSuccessful)
	client.SetHead(12)

	finalized, err := tracker.PollNextToFinalize(ctx)
	require.NoError(t, err)
	assert.True(t, finalized)

	sub, err := store.GetBatch(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusFinal, sub.Status)
	assert.Equal(t, txHash.Hex(), sub.TxHash())
	assert.Equal(t, []Status{StatusBuilding, StatusSent, StatusConfirmed, StatusFinal}, store.seen[1])
}

func TestPollNextToFinalizeNothingToDo(t *testing.T) {
	tracker := newTestTracker(NewMemoryStore(), chaintest.New())

	finalized, err := tracker.PollNextToFinalize(context.Background())
	require.NoError(t, err)
	assert.False(t, finalized)
}

func TestPollNextToFinalizeLeavesUnconfirmedBatchSent(t *testing.T) {
	ctx := context.Background()
	store, client := newRecordingStore(), chaintest.New()
	tracker := newTestTracker(store, client)

	sentBatch(t, tracker, client, 1, common.HexToHash("0xaa"), 10, types.ReceiptStatusSuccessful)
	client.SetHead(11)

	finalized, err := tracker.PollNextToFinalize(ctx)
	require.NoError(t, err)
	assert.False(t, finalized)

	sub, err := store.GetBatch(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, sub.Status)
}

func TestPollNextToFinalizeRPCFailureIsNotTerminal(t *testing.T) {
	ctx := context.Background()
	store, client := newRecordingStore(), chaintest.New()
	tracker := newTestTracker(store, client)

	sentBatch(t, tracker, client, 1, common.HexToHash("0xaa"), 10, types.ReceiptStatusFailed)
	client.SetHead(20)
	client.Err = errors.New("503 service unavailable")

	finalized, err := tracker.PollNextToFinalize(ctx)
	require.NoError(t, err)
	assert.False(t, finalized)

	client.Err = nil
	sub, err := store.GetBatch(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, sub.Status)
}

func TestPollNextToFinalizeRevertIsTerminal(t *testing.T) {
	ctx := context.Background()
	store, client := newRecordingStore(), chaintest.New()
	tracker := newTestTracker(store, client)

	sentBatch(t, tracker, client, 1, common.HexToHash("0xaa"), 10, types.ReceiptStatusFailed)
	sentBatch(t, tracker, client, 2, common.HexToHash("0xbb"), 11, types.ReceiptStatusSuccessful)
	client.SetHead(20)

	finalized, err := tracker.PollNextToFinalize(ctx)
	require.NoError(t, err)
	assert.False(t, finalized)

	sub, err := store.GetBatch(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, sub.Status)

	// the failed batch is not picked up again
	finalized, err = tracker.PollNextToFinalize(ctx)
	require.NoError(t, err)
	assert.True(t, finalized)
	assert.Equal(t, []Status{StatusBuilding, StatusSent, StatusFailed}, store.seen[1])
	assert.Equal(t, []Status{StatusBuilding, StatusSent, StatusConfirmed, StatusFinal}, store.seen[2])
}

func TestPollNextToFinalizeInconsistentStoreIsFatal(t *testing.T) {
	tracker := newTestTracker(brokenStore{NewMemoryStore()}, chaintest.New())

	_, err := tracker.PollNextToFinalize(context.Background())
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestPollNextToFinalizeResumesConfirmedBatch(t *testing.T) {
	ctx := context.Background()
	store, client := &flakyFinalStore{recordingStore: newRecordingStore(), failures: 1}, chaintest.New()
	tracker := newTestTracker(store, client)

	txHash := common.HexToHash("0xaa")
	sentBatch(t, tracker, client, 1, txHash, 10, types.ReceiptStatusSuccessful)
	client.SetHead(12)

	finalized, err := tracker.PollNextToFinalize(ctx)
	require.Error(t, err)
	assert.False(t, IsFatal(err))
	assert.False(t, finalized)

	sub, err := store.GetBatch(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, sub.Status)

	// finishing a confirmed batch needs no RPC
	client.Err = errors.New("503 service unavailable")
	finalized, err = tracker.PollNextToFinalize(ctx)
	require.NoError(t, err)
	assert.True(t, finalized)

	sub, err = store.GetBatch(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusFinal, sub.Status)
	assert.Equal(t, txHash.Hex(), sub.TxHash())
	assert.Equal(t, []Status{StatusBuilding, StatusSent, StatusConfirmed, StatusFinal}, store.seen[1])
}

func TestSubmitRequiresBuildingBatch(t *testing.T) {
	ctx := context.Background()
	store, client := newRecordingStore(), chaintest.New()
	tracker := newTestTracker(store, client)

	sentBatch(t, tracker, client, 1, common.HexToHash("0xaa"), 10, types.ReceiptStatusSuccessful)

	_, err := tracker.Submit(ctx, 1, stubSender{hash: common.HexToHash("0xcc")})
	assert.True(t, IsFatal(err))

	_, err = tracker.Build(ctx, 2)
	require.NoError(t, err)
	_, err = tracker.Submit(ctx, 2, stubSender{err: errors.New("nonce too low")})
	require.Error(t, err)

	sub, err := store.GetBatch(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, StatusBuilding, sub.Status)
}

func TestFinalizeTaskDrainsReadyBatches(t *testing.T) {
	ctx := context.Background()
	store, client := newRecordingStore(), chaintest.New()
	tracker := newTestTracker(store, client)

	for i := uint64(1); i <= 3; i++ {
		sentBatch(t, tracker, client, i, common.BigToHash(new(big.Int).SetUint64(i)), 10+i, types.ReceiptStatusSuccessful)
	}
	client.SetHead(14)

	require.NoError(t, tracker.FinalizeTask(ctx))

	for i := uint64(1); i <= 2; i++ {
		sub, err := store.GetBatch(ctx, i)
		require.NoError(t, err)
		assert.Equal(t, StatusFinal, sub.Status)
	}
	sub, err := store.GetBatch(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, sub.Status)
}
