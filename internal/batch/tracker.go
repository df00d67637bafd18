package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/compose-network/xdomain-relayer/internal/chain"
	"github.com/compose-network/xdomain-relayer/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type (
	// Sender broadcasts the L1 transaction carrying a batch.
	Sender interface {
		SendBatch(ctx context.Context, batchNumber uint64) (common.Hash, error)
	}

	TrackerConfig struct {
		ConfirmationsUntilFinal uint64
		WaitTimeout             time.Duration
	}

	// Tracker owns the status of every submission. It assumes it is the only writer
	// for its chain pair.
	Tracker struct {
		store  Datastore
		client chain.ChainClient
		cfg    TrackerConfig
		logger *slog.Logger
	}
)

func NewTracker(store Datastore, l1 chain.ChainClient, cfg TrackerConfig) *Tracker {
	return &Tracker{
		store:  store,
		client: l1,
		cfg:    cfg,
		logger: logger.Named("batch_tracker"),
	}
}

// Build records a locally assembled batch in BUILDING.
func (t *Tracker) Build(ctx context.Context, batchNumber uint64) (*Submission, error) {
	sub, err := t.store.InsertBatch(ctx, batchNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to insert batch: %w", err)
	}

	t.logger.With("batch_number", batchNumber).Info("batch built")
	return sub, nil
}

// Submit broadcasts a BUILDING batch and moves it to SENT.
func (t *Tracker) Submit(ctx context.Context, batchNumber uint64, sender Sender) (common.Hash, error) {
	sub, err := t.store.GetBatch(ctx, batchNumber)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to load batch: %w", err)
	}
	if sub.Status != StatusBuilding {
		return common.Hash{}, &BatchStatusInconsistencyError{BatchNumber: batchNumber, Expected: StatusBuilding, Actual: sub.Status}
	}

	txHash, err := sender.SendBatch(ctx, batchNumber)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to send batch %d: %w", batchNumber, err)
	}

	if err := t.RecordSent(ctx, batchNumber, txHash); err != nil {
		return common.Hash{}, err
	}
	return txHash, nil
}

// RecordSent moves a BUILDING batch to SENT with the hash of its L1 transaction.
func (t *Tracker) RecordSent(ctx context.Context, batchNumber uint64, txHash common.Hash) error {
	if err := t.store.MarkSent(ctx, batchNumber, txHash.Hex()); err != nil {
		return fmt.Errorf("failed to mark batch sent: %w", err)
	}

	batchesTransitioned.WithLabelValues(string(StatusSent)).Inc()
	t.logger.With("batch_number", batchNumber).With("tx_hash", txHash).Info("batch sent")
	return nil
}

// PollNextToFinalize advances the oldest CONFIRMED batch left behind by an
// interrupted cycle, otherwise the oldest SENT batch. It returns true when a batch
// reached FINAL. A batch whose wait failed stays SENT for the next cycle, a reverted
// batch becomes FAILED. Datastore errors are returned; a batch left CONFIRMED by
// a failed write is finalized on the next call.
func (t *Tracker) PollNextToFinalize(ctx context.Context) (bool, error) {
	resumed, err := t.resumeConfirmed(ctx)
	if err != nil || resumed {
		return resumed, err
	}

	sub, err := t.store.GetOldestBatch(ctx, StatusSent)
	if err != nil {
		return false, fmt.Errorf("failed to fetch oldest sent batch: %w", err)
	}
	if sub == nil {
		t.logger.Debug("no sent batch to finalize")
		return false, nil
	}
	if sub.Status != StatusSent {
		return false, &BatchStatusInconsistencyError{BatchNumber: sub.BatchNumber, Expected: StatusSent, Actual: sub.Status}
	}

	log := t.logger.With("batch_number", sub.BatchNumber).With("tx_hash", sub.TxHash())
	if sub.SubmissionTxHash == nil {
		return false, &BatchStatusInconsistencyError{
			BatchNumber: sub.BatchNumber,
			Expected:    StatusSent,
			Actual:      sub.Status,
			Reason:      "no submission tx hash recorded",
		}
	}
	txHash := common.HexToHash(*sub.SubmissionTxHash)

	waitCtx := ctx
	if t.cfg.WaitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, t.cfg.WaitTimeout)
		defer cancel()
	}

	log.With("confirmations", t.cfg.ConfirmationsUntilFinal).Info("waiting for batch confirmations")
	receipt, err := t.client.WaitForTransaction(waitCtx, txHash, t.cfg.ConfirmationsUntilFinal)
	if err != nil {
		// not a revert: leave it SENT and look again next cycle
		log.With("err", err).Warn("failed to wait for batch transaction")
		return false, nil
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		if err := t.store.MarkFailed(ctx, sub.BatchNumber); err != nil {
			return false, fmt.Errorf("failed to mark batch failed: %w", err)
		}
		batchesTransitioned.WithLabelValues(string(StatusFailed)).Inc()
		log.With("block_number", receipt.BlockNumber).Error("batch transaction reverted")
		return false, nil
	}

	if err := t.store.MarkConfirmed(ctx, sub.BatchNumber); err != nil {
		return false, fmt.Errorf("failed to mark batch confirmed: %w", err)
	}
	batchesTransitioned.WithLabelValues(string(StatusConfirmed)).Inc()

	if err := t.store.MarkFinal(ctx, sub.BatchNumber, receipt.TxHash.Hex()); err != nil {
		return false, fmt.Errorf("failed to mark batch final: %w", err)
	}
	batchesTransitioned.WithLabelValues(string(StatusFinal)).Inc()

	log.With("block_number", receipt.BlockNumber).Info("batch finalized")
	return true, nil
}

// resumeConfirmed finalizes the oldest CONFIRMED batch. Its receipt was already
// checked when it left SENT, so only the FINAL write is missing.
func (t *Tracker) resumeConfirmed(ctx context.Context) (bool, error) {
	sub, err := t.store.GetOldestBatch(ctx, StatusConfirmed)
	if err != nil {
		return false, fmt.Errorf("failed to fetch oldest confirmed batch: %w", err)
	}
	if sub == nil {
		return false, nil
	}
	if sub.Status != StatusConfirmed {
		return false, &BatchStatusInconsistencyError{BatchNumber: sub.BatchNumber, Expected: StatusConfirmed, Actual: sub.Status}
	}
	if sub.SubmissionTxHash == nil {
		return false, &BatchStatusInconsistencyError{
			BatchNumber: sub.BatchNumber,
			Expected:    StatusConfirmed,
			Actual:      sub.Status,
			Reason:      "no submission tx hash recorded",
		}
	}

	if err := t.store.MarkFinal(ctx, sub.BatchNumber, *sub.SubmissionTxHash); err != nil {
		return false, fmt.Errorf("failed to mark batch final: %w", err)
	}
	batchesTransitioned.WithLabelValues(string(StatusFinal)).Inc()

	t.logger.With("batch_number", sub.BatchNumber).With("tx_hash", sub.TxHash()).Info("confirmed batch finalized")
	return true, nil
}

// FinalizeTask drains every finalizable batch; it is meant to run on a schedule.
func (t *Tracker) FinalizeTask(ctx context.Context) error {
	for {
		finalized, err := t.PollNextToFinalize(ctx)
		if err != nil || !finalized {
			return err
		}
	}
}
