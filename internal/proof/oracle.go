package proof

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/compose-network/xdomain-relayer/internal/bindings"
	"github.com/compose-network/xdomain-relayer/internal/chain"
	"github.com/compose-network/xdomain-relayer/internal/logger"
	"github.com/compose-network/xdomain-relayer/internal/messenger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type (
	// StateBatchHeader mirrors the on-chain ChainBatchHeader struct.
	StateBatchHeader struct {
		BatchIndex        *big.Int
		BatchRoot         [32]byte
		BatchSize         *big.Int
		PrevTotalElements *big.Int
		ExtraData         []byte
	}

	// StateBatch is an appended state batch and the roots it committed to.
	StateBatch struct {
		Header        StateBatchHeader
		StateRoots    []common.Hash
		L1BlockNumber uint64
		L1TxHash      common.Hash
	}

	StateBatchOracleConfig struct {
		StateCommitmentChain common.Address
		StartBlock           uint64
		GetLogsInterval      uint64
		FraudProofWindow     time.Duration
		L2BlockOffset        uint64
	}

	// StateBatchOracle answers which L1 state batch covers an L2 transaction index.
	// StateBatchAppended logs are scanned forward once and cached.
	StateBatchOracle struct {
		client chain.ChainClient
		cfg    StateBatchOracleConfig
		abi    *abi.ABI
		logger *slog.Logger

		mu          sync.Mutex
		nextBlock   uint64
		batches     []*StateBatch
		rootsLoaded map[uint64]bool
	}
)

var _ messenger.StateRootChecker = (*StateBatchOracle)(nil)

func NewStateBatchOracle(l1 chain.ChainClient, cfg StateBatchOracleConfig) (*StateBatchOracle, error) {
	parsed, err := bindings.StateCommitmentChainMetaData.GetAbi()
	if err != nil {
		return nil, fmt.Errorf("failed to load state commitment chain abi: %w", err)
	}
	if cfg.GetLogsInterval == 0 {
		return nil, errors.New("get logs interval must be greater than 0")
	}

	return &StateBatchOracle{
		client:      l1,
		cfg:         cfg,
		abi:         parsed,
		logger:      logger.Named("state_batch_oracle"),
		nextBlock:   cfg.StartBlock,
		rootsLoaded: make(map[uint64]bool),
	}, nil
}

// TransactionIndex converts an L2 block number to its transaction index.
func (o *StateBatchOracle) TransactionIndex(l2BlockNumber uint64) (uint64, bool) {
	if l2BlockNumber < o.cfg.L2BlockOffset {
		return 0, false
	}
	return l2BlockNumber - o.cfg.L2BlockOffset, true
}

func (o *StateBatchOracle) L2BlockOffset() uint64 {
	return o.cfg.L2BlockOffset
}

// BatchForIndex returns the batch holding the state root of L2 transaction txIndex,
// or nil when no such batch was appended yet.
func (o *StateBatchOracle) BatchForIndex(ctx context.Context, txIndex uint64) (*StateBatch, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.refresh(ctx); err != nil {
		return nil, err
	}

	for _, batch := range o.batches {
		prev := batch.Header.PrevTotalElements.Uint64()
		size := batch.Header.BatchSize.Uint64()
		if prev <= txIndex && txIndex < prev+size {
			if err := o.loadRoots(ctx, batch); err != nil {
				return nil, err
			}
			return batch, nil
		}
	}

	return nil, nil
}

// InChallengePeriod reports whether batch can still be disputed at the latest L1 block.
func (o *StateBatchOracle) InChallengePeriod(ctx context.Context, batch *StateBatch) (bool, error) {
	appended, err := o.client.HeaderByNumber(ctx, new(big.Int).SetUint64(batch.L1BlockNumber))
	if err != nil {
		return false, fmt.Errorf("failed to fetch batch block header: %w", err)
	}
	latest, err := o.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to fetch latest header: %w", err)
	}

	deadline := appended.Time + uint64(o.cfg.FraudProofWindow/time.Second)
	return deadline > latest.Time, nil
}

// IsFinalized reports whether the state root of txIndex is published and past its
// challenge period. The covering batch is returned when it exists.
func (o *StateBatchOracle) IsFinalized(ctx context.Context, txIndex uint64) (bool, *StateBatch, error) {
	batch, err := o.BatchForIndex(ctx, txIndex)
	if err != nil || batch == nil {
		return false, nil, err
	}

	inside, err := o.InChallengePeriod(ctx, batch)
	if err != nil {
		return false, batch, err
	}
	return !inside, batch, nil
}

func (o *StateBatchOracle) StateRootStatus(ctx context.Context, l2BlockNumber uint64) (messenger.StateRootStatus, error) {
	txIndex, ok := o.TransactionIndex(l2BlockNumber)
	if !ok {
		return messenger.StateRootStatus{}, nil
	}

	batch, err := o.BatchForIndex(ctx, txIndex)
	if err != nil || batch == nil {
		return messenger.StateRootStatus{}, err
	}

	inside, err := o.InChallengePeriod(ctx, batch)
	if err != nil {
		return messenger.StateRootStatus{}, err
	}
	return messenger.StateRootStatus{Published: true, InChallengePeriod: inside}, nil
}

func (o *StateBatchOracle) refresh(ctx context.Context) error {
	head, err := o.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch l1 block number: %w", err)
	}

	event := o.abi.Events["StateBatchAppended"]
	for o.nextBlock <= head {
		to := min(o.nextBlock+o.cfg.GetLogsInterval-1, head)
		o.logger.With("from", o.nextBlock).With("to", to).Debug("querying state batch events")

		logs, err := o.client.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(o.nextBlock),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: []common.Address{o.cfg.StateCommitmentChain},
			Topics:    [][]common.Hash{{event.ID}},
		})
		if err != nil {
			return fmt.Errorf("failed to filter StateBatchAppended logs: %w", err)
		}

		for _, log := range logs {
			batch, err := o.decodeBatch(log)
			if err != nil {
				return err
			}
			o.batches = append(o.batches, batch)
		}
		o.nextBlock = to + 1
	}

	return nil
}

func (o *StateBatchOracle) decodeBatch(log types.Log) (*StateBatch, error) {
	if len(log.Topics) < 2 {
		return nil, fmt.Errorf("StateBatchAppended log in %s has no batch index topic", log.TxHash.Hex())
	}

	values, err := o.abi.Unpack("StateBatchAppended", log.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack StateBatchAppended: %w", err)
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("unexpected StateBatchAppended field count %d", len(values))
	}

	root, okRoot := values[0].([32]byte)
	size, okSize := values[1].(*big.Int)
	prev, okPrev := values[2].(*big.Int)
	extra, okExtra := values[3].([]byte)
	if !okRoot || !okSize || !okPrev || !okExtra {
		return nil, errors.New("unexpected StateBatchAppended field types")
	}

	return &StateBatch{
		Header: StateBatchHeader{
			BatchIndex:        log.Topics[1].Big(),
			BatchRoot:         root,
			BatchSize:         size,
			PrevTotalElements: prev,
			ExtraData:         extra,
		},
		L1BlockNumber: log.BlockNumber,
		L1TxHash:      log.TxHash,
	}, nil
}

// loadRoots decodes the state roots from the appendStateBatch calldata.
func (o *StateBatchOracle) loadRoots(ctx context.Context, batch *StateBatch) error {
	index := batch.Header.BatchIndex.Uint64()
	if o.rootsLoaded[index] {
		return nil
	}

	tx, _, err := o.client.TransactionByHash(ctx, batch.L1TxHash)
	if err != nil {
		return fmt.Errorf("failed to fetch appendStateBatch transaction: %w", err)
	}

	method := o.abi.Methods["appendStateBatch"]
	data := tx.Data()
	if len(data) < 4 || !bytes.Equal(data[:4], method.ID) {
		return fmt.Errorf("transaction %s is not an appendStateBatch call", batch.L1TxHash.Hex())
	}

	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return fmt.Errorf("failed to unpack appendStateBatch: %w", err)
	}
	roots, ok := values[0].([][32]byte)
	if !ok {
		return errors.New("unexpected appendStateBatch argument type")
	}
	if uint64(len(roots)) != batch.Header.BatchSize.Uint64() {
		return fmt.Errorf("batch %d carries %d roots, header says %d", index, len(roots), batch.Header.BatchSize.Uint64())
	}

	batch.StateRoots = make([]common.Hash, len(roots))
	for i, root := range roots {
		batch.StateRoots[i] = root
	}
	o.rootsLoaded[index] = true

	return nil
}
