package proof

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/compose-network/xdomain-relayer/internal/bindings"
	"github.com/compose-network/xdomain-relayer/internal/chain/chaintest"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sccAddr = common.HexToAddress("0xBe5dAb4A2e9cd0F27300dB4aB94BeE3A233AEB19")

// appendBatch records an appendStateBatch transaction and its StateBatchAppended log.
func appendBatch(t *testing.T, client *chaintest.Client, l1Block, batchIndex, prevTotal uint64, roots []common.Hash, timestamp uint64) common.Hash {
	t.Helper()

	parsed, err := bindings.StateCommitmentChainMetaData.GetAbi()
	require.NoError(t, err)

	batch := make([][32]byte, len(roots))
	for i, r := range roots {
		batch[i] = r
	}
	calldata, err := parsed.Pack("appendStateBatch", batch, new(big.Int).SetUint64(prevTotal))
	require.NoError(t, err)

	tx := types.NewTx(&types.LegacyTx{Nonce: batchIndex, To: &sccAddr, Gas: 1, GasPrice: big.NewInt(1), Data: calldata})
	client.AddTransaction(tx)

	batchRoot, err := ComputeRoot(roots)
	require.NoError(t, err)
	data, err := parsed.Events["StateBatchAppended"].Inputs.NonIndexed().Pack(
		[32]byte(batchRoot), big.NewInt(int64(len(roots))), new(big.Int).SetUint64(prevTotal), []byte{},
	)
	require.NoError(t, err)

	client.AddLog(types.Log{
		Address:     sccAddr,
		Topics:      []common.Hash{parsed.Events["StateBatchAppended"].ID, common.BigToHash(new(big.Int).SetUint64(batchIndex))},
		Data:        data,
		BlockNumber: l1Block,
		TxHash:      tx.Hash(),
	})
	client.AddHeader(&types.Header{Number: new(big.Int).SetUint64(l1Block), Time: timestamp})

	return batchRoot
}

func newTestOracle(t *testing.T, client *chaintest.Client, interval uint64) *StateBatchOracle {
	t.Helper()

	oracle, err := NewStateBatchOracle(client, StateBatchOracleConfig{
		StateCommitmentChain: sccAddr,
		GetLogsInterval:      interval,
		FraudProofWindow:     time.Hour,
		L2BlockOffset:        1,
	})
	require.NoError(t, err)
	return oracle
}

func TestStateBatchOracleBatchForIndex(t *testing.T) {
	client := chaintest.New()
	first := testLeaves(3)
	second := testLeaves(5)
	appendBatch(t, client, 10, 0, 0, first, 1000)
	root := appendBatch(t, client, 25, 1, 3, second, 2000)
	client.SetHead(30)

	oracle := newTestOracle(t, client, 7)

	batch, err := oracle.BatchForIndex(context.Background(), 4)
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, uint64(1), batch.Header.BatchIndex.Uint64())
	assert.Equal(t, [32]byte(root), batch.Header.BatchRoot)
	assert.Equal(t, second, batch.StateRoots)
	assert.Equal(t, uint64(25), batch.L1BlockNumber)

	batch, err = oracle.BatchForIndex(context.Background(), 2)
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, first, batch.StateRoots)

	missing, err := oracle.BatchForIndex(context.Background(), 8)
	require.NoError(t, err)
	assert.Nil(t, missing)

	// 31 blocks in windows of 7, then nothing new on later calls
	assert.Len(t, client.FilterQueries(), 5)
	assert.Len(t, oracle.batches, 2)
}

func TestStateBatchOracleChallengePeriod(t *testing.T) {
	client := chaintest.New()
	appendBatch(t, client, 10, 0, 0, testLeaves(2), 1000)
	client.SetHead(20)
	client.AddHeader(&types.Header{Number: big.NewInt(20), Time: 1000 + 1800})

	oracle := newTestOracle(t, client, 100)
	ctx := context.Background()

	status, err := oracle.StateRootStatus(ctx, 2)
	require.NoError(t, err)
	assert.True(t, status.Published)
	assert.True(t, status.InChallengePeriod)

	finalized, _, err := oracle.IsFinalized(ctx, 1)
	require.NoError(t, err)
	assert.False(t, finalized)

	client.SetHead(21)
	client.AddHeader(&types.Header{Number: big.NewInt(21), Time: 1000 + 3600})

	status, err = oracle.StateRootStatus(ctx, 2)
	require.NoError(t, err)
	assert.True(t, status.Published)
	assert.False(t, status.InChallengePeriod)

	finalized, batch, err := oracle.IsFinalized(ctx, 1)
	require.NoError(t, err)
	assert.True(t, finalized)
	assert.Equal(t, uint64(2), batch.Header.BatchSize.Uint64())

	unpublished, err := oracle.StateRootStatus(ctx, 10)
	require.NoError(t, err)
	assert.False(t, unpublished.Published)

	belowOffset, err := oracle.StateRootStatus(ctx, 0)
	require.NoError(t, err)
	assert.False(t, belowOffset.Published)
}
