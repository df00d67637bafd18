package messenger

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/compose-network/xdomain-relayer/internal/chain"
	"github.com/compose-network/xdomain-relayer/internal/chain/chaintest"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

var (
	l1MessengerAddr = common.HexToAddress("0x25ace71c97B33Cc4729CF772ae268934F7ab5fA1")
	l2MessengerAddr = common.HexToAddress("0x4200000000000000000000000000000000000007")
)

func scenarioMessage() CrossChainMessage {
	return CrossChainMessage{
		Direction: DirectionL1ToL2,
		Sender:    common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"),
		Target:    common.HexToAddress("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"),
		Message:   common.FromHex("0xdead"),
		Nonce:     big.NewInt(7),
	}
}

func sentLog(t *testing.T, messenger common.Address, msg CrossChainMessage, block uint64, txHash common.Hash, index uint) types.Log {
	t.Helper()

	encoded, err := msg.Encode()
	require.NoError(t, err)

	parsed, err := loadMessengerABI()
	require.NoError(t, err)
	data, err := parsed.Events["SentMessage"].Inputs.Pack(encoded)
	require.NoError(t, err)

	return types.Log{
		Address:     messenger,
		Topics:      []common.Hash{SentMessageTopic},
		Data:        data,
		BlockNumber: block,
		TxHash:      txHash,
		Index:       index,
	}
}

func relayLog(messenger common.Address, topic, messageHash common.Hash, block uint64, txHash common.Hash) types.Log {
	return types.Log{
		Address:     messenger,
		Topics:      []common.Hash{topic},
		Data:        messageHash.Bytes(),
		BlockNumber: block,
		TxHash:      txHash,
	}
}

// addRelay records a relay log and its receipt on the destination chain.
func addRelay(client *chaintest.Client, messenger common.Address, topic, messageHash common.Hash, block uint64, txHash common.Hash) {
	log := relayLog(messenger, topic, messageHash, block, txHash)
	client.AddLog(log)
	client.AddReceipt(&types.Receipt{
		TxHash:      txHash,
		BlockNumber: new(big.Int).SetUint64(block),
		Status:      types.ReceiptStatusSuccessful,
		Logs:        []*types.Log{&log},
	})
}

func newTestWatcher(source, destination *chaintest.Client, direction Direction, sleep Sleeper) *Watcher {
	srcMessenger, dstMessenger := l1MessengerAddr, l2MessengerAddr
	if direction == DirectionL2ToL1 {
		srcMessenger, dstMessenger = l2MessengerAddr, l1MessengerAddr
	}

	w := NewWatcher(
		chain.Layer{Client: source, Messenger: srcMessenger},
		chain.Layer{Client: destination, Messenger: dstMessenger},
		WatcherConfig{Direction: direction, PollInterval: time.Second, LookbackBlocks: 100},
	)
	if sleep != nil {
		w.WithSleeper(sleep)
	}
	return w
}

func noSleep(context.Context, time.Duration) error { return nil }
