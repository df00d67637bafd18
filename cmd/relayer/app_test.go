package main

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/compose-network/xdomain-relayer/configs"
	"github.com/compose-network/xdomain-relayer/internal/chain"
	"github.com/compose-network/xdomain-relayer/internal/chain/chaintest"
	"github.com/compose-network/xdomain-relayer/internal/messenger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDirection(t *testing.T) {
	for input, want := range map[string]messenger.Direction{
		"l1-to-l2": messenger.DirectionL1ToL2,
		"L2_TO_L1": messenger.DirectionL2ToL1,
		"l2-to-l1": messenger.DirectionL2ToL1,
	} {
		got, err := parseDirection(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := parseDirection("sideways")
	assert.ErrorContains(t, err, "unknown direction")
}

func TestParsePrivateKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := common.Bytes2Hex(crypto.FromECDSA(key))

	for _, input := range []string{hexKey, "0x" + hexKey} {
		parsed, err := parsePrivateKey(input)
		require.NoError(t, err)
		assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), crypto.PubkeyToAddress(parsed.PublicKey))
	}

	_, err = parsePrivateKey("")
	assert.ErrorContains(t, err, "relayer.private-key is required")
	_, err = parsePrivateKey("0xzz")
	assert.Error(t, err)
}

func TestRouterConfig(t *testing.T) {
	cfg := routerConfig(configs.Router{
		DestinationAllowlist: []string{"0x00000000000000000000000000000000000000aa"},
		DeployAddress:        "0x00000000000000000000000000000000000000dd",
		AllowedChainIDs:      []int64{900},
	})

	assert.Equal(t, []common.Address{common.HexToAddress("0xaa")}, cfg.DestinationAllowlist)
	require.NotNil(t, cfg.DeployAddress)
	assert.Equal(t, common.HexToAddress("0xdd"), *cfg.DeployAddress)
	assert.Equal(t, []int64{900}, cfg.AllowedChainIDs)

	assert.Nil(t, routerConfig(configs.Router{}).DeployAddress)
}

func TestHashFlag(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("tx", "", "")

	hash := common.HexToHash("0x1234")
	require.NoError(t, cmd.Flags().Set("tx", hash.Hex()))
	got, err := hashFlag(cmd, "tx")
	require.NoError(t, err)
	assert.Equal(t, hash, got)

	require.NoError(t, cmd.Flags().Set("tx", "0x1234"))
	_, err = hashFlag(cmd, "tx")
	assert.ErrorContains(t, err, "--tx must be a 32 byte")
}

func TestAwaitRelayView(t *testing.T) {
	l1Messenger := common.HexToAddress("0x25ace71c97B33Cc4729CF772ae268934F7ab5fA1")
	l2Messenger := common.HexToAddress("0x4200000000000000000000000000000000000007")
	hash := common.HexToHash("0xabcd")

	destination := chaintest.New()
	destination.SetHead(20)
	watcher := messenger.NewWatcher(
		chain.Layer{Client: chaintest.New(), Messenger: l1Messenger},
		chain.Layer{Client: destination, Messenger: l2Messenger},
		messenger.WatcherConfig{Direction: messenger.DirectionL1ToL2, PollInterval: time.Millisecond, LookbackBlocks: 100},
	)

	t.Run("not relayed yet", func(t *testing.T) {
		view, err := awaitRelayView(context.Background(), watcher, hash, false)
		require.NoError(t, err)
		assert.Equal(t, relayView{MessageHash: hash}, view)
	})

	t.Run("relayed", func(t *testing.T) {
		txHash := common.HexToHash("0xfeed")
		log := types.Log{
			Address:     l2Messenger,
			Topics:      []common.Hash{messenger.RelayedMessageTopic},
			Data:        hash.Bytes(),
			BlockNumber: 15,
			TxHash:      txHash,
		}
		destination.AddLog(log)
		destination.AddReceipt(&types.Receipt{
			TxHash:      txHash,
			BlockNumber: big.NewInt(15),
			Status:      types.ReceiptStatusSuccessful,
			Logs:        []*types.Log{&log},
		})

		view, err := awaitRelayView(context.Background(), watcher, hash, false)
		require.NoError(t, err)
		assert.Equal(t, relayView{MessageHash: hash, Relayed: true, TxHash: txHash, BlockNumber: 15}, view)
	})
}
