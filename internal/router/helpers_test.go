package router

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/compose-network/xdomain-relayer/internal/ratelimit"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	testChainID = big.NewInt(901)
	allowedDest = common.HexToAddress("0x4200000000000000000000000000000000000007")
	otherDest   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) CallContext(_ context.Context, result any, method string, args ...any) error {
	ret := m.Called(method, len(args))
	if raw := ret.String(0); raw != "" {
		*result.(*json.RawMessage) = json.RawMessage(raw)
	}
	return ret.Error(1)
}

// backendError mimics a JSON-RPC error returned by a downstream node.
type backendError struct {
	code int
	msg  string
}

func (e *backendError) Error() string  { return e.msg }
func (e *backendError) ErrorCode() int { return e.code }
func (e *backendError) ErrorData() any { return "0x08c379a0" }

func newLimiter(ipLimit, accountLimit int) *ratelimit.AccountRateLimiter {
	return ratelimit.NewAccountRateLimiter(ratelimit.Config{
		Period:       time.Minute,
		Buckets:      6,
		IPLimit:      ipLimit,
		AccountLimit: accountLimit,
	})
}

func newKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

// rawTxParam signs a transfer and renders it as the single eth_sendRawTransaction param.
func rawTxParam(t *testing.T, key *ecdsa.PrivateKey, chainID *big.Int, to *common.Address, nonce uint64) []json.RawMessage {
	t.Helper()

	tx, err := types.SignNewTx(key, types.LatestSignerForChainID(chainID), &types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21_000,
		To:        to,
		Value:     big.NewInt(1),
	})
	require.NoError(t, err)

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)

	param, err := json.Marshal(hexutil.Encode(raw))
	require.NoError(t, err)
	return []json.RawMessage{param}
}
