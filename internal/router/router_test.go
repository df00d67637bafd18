package router

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/compose-network/xdomain-relayer/internal/ratelimit"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRouteClassifiesEveryMethodOnce(t *testing.T) {
	dest, ok := Route(MethodSendRawTransaction)
	require.True(t, ok)
	assert.Equal(t, DestinationTx, dest)

	dest, ok = Route("eth_getProof")
	require.True(t, ok)
	assert.Equal(t, DestinationRead, dest)

	_, ok = Route("debug_traceTransaction")
	assert.False(t, ok)
}

func TestHandleForwardsReadsToReadBackend(t *testing.T) {
	tx, read := new(mockBackend), new(mockBackend)
	read.On("CallContext", "eth_blockNumber", 0).Return(`"0x10"`, nil)

	r := NewRouter(tx, read, newLimiter(10, 10), Config{})
	result, err := r.Handle(context.Background(), "eth_blockNumber", nil, "10.0.0.1")

	require.NoError(t, err)
	assert.JSONEq(t, `"0x10"`, string(result))
	read.AssertExpectations(t)
	tx.AssertNotCalled(t, "CallContext", mock.Anything, mock.Anything)
}

func TestHandleRejectsUnsupportedMethod(t *testing.T) {
	tx, read := new(mockBackend), new(mockBackend)
	r := NewRouter(tx, read, newLimiter(10, 10), Config{})

	_, err := r.Handle(context.Background(), "admin_addPeer", nil, "10.0.0.1")

	var unsupported *UnsupportedMethodError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "admin_addPeer", unsupported.Method)
	read.AssertNotCalled(t, "CallContext", mock.Anything, mock.Anything)
}

func TestHandleLimitsReadsPerIP(t *testing.T) {
	read := new(mockBackend)
	read.On("CallContext", "eth_chainId", 0).Return(`"0x385"`, nil)
	r := NewRouter(new(mockBackend), read, newLimiter(2, 10), Config{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := r.Handle(ctx, "eth_chainId", nil, "10.0.0.1")
		require.NoError(t, err)
	}

	_, err := r.Handle(ctx, "eth_chainId", nil, "10.0.0.1")
	var rateErr *ratelimit.RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, "10.0.0.1", rateErr.Key)

	_, err = r.Handle(ctx, "eth_chainId", nil, "10.0.0.2")
	assert.NoError(t, err)
	read.AssertNumberOfCalls(t, "CallContext", 3)
}

func TestHandleLimitsTransactionsPerSender(t *testing.T) {
	tx := new(mockBackend)
	tx.On("CallContext", MethodSendRawTransaction, 1).Return(`"0x01"`, nil)
	r := NewRouter(tx, new(mockBackend), newLimiter(1, 2), Config{})
	ctx := context.Background()
	key, sender := newKey(t)

	// Distinct IPs do not help a single sender.
	_, err := r.Handle(ctx, MethodSendRawTransaction, rawTxParam(t, key, testChainID, &otherDest, 0), "10.0.0.1")
	require.NoError(t, err)
	_, err = r.Handle(ctx, MethodSendRawTransaction, rawTxParam(t, key, testChainID, &otherDest, 1), "10.0.0.2")
	require.NoError(t, err)

	_, err = r.Handle(ctx, MethodSendRawTransaction, rawTxParam(t, key, testChainID, &otherDest, 2), "10.0.0.3")
	var txErr *ratelimit.TransactionLimitError
	require.ErrorAs(t, err, &txErr)
	assert.Contains(t, txErr.Key, common.Bytes2Hex(sender.Bytes()))
	tx.AssertNumberOfCalls(t, "CallContext", 2)
}

func TestHandleLimitsTransactionsPerIPAcrossSenders(t *testing.T) {
	tx := new(mockBackend)
	tx.On("CallContext", MethodSendRawTransaction, 1).Return(`"0x01"`, nil)
	const ipLimit = 3
	r := NewRouter(tx, new(mockBackend), newLimiter(ipLimit, 100), Config{})
	ctx := context.Background()

	// Fresh accounts from one address do not escape the per-IP window.
	for i := 0; i < ipLimit; i++ {
		key, _ := newKey(t)
		_, err := r.Handle(ctx, MethodSendRawTransaction, rawTxParam(t, key, testChainID, &otherDest, 0), "10.0.0.1")
		require.NoError(t, err)
	}

	key, _ := newKey(t)
	_, err := r.Handle(ctx, MethodSendRawTransaction, rawTxParam(t, key, testChainID, &otherDest, 0), "10.0.0.1")
	var rateErr *ratelimit.RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, "10.0.0.1", rateErr.Key)
	assert.Equal(t, ipLimit+1, rateErr.ObservedCount)

	var txErr *ratelimit.TransactionLimitError
	assert.False(t, errors.As(err, &txErr))
	tx.AssertNumberOfCalls(t, "CallContext", ipLimit)
}

func TestHandleChargesUnparseableTransactionsToIP(t *testing.T) {
	tx := new(mockBackend)
	r := NewRouter(tx, new(mockBackend), newLimiter(1, 10), Config{})
	ctx := context.Background()
	garbage := []json.RawMessage{json.RawMessage(`"0xdeadbeef"`)}

	_, err := r.Handle(ctx, MethodSendRawTransaction, garbage, "10.0.0.1")
	var paramsErr *InvalidParamsError
	require.ErrorAs(t, err, &paramsErr)

	_, err = r.Handle(ctx, MethodSendRawTransaction, garbage, "10.0.0.1")
	var rateErr *ratelimit.RateLimitError
	require.ErrorAs(t, err, &rateErr)

	_, err = r.Handle(ctx, MethodSendRawTransaction, nil, "10.0.0.2")
	require.ErrorAs(t, err, &paramsErr)
	tx.AssertNotCalled(t, "CallContext", mock.Anything, mock.Anything)
}

func TestHandleEnforcesDestinationAllowlist(t *testing.T) {
	tx := new(mockBackend)
	tx.On("CallContext", MethodSendRawTransaction, 1).Return(`"0x01"`, nil)

	deployKey, deployer := newKey(t)
	r := NewRouter(tx, new(mockBackend), newLimiter(10, 10), Config{
		DestinationAllowlist: []common.Address{allowedDest},
		DeployAddress:        &deployer,
	})
	ctx := context.Background()
	key, _ := newKey(t)

	_, err := r.Handle(ctx, MethodSendRawTransaction, rawTxParam(t, key, testChainID, &allowedDest, 0), "10.0.0.1")
	require.NoError(t, err)

	_, err = r.Handle(ctx, MethodSendRawTransaction, rawTxParam(t, key, testChainID, &otherDest, 1), "10.0.0.1")
	var destErr *InvalidDestinationError
	require.ErrorAs(t, err, &destErr)
	require.NotNil(t, destErr.To)
	assert.Equal(t, otherDest, *destErr.To)

	_, err = r.Handle(ctx, MethodSendRawTransaction, rawTxParam(t, key, testChainID, nil, 2), "10.0.0.1")
	require.ErrorAs(t, err, &destErr)
	assert.Nil(t, destErr.To)

	// The deploy address may create contracts and call anything.
	_, err = r.Handle(ctx, MethodSendRawTransaction, rawTxParam(t, deployKey, testChainID, nil, 0), "10.0.0.1")
	require.NoError(t, err)
	_, err = r.Handle(ctx, MethodSendRawTransaction, rawTxParam(t, deployKey, testChainID, &otherDest, 1), "10.0.0.1")
	require.NoError(t, err)

	tx.AssertNumberOfCalls(t, "CallContext", 3)
}

func TestHandleRejectsForeignChainID(t *testing.T) {
	tx := new(mockBackend)
	r := NewRouter(tx, new(mockBackend), newLimiter(10, 10), Config{AllowedChainIDs: []int64{900}})
	key, _ := newKey(t)

	_, err := r.Handle(context.Background(), MethodSendRawTransaction, rawTxParam(t, key, testChainID, &otherDest, 0), "10.0.0.1")

	var paramsErr *InvalidParamsError
	require.ErrorAs(t, err, &paramsErr)
	assert.Contains(t, paramsErr.Reason, "901")
	tx.AssertNotCalled(t, "CallContext", mock.Anything, mock.Anything)
}

func TestHandleWrapsBackendErrors(t *testing.T) {
	read := new(mockBackend)
	read.On("CallContext", "eth_call", 2).Return("", &backendError{code: 3, msg: "execution reverted"})
	r := NewRouter(new(mockBackend), read, newLimiter(10, 10), Config{})

	params := []json.RawMessage{json.RawMessage(`{"to":"0x00"}`), json.RawMessage(`"latest"`)}
	_, err := r.Handle(context.Background(), "eth_call", params, "10.0.0.1")

	var backendErr *backendError
	require.True(t, errors.As(err, &backendErr))
	assert.Contains(t, err.Error(), "read backend")
}
