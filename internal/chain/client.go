package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/compose-network/xdomain-relayer/configs"
	"github.com/compose-network/xdomain-relayer/internal/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"
)

const defaultReceiptPollInterval = 2 * time.Second

type (
	// ChainClient is the read side of a chain node used by watchers, trackers and proof builders.
	ChainClient interface {
		BlockNumber(ctx context.Context) (uint64, error)
		FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
		TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
		TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
		HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
		WaitForTransaction(ctx context.Context, hash common.Hash, confirmations uint64) (*types.Receipt, error)
		GetProof(ctx context.Context, address common.Address, slots []common.Hash, block *big.Int) (*AccountResult, error)
	}

	// Layer is one side of the bridge.
	Layer struct {
		Client    ChainClient
		Messenger common.Address
	}

	// AccountResult is the eth_getProof (EIP-1186) response.
	AccountResult struct {
		Address      common.Address  `json:"address"`
		AccountProof []string        `json:"accountProof"`
		Balance      *hexutil.Big    `json:"balance"`
		CodeHash     common.Hash     `json:"codeHash"`
		Nonce        hexutil.Uint64  `json:"nonce"`
		StorageHash  common.Hash     `json:"storageHash"`
		StorageProof []StorageResult `json:"storageProof"`
	}

	StorageResult struct {
		Key   string       `json:"key"`
		Value *hexutil.Big `json:"value"`
		Proof []string     `json:"proof"`
	}

	// Client is a ChainClient over a JSON-RPC endpoint. Every outbound call waits on a
	// token bucket so a busy watcher cannot flood a shared node.
	Client struct {
		eth          *ethclient.Client
		rpc          *rpc.Client
		limiter      *rate.Limiter
		pollInterval time.Duration
		logger       *slog.Logger
	}
)

var _ ChainClient = (*Client)(nil)

// Dial connects to the endpoint described by cfg.
func Dial(ctx context.Context, name configs.LayerName, cfg configs.Layer) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s rpc: %w", name, err)
	}

	return NewClient(rpcClient, cfg.RequestsPerSecond, cfg.Burst, logger.Named(string(name)+"_chain_client")), nil
}

// NewClient wraps an established rpc client. A non-positive requestsPerSecond disables pacing.
func NewClient(rpcClient *rpc.Client, requestsPerSecond float64, burst int, log *slog.Logger) *Client {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		eth:          ethclient.NewClient(rpcClient),
		rpc:          rpcClient,
		limiter:      rate.NewLimiter(limit, burst),
		pollInterval: defaultReceiptPollInterval,
		logger:       log,
	}
}

// WithPollInterval overrides how often WaitForTransaction re-reads the receipt.
func (c *Client) WithPollInterval(d time.Duration) *Client {
	c.pollInterval = d
	return c
}

func (c *Client) RPC() *rpc.Client {
	return c.rpc
}

func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) wait(ctx context.Context, method string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("failed to acquire rpc slot for %s: %w", method, err)
	}
	return nil
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	if err := c.wait(ctx, "eth_blockNumber"); err != nil {
		return 0, err
	}
	defer observe("eth_blockNumber", time.Now())

	return c.eth.BlockNumber(ctx)
}

func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if err := c.wait(ctx, "eth_getLogs"); err != nil {
		return nil, err
	}
	defer observe("eth_getLogs", time.Now())

	return c.eth.FilterLogs(ctx, q)
}

func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	if err := c.wait(ctx, "eth_getTransactionByHash"); err != nil {
		return nil, false, err
	}
	defer observe("eth_getTransactionByHash", time.Now())

	return c.eth.TransactionByHash(ctx, hash)
}

func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if err := c.wait(ctx, "eth_getTransactionReceipt"); err != nil {
		return nil, err
	}
	defer observe("eth_getTransactionReceipt", time.Now())

	return c.eth.TransactionReceipt(ctx, hash)
}

func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if err := c.wait(ctx, "eth_getBlockByNumber"); err != nil {
		return nil, err
	}
	defer observe("eth_getBlockByNumber", time.Now())

	return c.eth.HeaderByNumber(ctx, number)
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	if err := c.wait(ctx, "eth_chainId"); err != nil {
		return nil, err
	}
	defer observe("eth_chainId", time.Now())

	return c.eth.ChainID(ctx)
}

func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if err := c.wait(ctx, "eth_getTransactionCount"); err != nil {
		return 0, err
	}
	defer observe("eth_getTransactionCount", time.Now())

	return c.eth.PendingNonceAt(ctx, account)
}

func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if err := c.wait(ctx, "eth_gasPrice"); err != nil {
		return nil, err
	}
	defer observe("eth_gasPrice", time.Now())

	return c.eth.SuggestGasPrice(ctx)
}

// GetProof calls eth_getProof. A nil block queries the latest state.
func (c *Client) GetProof(ctx context.Context, address common.Address, slots []common.Hash, block *big.Int) (*AccountResult, error) {
	if err := c.wait(ctx, "eth_getProof"); err != nil {
		return nil, err
	}
	defer observe("eth_getProof", time.Now())

	keys := make([]string, len(slots))
	for i, slot := range slots {
		keys[i] = slot.Hex()
	}

	blockTag := "latest"
	if block != nil {
		blockTag = hexutil.EncodeBig(block)
	}

	var result AccountResult
	if err := c.rpc.CallContext(ctx, &result, "eth_getProof", address, keys, blockTag); err != nil {
		return nil, fmt.Errorf("failed to call eth_getProof: %w", err)
	}

	return &result, nil
}

// WaitForTransaction polls until the receipt of hash is buried under confirmations
// blocks (the inclusion block counts as the first). A missing receipt keeps the wait
// going; any other RPC failure is returned so callers can tell it apart from a
// reverted receipt, which is returned as is.
func (c *Client) WaitForTransaction(ctx context.Context, hash common.Hash, confirmations uint64) (*types.Receipt, error) {
	return WaitForConfirmations(ctx, c, hash, confirmations, c.pollInterval)
}

// WaitForConfirmations implements the receipt wait loop over any ChainClient.
func WaitForConfirmations(ctx context.Context, client ChainClient, hash common.Hash, confirmations uint64, pollInterval time.Duration) (*types.Receipt, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, hash)
		switch {
		case errors.Is(err, ethereum.NotFound):
		case err != nil:
			return nil, fmt.Errorf("failed to fetch receipt: %w", err)
		default:
			head, err := client.BlockNumber(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch block number: %w", err)
			}
			if Depth(receipt, head) >= confirmations {
				return receipt, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Depth is the number of blocks including and on top of the receipt's block.
func Depth(receipt *types.Receipt, head uint64) uint64 {
	if receipt == nil || receipt.BlockNumber == nil {
		return 0
	}
	included := receipt.BlockNumber.Uint64()
	if head < included {
		return 0
	}
	return head - included + 1
}
