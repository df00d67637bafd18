// Package chaintest provides an in-memory chain.ChainClient for tests.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sync"

	"github.com/compose-network/xdomain-relayer/internal/chain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var ErrWaitTimeout = errors.New("chaintest: confirmations not reached")

// Client is a scripted chain. The zero value is not usable, use New.
type Client struct {
	mu sync.Mutex

	head     uint64
	logs     []types.Log
	receipts map[common.Hash]*types.Receipt
	txs      map[common.Hash]*types.Transaction
	headers  map[uint64]*types.Header
	proofs   map[common.Address]*chain.AccountResult

	// Err, when set, is returned by every call.
	Err error
	// OnBlockNumber runs before each BlockNumber call with the 1-based call count.
	OnBlockNumber func(call int)

	blockNumberCalls int
	filterQueries    []ethereum.FilterQuery
	proofRequests    []ProofRequest
}

type ProofRequest struct {
	Address common.Address
	Slots   []common.Hash
	Block   *big.Int
}

var _ chain.ChainClient = (*Client)(nil)

func New() *Client {
	return &Client{
		receipts: make(map[common.Hash]*types.Receipt),
		txs:      make(map[common.Hash]*types.Transaction),
		headers:  make(map[uint64]*types.Header),
		proofs:   make(map[common.Address]*chain.AccountResult),
	}
}

func (c *Client) SetHead(head uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head = head
}

func (c *Client) Head() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head
}

// AddLog appends log to the chain, raising the head to its block if needed.
func (c *Client) AddLog(log types.Log) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = append(c.logs, log)
	if log.BlockNumber > c.head {
		c.head = log.BlockNumber
	}
}

func (c *Client) AddReceipt(receipt *types.Receipt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receipts[receipt.TxHash] = receipt
}

func (c *Client) AddTransaction(tx *types.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txs[tx.Hash()] = tx
}

func (c *Client) AddHeader(header *types.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[header.Number.Uint64()] = header
}

func (c *Client) SetProof(address common.Address, proof *chain.AccountResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.proofs[address] = proof
}

func (c *Client) BlockNumberCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blockNumberCalls
}

func (c *Client) FilterQueries() []ethereum.FilterQuery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.filterQueries)
}

func (c *Client) ProofRequests() []ProofRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.proofRequests)
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	c.blockNumberCalls++
	call, hook := c.blockNumberCalls, c.OnBlockNumber
	c.mu.Unlock()

	if hook != nil {
		hook(call)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return 0, c.Err
	}
	return c.head, nil
}

func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	c.filterQueries = append(c.filterQueries, q)

	var from, to uint64 = 0, c.head
	if q.FromBlock != nil {
		from = q.FromBlock.Uint64()
	}
	if q.ToBlock != nil {
		to = q.ToBlock.Uint64()
	}

	var out []types.Log
	for _, log := range c.logs {
		if log.BlockNumber < from || log.BlockNumber > to {
			continue
		}
		if len(q.Addresses) > 0 && !slices.Contains(q.Addresses, log.Address) {
			continue
		}
		if !matchTopics(q.Topics, log.Topics) {
			continue
		}
		out = append(out, log)
	}
	return out, nil
}

func matchTopics(filter [][]common.Hash, topics []common.Hash) bool {
	for i, options := range filter {
		if len(options) == 0 {
			continue
		}
		if i >= len(topics) || !slices.Contains(options, topics[i]) {
			return false
		}
	}
	return true
}

func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, false, c.Err
	}
	tx, ok := c.txs[hash]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	return tx, false, nil
}

func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	receipt, ok := c.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	n := c.head
	if number != nil {
		n = number.Uint64()
	}
	header, ok := c.headers[n]
	if !ok {
		return nil, ethereum.NotFound
	}
	return header, nil
}

// WaitForTransaction does not block: it returns the receipt when it already has the
// requested depth and ErrWaitTimeout otherwise.
func (c *Client) WaitForTransaction(ctx context.Context, hash common.Hash, confirmations uint64) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	receipt, ok := c.receipts[hash]
	if !ok || chain.Depth(receipt, c.head) < confirmations {
		return nil, fmt.Errorf("wait for %s: %w", hash, ErrWaitTimeout)
	}
	return receipt, nil
}

func (c *Client) GetProof(ctx context.Context, address common.Address, slots []common.Hash, block *big.Int) (*chain.AccountResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	c.proofRequests = append(c.proofRequests, ProofRequest{Address: address, Slots: slices.Clone(slots), Block: block})

	proof, ok := c.proofs[address]
	if !ok {
		return nil, ethereum.NotFound
	}
	return proof, nil
}
