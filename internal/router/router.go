package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/compose-network/xdomain-relayer/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

type (
	// Backend forwards a JSON-RPC call. *rpc.Client satisfies it.
	Backend interface {
		CallContext(ctx context.Context, result any, method string, args ...any) error
	}

	Limiter interface {
		ValidateIP(ctx context.Context, ip string) error
		ValidateAccount(ctx context.Context, account common.Address) error
	}

	Config struct {
		// DestinationAllowlist restricts transaction targets when non-empty.
		DestinationAllowlist []common.Address
		// DeployAddress bypasses the allowlist, including for contract creation.
		DeployAddress *common.Address
		// AllowedChainIDs restricts raw transactions when non-empty.
		AllowedChainIDs []int64
	}

	// Router admits JSON-RPC requests and forwards them to the transaction or read
	// backend.
	Router struct {
		backends        map[Destination]Backend
		limiter         Limiter
		allowlist       map[common.Address]struct{}
		deployAddress   *common.Address
		allowedChainIDs map[int64]struct{}
		logger          *slog.Logger
	}
)

func NewRouter(tx, read Backend, limiter Limiter, cfg Config) *Router {
	r := &Router{
		backends: map[Destination]Backend{
			DestinationTx:   tx,
			DestinationRead: read,
		},
		limiter:       limiter,
		deployAddress: cfg.DeployAddress,
		logger:        logger.Named("router"),
	}

	if len(cfg.DestinationAllowlist) > 0 {
		r.allowlist = make(map[common.Address]struct{}, len(cfg.DestinationAllowlist))
		for _, addr := range cfg.DestinationAllowlist {
			r.allowlist[addr] = struct{}{}
		}
	}
	if len(cfg.AllowedChainIDs) > 0 {
		r.allowedChainIDs = make(map[int64]struct{}, len(cfg.AllowedChainIDs))
		for _, id := range cfg.AllowedChainIDs {
			r.allowedChainIDs[id] = struct{}{}
		}
	}

	return r
}

// Handle admits one call from sourceIP and returns the backend's raw result.
// Every call is charged to the source IP; raw transactions are also charged to
// their sender.
func (r *Router) Handle(ctx context.Context, method string, params []json.RawMessage, sourceIP string) (json.RawMessage, error) {
	dest, ok := Route(method)
	if !ok {
		return nil, &UnsupportedMethodError{Method: method}
	}

	if err := r.limiter.ValidateIP(ctx, sourceIP); err != nil {
		return nil, err
	}
	if method == MethodSendRawTransaction {
		if err := r.admitTransaction(ctx, params, sourceIP); err != nil {
			return nil, err
		}
	}

	args := make([]any, len(params))
	for i, p := range params {
		args[i] = p
	}

	var result json.RawMessage
	if err := r.backends[dest].CallContext(ctx, &result, method, args...); err != nil {
		return nil, fmt.Errorf("failed to forward %s to %s backend: %w", method, dest, err)
	}

	return result, nil
}

func (r *Router) admitTransaction(ctx context.Context, params []json.RawMessage, sourceIP string) error {
	tx, sender, err := r.parseTransaction(params)
	if err != nil {
		r.logger.With("source_ip", sourceIP, "err", err).Debug("rejected raw transaction")
		return err
	}

	if err := r.limiter.ValidateAccount(ctx, sender); err != nil {
		return err
	}

	if r.allowlist != nil && !r.isDeployer(sender) {
		to := tx.To()
		if to == nil {
			return &InvalidDestinationError{Sender: sender}
		}
		if _, ok := r.allowlist[*to]; !ok {
			return &InvalidDestinationError{To: to, Sender: sender}
		}
	}

	return nil
}

// parseTransaction decodes the single raw transaction parameter and recovers its sender.
func (r *Router) parseTransaction(params []json.RawMessage) (*types.Transaction, common.Address, error) {
	if len(params) != 1 {
		return nil, common.Address{}, &InvalidParamsError{Reason: "missing value for required argument 0"}
	}

	var data hexutil.Bytes
	if err := json.Unmarshal(params[0], &data); err != nil {
		return nil, common.Address{}, &InvalidParamsError{Reason: err.Error()}
	}

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(data); err != nil {
		return nil, common.Address{}, &InvalidParamsError{Reason: err.Error()}
	}

	if !r.isAllowedChainID(tx.ChainId()) {
		return nil, common.Address{}, &InvalidParamsError{Reason: fmt.Sprintf("chain id %s is not allowed", tx.ChainId())}
	}

	sender, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return nil, common.Address{}, &InvalidParamsError{Reason: err.Error()}
	}

	return tx, sender, nil
}

func (r *Router) isAllowedChainID(id *big.Int) bool {
	if r.allowedChainIDs == nil {
		return true
	}
	if id == nil || !id.IsInt64() {
		return false
	}

	_, ok := r.allowedChainIDs[id.Int64()]
	return ok
}

func (r *Router) isDeployer(sender common.Address) bool {
	return r.deployAddress != nil && *r.deployAddress == sender
}
