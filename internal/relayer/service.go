package relayer

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/compose-network/xdomain-relayer/internal/bindings"
	"github.com/compose-network/xdomain-relayer/internal/logger"
	"github.com/compose-network/xdomain-relayer/internal/messenger"
	"github.com/compose-network/xdomain-relayer/internal/proof"
	"github.com/compose-network/xdomain-relayer/internal/router"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	outcomeRelayed        = "relayed"
	outcomeRelayFailed    = "relay_failed"
	outcomeAlreadyRelayed = "already_relayed"
	outcomeRetry          = "retry"
	outcomeDropped        = "dropped"

	// SourceIP identifies the relayer's own submissions to the router's limiter.
	SourceIP = "relayer"
)

type (
	FinalityOracle interface {
		IsFinalized(ctx context.Context, txIndex uint64) (bool, *proof.StateBatch, error)
		L2BlockOffset() uint64
	}

	ProofBuilder interface {
		MessageProof(ctx context.Context, sent messenger.SentMessage) (*proof.MessageProof, error)
	}

	// Submitter admits a JSON-RPC call. *router.Router satisfies it.
	Submitter interface {
		Handle(ctx context.Context, method string, params []json.RawMessage, sourceIP string) (json.RawMessage, error)
	}

	// Account is the L1 view needed to sign relay transactions and follow them.
	Account interface {
		ChainID(ctx context.Context) (*big.Int, error)
		PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
		SuggestGasPrice(ctx context.Context) (*big.Int, error)
		TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
		TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	}

	// pendingRelay is a message waiting for a retry. TxHash is set when a relay
	// transaction was submitted but its relay was not observed yet.
	pendingRelay struct {
		sent   messenger.SentMessage
		txHash common.Hash
	}

	Config struct {
		PrivateKey             *ecdsa.PrivateKey
		GasLimit               uint64
		FromL2TransactionIndex uint64
		RelayTimeout           time.Duration
	}

	// Service relays L2 to L1 messages once their state roots are final.
	Service struct {
		watcher   *messenger.Watcher
		oracle    FinalityOracle
		builder   ProofBuilder
		submitter Submitter
		account   Account
		cfg       Config
		from      common.Address
		abi       *abi.ABI
		logger    *slog.Logger

		mu      sync.Mutex
		next    uint64
		pending map[common.Hash]pendingRelay
	}
)

func NewService(
	watcher *messenger.Watcher,
	oracle FinalityOracle,
	builder ProofBuilder,
	submitter Submitter,
	account Account,
	cfg Config,
) (*Service, error) {
	if watcher.Direction() != messenger.DirectionL2ToL1 {
		return nil, fmt.Errorf("relayer needs an %s watcher, got %s", messenger.DirectionL2ToL1, watcher.Direction())
	}
	if cfg.PrivateKey == nil {
		return nil, errors.New("relayer private key is required")
	}

	parsed, err := bindings.L1CrossDomainMessengerMetaData.GetAbi()
	if err != nil {
		return nil, fmt.Errorf("failed to load L1 messenger abi: %w", err)
	}

	return &Service{
		watcher:   watcher,
		oracle:    oracle,
		builder:   builder,
		submitter: submitter,
		account:   account,
		cfg:       cfg,
		from:      crypto.PubkeyToAddress(cfg.PrivateKey.PublicKey),
		abi:       parsed,
		logger:    logger.Named("relayer"),
		next:      cfg.FromL2TransactionIndex,
		pending:   make(map[common.Hash]pendingRelay),
	}, nil
}

// NextTransactionIndex is the first L2 transaction index not yet known to be final.
func (s *Service) NextTransactionIndex() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.next
}

// Pending returns how many messages wait for a retry.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.pending)
}

// RunOnce advances over every newly finalized state batch and relays the messages
// sent in that range, plus those left over from earlier cycles. Only a duplicate
// relay aborts the cycle.
func (s *Service) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.next
	next, err := s.finalizedUntil(ctx, start)
	if err != nil {
		return err
	}

	var messages []messenger.SentMessage
	if next > start {
		offset := s.oracle.L2BlockOffset()
		messages, err = s.watcher.SentMessagesInRange(ctx, start+offset, next+offset-1)
		if err != nil {
			return fmt.Errorf("failed to read sent messages: %w", err)
		}

		s.logger.With("from_index", start).With("to_index", next).With("messages", len(messages)).Info("state batches finalized")
		s.next = next
		nextTransactionIndex.Set(float64(next))
	}

	for _, p := range s.pending {
		messages = append(messages, p.sent)
	}

	for _, sent := range messages {
		if err := s.relay(ctx, sent); err != nil {
			if messenger.IsFatal(err) {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}

	return nil
}

// finalizedUntil walks batch by batch from txIndex and returns the first index
// whose state root is not final yet.
func (s *Service) finalizedUntil(ctx context.Context, txIndex uint64) (uint64, error) {
	for {
		finalized, batch, err := s.oracle.IsFinalized(ctx, txIndex)
		if err != nil {
			return 0, fmt.Errorf("failed to check finality of transaction index %d: %w", txIndex, err)
		}
		if !finalized {
			return txIndex, nil
		}

		end := batch.Header.PrevTotalElements.Uint64() + batch.Header.BatchSize.Uint64()
		if end <= txIndex {
			return 0, fmt.Errorf("state batch %s does not advance past transaction index %d", batch.Header.BatchIndex, txIndex)
		}
		txIndex = end
	}
}

// relay handles one message. Transient failures keep the message pending; a
// structurally broken proof drops it.
func (s *Service) relay(ctx context.Context, sent messenger.SentMessage) error {
	log := s.logger.With("message_hash", sent.Hash).With("l2_block", sent.BlockNumber)

	previous := s.pending[sent.Hash].txHash

	existing, err := s.watcher.AwaitRelay(ctx, sent.Hash, false)
	if err != nil {
		return s.fail(log, sent, previous, "failed to check relay status", err)
	}
	if existing != nil {
		delete(s.pending, sent.Hash)
		messagesHandled.WithLabelValues(outcomeAlreadyRelayed).Inc()
		log.With("tx_hash", existing.Receipt.TxHash).With("failed", existing.Failed()).Info("message already relayed, skipping")
		return nil
	}

	if previous != (common.Hash{}) {
		busy, err := s.inFlight(ctx, previous)
		if err != nil {
			return s.fail(log, sent, previous, "failed to check relay transaction", err)
		}
		if busy {
			log.With("tx_hash", previous).Info("relay transaction still pending, not resubmitting")
			return nil
		}
		log.With("tx_hash", previous).Warn("relay transaction left the mempool without relaying, resubmitting")
	}

	msgProof, err := s.builder.MessageProof(ctx, sent)
	if err != nil {
		var proofErr *proof.ProofConstructionError
		if errors.As(err, &proofErr) && !proofErr.Retryable {
			delete(s.pending, sent.Hash)
			messagesHandled.WithLabelValues(outcomeDropped).Inc()
			log.With("err", err).Error("message proof is invalid, dropping message")
			return err
		}
		return s.fail(log, sent, common.Hash{}, "failed to build message proof", err)
	}

	tx, err := s.signRelay(ctx, sent, msgProof)
	if err != nil {
		return s.fail(log, sent, common.Hash{}, "failed to sign relay transaction", err)
	}

	if err := s.submit(ctx, tx); err != nil {
		return s.fail(log, sent, common.Hash{}, "failed to submit relay transaction", err)
	}
	log = log.With("tx_hash", tx.Hash())
	log.Info("relay transaction submitted")

	awaitCtx := ctx
	if s.cfg.RelayTimeout > 0 {
		var cancel context.CancelFunc
		awaitCtx, cancel = context.WithTimeout(ctx, s.cfg.RelayTimeout)
		defer cancel()
	}

	relay, err := s.watcher.AwaitRelay(awaitCtx, sent.Hash, true)
	if err != nil {
		return s.fail(log, sent, tx.Hash(), "relay not observed", err)
	}

	delete(s.pending, sent.Hash)
	if relay.Failed() {
		messagesHandled.WithLabelValues(outcomeRelayFailed).Inc()
		log.Warn("message relay failed on L1")
		return nil
	}

	messagesHandled.WithLabelValues(outcomeRelayed).Inc()
	log.Info("message relayed")
	return nil
}

// fail keeps sent for the next cycle. txHash is the relay transaction still
// possibly in flight, zero when none is.
func (s *Service) fail(log *slog.Logger, sent messenger.SentMessage, txHash common.Hash, msg string, err error) error {
	if messenger.IsFatal(err) {
		log.With("err", err).Error(msg)
		return err
	}

	s.pending[sent.Hash] = pendingRelay{sent: sent, txHash: txHash}
	messagesHandled.WithLabelValues(outcomeRetry).Inc()
	log.With("err", err).Warn(msg + ", will retry")
	return fmt.Errorf("%s: %w", msg, err)
}

// inFlight reports whether txHash is still waiting in the mempool. A mined or
// dropped transaction is not in flight.
func (s *Service) inFlight(ctx context.Context, txHash common.Hash) (bool, error) {
	receipt, err := s.account.TransactionReceipt(ctx, txHash)
	switch {
	case err == nil && receipt != nil:
		return false, nil
	case err != nil && !errors.Is(err, ethereum.NotFound):
		return false, fmt.Errorf("failed to get relay receipt: %w", err)
	}

	_, isPending, err := s.account.TransactionByHash(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get relay transaction: %w", err)
	}
	return isPending, nil
}

func (s *Service) signRelay(ctx context.Context, sent messenger.SentMessage, msgProof *proof.MessageProof) (*types.Transaction, error) {
	msg := sent.Message
	calldata, err := s.abi.Pack("relayMessage", msg.Target, msg.Sender, msg.Message, msg.Nonce, *msgProof)
	if err != nil {
		return nil, fmt.Errorf("failed to pack relayMessage: %w", err)
	}

	chainID, err := s.account.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	nonce, err := s.account.PendingNonceAt(ctx, s.from)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending nonce: %w", err)
	}
	gasPrice, err := s.account.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	to := s.watcher.Destination().Messenger
	txData := &types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: gasPrice,
		GasFeeCap: new(big.Int).Mul(gasPrice, big.NewInt(2)),
		Gas:       s.cfg.GasLimit,
		To:        &to,
		Value:     big.NewInt(0),
		Data:      calldata,
	}

	return types.SignTx(types.NewTx(txData), types.LatestSignerForChainID(chainID), s.cfg.PrivateKey)
}

func (s *Service) submit(ctx context.Context, tx *types.Transaction) error {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal transaction: %w", err)
	}

	param, err := json.Marshal(hexutil.Encode(raw))
	if err != nil {
		return fmt.Errorf("failed to encode transaction: %w", err)
	}

	result, err := s.submitter.Handle(ctx, router.MethodSendRawTransaction, []json.RawMessage{param}, SourceIP)
	if err != nil {
		return err
	}

	var hash common.Hash
	if err := json.Unmarshal(result, &hash); err != nil {
		return fmt.Errorf("failed to decode transaction hash: %w", err)
	}
	if hash != tx.Hash() {
		s.logger.With("expected", tx.Hash()).With("returned", hash).Warn("node returned an unexpected transaction hash")
	}

	return nil
}
