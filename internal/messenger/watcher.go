package messenger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/compose-network/xdomain-relayer/internal/chain"
	"github.com/compose-network/xdomain-relayer/internal/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type (
	// Sleeper blocks for d or until ctx is done.
	Sleeper func(ctx context.Context, d time.Duration) error

	// SentMessage is a decoded SentMessage event with its position on the source chain.
	SentMessage struct {
		Message     CrossChainMessage
		Hash        common.Hash
		TxHash      common.Hash
		BlockNumber uint64
		LogIndex    uint
	}

	// Relay is the destination side outcome of a message.
	Relay struct {
		Event   Event
		Receipt *types.Receipt
	}

	WatcherConfig struct {
		Direction      Direction
		PollInterval   time.Duration
		LookbackBlocks uint64
	}

	// Watcher follows one direction of the bridge: SentMessage events on the source
	// layer and relay events on the destination layer.
	Watcher struct {
		source      chain.Layer
		destination chain.Layer
		cfg         WatcherConfig
		sleep       Sleeper
		logger      *slog.Logger
	}
)

// Failed reports whether the relay transaction emitted FailedRelayedMessage. A nil
// relay has not failed.
func (r *Relay) Failed() bool {
	if r == nil {
		return false
	}
	_, failed := r.Event.(*FailedRelayedEvent)
	return failed
}

func NewWatcher(source, destination chain.Layer, cfg WatcherConfig) *Watcher {
	return &Watcher{
		source:      source,
		destination: destination,
		cfg:         cfg,
		sleep:       sleepContext,
		logger:      logger.Named("message_watcher").With("direction", cfg.Direction),
	}
}

// WithSleeper replaces the poll sleep, mostly for tests.
func (w *Watcher) WithSleeper(sleep Sleeper) *Watcher {
	w.sleep = sleep
	return w
}

func (w *Watcher) Direction() Direction {
	return w.cfg.Direction
}

func (w *Watcher) Source() chain.Layer {
	return w.source
}

func (w *Watcher) Destination() chain.Layer {
	return w.destination
}

// Correlate returns the hash of every message the source transaction sent, in log
// order. It returns NotFoundError while the transaction has no receipt.
func (w *Watcher) Correlate(ctx context.Context, sourceTxHash common.Hash) ([]common.Hash, error) {
	sent, err := w.MessagesFromTransaction(ctx, sourceTxHash)
	if err != nil {
		return nil, err
	}

	hashes := make([]common.Hash, len(sent))
	for i, msg := range sent {
		hashes[i] = msg.Hash
	}
	return hashes, nil
}

// MessagesFromTransaction decodes the SentMessage events of a source transaction.
func (w *Watcher) MessagesFromTransaction(ctx context.Context, sourceTxHash common.Hash) ([]SentMessage, error) {
	receipt, err := w.source.Client.TransactionReceipt(ctx, sourceTxHash)
	if errors.Is(err, ethereum.NotFound) || (err == nil && receipt == nil) {
		return nil, &NotFoundError{TxHash: sourceTxHash}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source receipt: %w", err)
	}

	var sent []SentMessage
	for _, log := range receipt.Logs {
		if log == nil || log.Address != w.source.Messenger {
			continue
		}
		if len(log.Topics) == 0 || log.Topics[0] != SentMessageTopic {
			continue
		}

		msg, err := w.decodeSent(*log)
		if err != nil {
			return nil, err
		}
		sent = append(sent, msg)
	}

	return sent, nil
}

// SentMessagesInRange returns the messages sent on the source layer in [from, to].
func (w *Watcher) SentMessagesInRange(ctx context.Context, from, to uint64) ([]SentMessage, error) {
	if to < from {
		return nil, nil
	}

	logs, err := w.source.Client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{w.source.Messenger},
		Topics:    [][]common.Hash{{SentMessageTopic}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter SentMessage logs: %w", err)
	}

	sent := make([]SentMessage, 0, len(logs))
	for _, log := range logs {
		msg, err := w.decodeSent(log)
		if err != nil {
			w.logger.With("tx_hash", log.TxHash).With("err", err).Warn("skipping undecodable SentMessage log")
			continue
		}
		sent = append(sent, msg)
	}

	return sent, nil
}

func (w *Watcher) decodeSent(log types.Log) (SentMessage, error) {
	event, err := DecodeLog(log)
	if err != nil {
		return SentMessage{}, fmt.Errorf("failed to decode SentMessage in %s: %w", log.TxHash.Hex(), err)
	}
	sentEvent, ok := event.(*MessageSentEvent)
	if !ok {
		return SentMessage{}, fmt.Errorf("unexpected event type %T", event)
	}

	message := sentEvent.Message
	message.Direction = w.cfg.Direction

	return SentMessage{
		Message:     message,
		Hash:        sentEvent.Hash(),
		TxHash:      log.TxHash,
		BlockNumber: log.BlockNumber,
		LogIndex:    log.Index,
	}, nil
}

// AwaitRelay looks for the relay of messageHash on the destination layer within the
// configured lookback window. With poll set it sleeps and rescans until a relay shows
// up or ctx ends; without it, it returns nil when nothing was found. More than one
// relay event for the hash is reported as DuplicateRelayError.
func (w *Watcher) AwaitRelay(ctx context.Context, messageHash common.Hash, poll bool) (*Relay, error) {
	log := w.logger.With("message_hash", messageHash)

	for {
		relay, err := w.findRelay(ctx, messageHash)
		if err != nil {
			return nil, err
		}
		if relay != nil {
			log.With("tx_hash", relay.Receipt.TxHash).With("failed", relay.Failed()).Info("relay observed")
			return relay, nil
		}
		if !poll {
			return nil, nil
		}

		log.Debug("relay not observed yet")
		if err := w.sleep(ctx, w.cfg.PollInterval); err != nil {
			return nil, err
		}
	}
}

func (w *Watcher) findRelay(ctx context.Context, messageHash common.Hash) (*Relay, error) {
	// Re-read on every pass: a stalled destination node must not freeze the window.
	head, err := w.destination.Client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch destination block number: %w", err)
	}

	from := uint64(0)
	if head > w.cfg.LookbackBlocks {
		from = head - w.cfg.LookbackBlocks
	}

	logs, err := w.destination.Client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{w.destination.Messenger},
		Topics:    [][]common.Hash{{RelayedMessageTopic, FailedRelayedMessageTopic}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter relay logs: %w", err)
	}

	var matches []Event
	for _, raw := range logs {
		event, err := DecodeLog(raw)
		if err != nil {
			w.logger.With("tx_hash", raw.TxHash).With("err", err).Warn("skipping undecodable relay log")
			continue
		}

		switch e := event.(type) {
		case *RelayedEvent:
			if e.MessageHash == messageHash {
				matches = append(matches, e)
			}
		case *FailedRelayedEvent:
			if e.MessageHash == messageHash {
				matches = append(matches, e)
			}
		}
	}

	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
	default:
		txHashes := make([]common.Hash, len(matches))
		for i, m := range matches {
			txHashes[i] = m.Log().TxHash
		}
		duplicateRelays.Inc()
		return nil, &DuplicateRelayError{MessageHash: messageHash, TxHashes: txHashes}
	}

	receipt, err := w.destination.Client.TransactionReceipt(ctx, matches[0].Log().TxHash)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch relay receipt: %w", err)
	}

	relay := &Relay{Event: matches[0], Receipt: receipt}
	outcome := "relayed"
	if relay.Failed() {
		outcome = "failed"
	}
	relaysObserved.WithLabelValues(outcome).Inc()

	return relay, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
