package messenger

import (
	"context"
	"errors"
	"fmt"

	"github.com/compose-network/xdomain-relayer/internal/chain"
	"github.com/ethereum/go-ethereum"
)

type MessageRelayStatus int

const (
	StatusUnconfirmedSource MessageRelayStatus = iota
	StatusStateRootNotPublished
	StatusInChallengePeriod
	StatusReadyForRelay
	StatusRelayed
	StatusRelayFailed
)

func (s MessageRelayStatus) String() string {
	switch s {
	case StatusUnconfirmedSource:
		return "UNCONFIRMED_SOURCE"
	case StatusStateRootNotPublished:
		return "STATE_ROOT_NOT_PUBLISHED"
	case StatusInChallengePeriod:
		return "IN_CHALLENGE_PERIOD"
	case StatusReadyForRelay:
		return "READY_FOR_RELAY"
	case StatusRelayed:
		return "RELAYED"
	case StatusRelayFailed:
		return "RELAY_FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

func (s MessageRelayStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type RelayOutcome int

const (
	RelayOutcomeNone RelayOutcome = iota
	RelayOutcomeRelayed
	RelayOutcomeFailed
)

type (
	// StatusInputs is everything the status of a message depends on.
	StatusInputs struct {
		Direction          Direction
		SourceConfirmed    bool
		StateRootPublished bool
		InChallengePeriod  bool
		Relay              RelayOutcome
	}

	// StateRootStatus describes the L1 state batch covering an L2 block.
	StateRootStatus struct {
		Published         bool
		InChallengePeriod bool
	}

	// StateRootChecker resolves the L1 publication of the state root for an L2 block.
	StateRootChecker interface {
		StateRootStatus(ctx context.Context, l2BlockNumber uint64) (StateRootStatus, error)
	}

	// Messenger answers status questions for one direction of the bridge.
	Messenger struct {
		watcher             *Watcher
		stateRoots          StateRootChecker
		sourceConfirmations uint64
	}
)

// ResolveStatus derives the relay status of a message. An observed relay wins over
// everything else; state root checks only apply to L2 to L1 messages.
func ResolveStatus(in StatusInputs) MessageRelayStatus {
	switch in.Relay {
	case RelayOutcomeRelayed:
		return StatusRelayed
	case RelayOutcomeFailed:
		return StatusRelayFailed
	}

	if !in.SourceConfirmed {
		return StatusUnconfirmedSource
	}

	if in.Direction == DirectionL2ToL1 {
		if !in.StateRootPublished {
			return StatusStateRootNotPublished
		}
		if in.InChallengePeriod {
			return StatusInChallengePeriod
		}
	}

	return StatusReadyForRelay
}

// NewMessenger builds a status resolver. stateRoots may be nil for L1 to L2 watchers.
func NewMessenger(watcher *Watcher, stateRoots StateRootChecker, sourceConfirmations uint64) *Messenger {
	if sourceConfirmations == 0 {
		sourceConfirmations = 1
	}
	return &Messenger{
		watcher:             watcher,
		stateRoots:          stateRoots,
		sourceConfirmations: sourceConfirmations,
	}
}

func (m *Messenger) Watcher() *Watcher {
	return m.watcher
}

// GetMessageStatus gathers the status inputs of a sent message from both layers.
func (m *Messenger) GetMessageStatus(ctx context.Context, sent SentMessage) (MessageRelayStatus, error) {
	in := StatusInputs{Direction: sent.Message.Direction}

	relay, err := m.watcher.AwaitRelay(ctx, sent.Hash, false)
	if err != nil {
		return 0, err
	}
	if relay != nil {
		in.Relay = RelayOutcomeRelayed
		if relay.Failed() {
			in.Relay = RelayOutcomeFailed
		}
		return ResolveStatus(in), nil
	}

	source := m.watcher.Source().Client
	receipt, err := source.TransactionReceipt(ctx, sent.TxHash)
	switch {
	case errors.Is(err, ethereum.NotFound):
		return ResolveStatus(in), nil
	case err != nil:
		return 0, fmt.Errorf("failed to fetch source receipt: %w", err)
	}

	head, err := source.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch source block number: %w", err)
	}
	in.SourceConfirmed = chain.Depth(receipt, head) >= m.sourceConfirmations
	if !in.SourceConfirmed || in.Direction != DirectionL2ToL1 {
		return ResolveStatus(in), nil
	}

	if m.stateRoots == nil {
		return 0, errors.New("no state root checker configured for L2 to L1 messages")
	}
	root, err := m.stateRoots.StateRootStatus(ctx, sent.BlockNumber)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve state root status: %w", err)
	}
	in.StateRootPublished = root.Published
	in.InChallengePeriod = root.InChallengePeriod

	return ResolveStatus(in), nil
}
