package messenger

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	SentMessageTopic          = crypto.Keccak256Hash([]byte("SentMessage(bytes)"))
	RelayedMessageTopic       = crypto.Keccak256Hash([]byte("RelayedMessage(bytes32)"))
	FailedRelayedMessageTopic = crypto.Keccak256Hash([]byte("FailedRelayedMessage(bytes32)"))

	ErrUnknownEvent = errors.New("log is not a messenger event")
)

type (
	// Event is one of MessageSentEvent, RelayedEvent or FailedRelayedEvent.
	Event interface {
		Log() types.Log
		isEvent()
	}

	MessageSentEvent struct {
		Raw     types.Log
		Encoded []byte
		Message CrossChainMessage
	}

	RelayedEvent struct {
		Raw         types.Log
		MessageHash common.Hash
	}

	FailedRelayedEvent struct {
		Raw         types.Log
		MessageHash common.Hash
	}
)

func (e *MessageSentEvent) Log() types.Log   { return e.Raw }
func (e *RelayedEvent) Log() types.Log       { return e.Raw }
func (e *FailedRelayedEvent) Log() types.Log { return e.Raw }

func (*MessageSentEvent) isEvent()   {}
func (*RelayedEvent) isEvent()       {}
func (*FailedRelayedEvent) isEvent() {}

// Hash returns the content address of the sent message.
func (e *MessageSentEvent) Hash() common.Hash {
	return crypto.Keccak256Hash(e.Encoded)
}

// DecodeLog turns a raw messenger log into its typed event. Logs with any other
// topic return ErrUnknownEvent.
func DecodeLog(log types.Log) (Event, error) {
	if len(log.Topics) == 0 {
		return nil, ErrUnknownEvent
	}

	switch log.Topics[0] {
	case SentMessageTopic:
		parsed, err := loadMessengerABI()
		if err != nil {
			return nil, fmt.Errorf("failed to load messenger abi: %w", err)
		}

		values, err := parsed.Unpack("SentMessage", log.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to unpack SentMessage: %w", err)
		}
		encoded, ok := values[0].([]byte)
		if !ok {
			return nil, fmt.Errorf("%w: SentMessage payload is not bytes", ErrMalformedMessage)
		}

		message, err := DecodeMessage(encoded)
		if err != nil {
			return nil, err
		}

		return &MessageSentEvent{Raw: log, Encoded: encoded, Message: message}, nil
	case RelayedMessageTopic:
		hash, err := relayHash(log)
		if err != nil {
			return nil, err
		}
		return &RelayedEvent{Raw: log, MessageHash: hash}, nil
	case FailedRelayedMessageTopic:
		hash, err := relayHash(log)
		if err != nil {
			return nil, err
		}
		return &FailedRelayedEvent{Raw: log, MessageHash: hash}, nil
	default:
		return nil, ErrUnknownEvent
	}
}

func relayHash(log types.Log) (common.Hash, error) {
	if len(log.Data) != common.HashLength {
		return common.Hash{}, fmt.Errorf("relay event data must be %d bytes, got %d", common.HashLength, len(log.Data))
	}
	return common.BytesToHash(log.Data), nil
}
