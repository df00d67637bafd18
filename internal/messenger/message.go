package messenger

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/compose-network/xdomain-relayer/internal/bindings"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type Direction string

const (
	DirectionL1ToL2 Direction = "L1_TO_L2"
	DirectionL2ToL1 Direction = "L2_TO_L1"
)

const relayMessageMethod = "relayMessage"

var (
	ErrMalformedMessage = errors.New("malformed cross domain message")

	messengerABIOnce sync.Once
	messengerABI     *abi.ABI
	messengerABIErr  error
)

// CrossChainMessage is a message as the source messenger committed to it. Its
// encoding is the destination relayMessage calldata without the proof.
type CrossChainMessage struct {
	Direction Direction
	Sender    common.Address
	Target    common.Address
	Message   []byte
	Nonce     *big.Int
}

func loadMessengerABI() (*abi.ABI, error) {
	messengerABIOnce.Do(func() {
		messengerABI, messengerABIErr = bindings.L2CrossDomainMessengerMetaData.GetAbi()
	})
	return messengerABI, messengerABIErr
}

// Encode returns relayMessage(target, sender, message, nonce) calldata.
func (m CrossChainMessage) Encode() ([]byte, error) {
	parsed, err := loadMessengerABI()
	if err != nil {
		return nil, fmt.Errorf("failed to load messenger abi: %w", err)
	}

	nonce := m.Nonce
	if nonce == nil {
		nonce = new(big.Int)
	}

	encoded, err := parsed.Pack(relayMessageMethod, m.Target, m.Sender, m.Message, nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return encoded, nil
}

// Hash is the content address both chains agree on: keccak256 of the encoding.
func (m CrossChainMessage) Hash() (common.Hash, error) {
	encoded, err := m.Encode()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}

// DecodeMessage parses relayMessage calldata back into a message. The direction is
// not part of the encoding and is left for the caller to set.
func DecodeMessage(encoded []byte) (CrossChainMessage, error) {
	parsed, err := loadMessengerABI()
	if err != nil {
		return CrossChainMessage{}, fmt.Errorf("failed to load messenger abi: %w", err)
	}

	method := parsed.Methods[relayMessageMethod]
	if len(encoded) < 4 || !bytes.Equal(encoded[:4], method.ID) {
		return CrossChainMessage{}, fmt.Errorf("%w: unexpected selector", ErrMalformedMessage)
	}

	values, err := method.Inputs.Unpack(encoded[4:])
	if err != nil {
		return CrossChainMessage{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if len(values) != 4 {
		return CrossChainMessage{}, fmt.Errorf("%w: expected 4 arguments, got %d", ErrMalformedMessage, len(values))
	}

	target, okTarget := values[0].(common.Address)
	sender, okSender := values[1].(common.Address)
	message, okMessage := values[2].([]byte)
	nonce, okNonce := values[3].(*big.Int)
	if !okTarget || !okSender || !okMessage || !okNonce {
		return CrossChainMessage{}, fmt.Errorf("%w: unexpected argument types", ErrMalformedMessage)
	}

	return CrossChainMessage{
		Sender:  sender,
		Target:  target,
		Message: message,
		Nonce:   nonce,
	}, nil
}
