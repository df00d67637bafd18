package proof

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/compose-network/xdomain-relayer/internal/chain"
	"github.com/compose-network/xdomain-relayer/internal/codec"
	"github.com/compose-network/xdomain-relayer/internal/logger"
	"github.com/compose-network/xdomain-relayer/internal/messenger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

type (
	ChainInclusionProof struct {
		Index    *big.Int
		Siblings [][32]byte
	}

	// MessageProof is the L2MessageInclusionProof argument of the L1 messenger's
	// relayMessage. Field names follow the ABI tuple so it packs directly.
	MessageProof struct {
		StateRoot            [32]byte
		StateRootBatchHeader StateBatchHeader
		StateRootProof       ChainInclusionProof
		StateTrieWitness     []byte
		StorageTrieWitness   []byte
	}

	// MessageProofView is MessageProof rendered for humans and files.
	MessageProofView struct {
		MessageHash        common.Hash   `json:"messageHash" yaml:"messageHash"`
		StateRoot          common.Hash   `json:"stateRoot" yaml:"stateRoot"`
		BatchIndex         uint64        `json:"batchIndex" yaml:"batchIndex"`
		BatchRoot          common.Hash   `json:"batchRoot" yaml:"batchRoot"`
		BatchSize          uint64        `json:"batchSize" yaml:"batchSize"`
		PrevTotalElements  uint64        `json:"prevTotalElements" yaml:"prevTotalElements"`
		ExtraData          hexutil.Bytes `json:"extraData" yaml:"extraData"`
		Index              uint64        `json:"index" yaml:"index"`
		Siblings           []common.Hash `json:"siblings" yaml:"siblings"`
		StateTrieWitness   hexutil.Bytes `json:"stateTrieWitness" yaml:"stateTrieWitness"`
		StorageTrieWitness hexutil.Bytes `json:"storageTrieWitness" yaml:"storageTrieWitness"`
	}

	BuilderConfig struct {
		L2Messenger   common.Address
		MessagePasser common.Address
	}

	// Builder assembles relay proofs for L2 to L1 messages.
	Builder struct {
		l2     chain.ChainClient
		oracle *StateBatchOracle
		cfg    BuilderConfig
		logger *slog.Logger
	}
)

func NewBuilder(l2 chain.ChainClient, oracle *StateBatchOracle, cfg BuilderConfig) *Builder {
	return &Builder{
		l2:     l2,
		oracle: oracle,
		cfg:    cfg,
		logger: logger.Named("proof_builder"),
	}
}

// MessageSlot is the message passer storage slot recording a sent message:
// keccak256(keccak256(encoded ++ messenger) ++ 32 zero bytes).
func MessageSlot(encoded []byte, l2Messenger common.Address) common.Hash {
	inner := crypto.Keccak256(encoded, l2Messenger.Bytes())
	return crypto.Keccak256Hash(inner, make([]byte, 32))
}

// MessageProof builds the full inclusion proof of an L2 to L1 message: the storage
// proof of its message passer slot and the Merkle proof of the state root inside
// its L1 state batch.
func (b *Builder) MessageProof(ctx context.Context, sent messenger.SentMessage) (*MessageProof, error) {
	log := b.logger.With("message_hash", sent.Hash).With("l2_block", sent.BlockNumber)

	txIndex, ok := b.oracle.TransactionIndex(sent.BlockNumber)
	if !ok {
		return nil, malformed(fmt.Sprintf("l2 block %d is below the block offset", sent.BlockNumber), nil)
	}

	encoded, err := sent.Message.Encode()
	if err != nil {
		return nil, malformed("failed to encode message", err)
	}
	slot := MessageSlot(encoded, b.cfg.L2Messenger)

	stateTrie, err := BuildStateTrieProof(ctx, b.l2, txIndex+b.oracle.L2BlockOffset(), b.cfg.MessagePasser, slot)
	if err != nil {
		return nil, err
	}
	if len(stateTrie.StorageProof) == 0 {
		return nil, malformed("message passer slot has no storage proof", nil)
	}

	batch, err := b.oracle.BatchForIndex(ctx, txIndex)
	if err != nil {
		return nil, retryable("failed to look up state batch", err)
	}
	if batch == nil {
		return nil, retryable(fmt.Sprintf("no state batch covers transaction index %d", txIndex), nil)
	}

	index := txIndex - batch.Header.PrevTotalElements.Uint64()
	siblings, err := BuildBalancedProof(batch.StateRoots, index)
	if err != nil {
		return nil, malformed("failed to build state root proof", err)
	}

	stateTrieWitness, err := codec.EncodeProof(stateTrie.AccountProof)
	if err != nil {
		return nil, malformed("failed to encode account proof", err)
	}
	storageTrieWitness, err := codec.EncodeProof(stateTrie.StorageProof)
	if err != nil {
		return nil, malformed("failed to encode storage proof", err)
	}

	proofSiblings := make([][32]byte, len(siblings))
	for i, s := range siblings {
		proofSiblings[i] = s
	}

	log.With("batch_index", batch.Header.BatchIndex).With("index", index).Info("message proof built")

	return &MessageProof{
		StateRoot:            batch.StateRoots[index],
		StateRootBatchHeader: batch.Header,
		StateRootProof: ChainInclusionProof{
			Index:    new(big.Int).SetUint64(index),
			Siblings: proofSiblings,
		},
		StateTrieWitness:   stateTrieWitness,
		StorageTrieWitness: storageTrieWitness,
	}, nil
}

// View renders the proof of the message with the given hash.
func (p *MessageProof) View(messageHash common.Hash) MessageProofView {
	siblings := make([]common.Hash, len(p.StateRootProof.Siblings))
	for i, s := range p.StateRootProof.Siblings {
		siblings[i] = s
	}

	header := p.StateRootBatchHeader
	return MessageProofView{
		MessageHash:        messageHash,
		StateRoot:          p.StateRoot,
		BatchIndex:         bigUint64(header.BatchIndex),
		BatchRoot:          header.BatchRoot,
		BatchSize:          bigUint64(header.BatchSize),
		PrevTotalElements:  bigUint64(header.PrevTotalElements),
		ExtraData:          header.ExtraData,
		Index:              bigUint64(p.StateRootProof.Index),
		Siblings:           siblings,
		StateTrieWitness:   p.StateTrieWitness,
		StorageTrieWitness: p.StorageTrieWitness,
	}
}

func bigUint64(v *big.Int) uint64 {
	if v == nil {
		return 0
	}
	return v.Uint64()
}
