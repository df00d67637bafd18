package proof

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ZeroLeaf pads balanced trees: keccak256 of 32 zero bytes.
	ZeroLeaf = crypto.Keccak256Hash(make([]byte, 32))

	ErrNoLeaves     = errors.New("merkle tree needs at least one leaf")
	ErrIndexOutside = errors.New("leaf index outside of tree")
)

// MerkleInclusionProof proves Value sits at leaf Index of the tree rooted at RootHash.
type MerkleInclusionProof struct {
	RootHash common.Hash   `json:"rootHash" yaml:"rootHash"`
	Index    uint64        `json:"index" yaml:"index"`
	Value    common.Hash   `json:"value" yaml:"value"`
	Siblings []common.Hash `json:"siblings" yaml:"siblings"`
}

// PadLeaves extends leaves with ZeroLeaf up to the next power of two.
func PadLeaves(leaves []common.Hash) []common.Hash {
	size := 1
	for size < len(leaves) {
		size <<= 1
	}

	padded := make([]common.Hash, size)
	copy(padded, leaves)
	for i := len(leaves); i < size; i++ {
		padded[i] = ZeroLeaf
	}
	return padded
}

func hashPair(left, right common.Hash) common.Hash {
	return crypto.Keccak256Hash(left.Bytes(), right.Bytes())
}

// BuildBalancedProof returns the sibling path of leaves[index] in the zero padded,
// left to right tree the state commitment chain verifies against.
func BuildBalancedProof(leaves []common.Hash, index uint64) ([]common.Hash, error) {
	if len(leaves) == 0 {
		return nil, ErrNoLeaves
	}
	if index >= uint64(len(leaves)) {
		return nil, fmt.Errorf("%w: index %d, %d leaves", ErrIndexOutside, index, len(leaves))
	}

	level := PadLeaves(leaves)
	siblings := make([]common.Hash, 0)

	for len(level) > 1 {
		siblings = append(siblings, level[index^1])

		next := make([]common.Hash, len(level)/2)
		for i := range next {
			next[i] = hashPair(level[2*i], level[2*i+1])
		}
		level = next
		index >>= 1
	}

	return siblings, nil
}

// ComputeRoot returns the root of the zero padded tree over leaves.
func ComputeRoot(leaves []common.Hash) (common.Hash, error) {
	if len(leaves) == 0 {
		return common.Hash{}, ErrNoLeaves
	}

	level := PadLeaves(leaves)
	for len(level) > 1 {
		next := make([]common.Hash, len(level)/2)
		for i := range next {
			next[i] = hashPair(level[2*i], level[2*i+1])
		}
		level = next
	}
	return level[0], nil
}

// RootFromProof hashes value up through siblings, taking the left or right branch
// from the bits of index.
func RootFromProof(value common.Hash, index uint64, siblings []common.Hash) common.Hash {
	node := value
	for _, sibling := range siblings {
		if index&1 == 0 {
			node = hashPair(node, sibling)
		} else {
			node = hashPair(sibling, node)
		}
		index >>= 1
	}
	return node
}

// NewMerkleInclusionProof builds the proof for leaves[index] together with its root.
func NewMerkleInclusionProof(leaves []common.Hash, index uint64) (*MerkleInclusionProof, error) {
	siblings, err := BuildBalancedProof(leaves, index)
	if err != nil {
		return nil, err
	}
	root, err := ComputeRoot(leaves)
	if err != nil {
		return nil, err
	}

	return &MerkleInclusionProof{
		RootHash: root,
		Index:    index,
		Value:    leaves[index],
		Siblings: siblings,
	}, nil
}

// Verify recomputes the root from the proof.
func (p *MerkleInclusionProof) Verify() bool {
	return RootFromProof(p.Value, p.Index, p.Siblings) == p.RootHash
}
