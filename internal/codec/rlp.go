package codec

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
)

// branchNodeLength is the item count of a Merkle-Patricia branch node:
// sixteen child slots plus the value slot.
const branchNodeLength = 17

var ErrEmptyProof = errors.New("proof has no elements")

// DecodeNode splits an RLP encoded trie node into its raw items.
func DecodeNode(node []byte) ([]rlp.RawValue, error) {
	var items []rlp.RawValue
	if err := rlp.DecodeBytes(node, &items); err != nil {
		return nil, fmt.Errorf("failed to decode trie node: %w", err)
	}
	return items, nil
}

// IsBranchNode reports whether the decoded node is a branch node.
func IsBranchNode(items []rlp.RawValue) bool {
	return len(items) == branchNodeLength
}

// EncodeProof RLP encodes a proof as a list of byte strings, the witness format the
// on-chain trie verifier consumes.
func EncodeProof(proof [][]byte) ([]byte, error) {
	encoded, err := rlp.EncodeToBytes(proof)
	if err != nil {
		return nil, fmt.Errorf("failed to encode proof: %w", err)
	}
	return encoded, nil
}

// MaybeAddProofNode fixes up a proof whose last element is a branch node that embeds
// the leaf for key inline. The on-chain verifier cannot terminate on a bare branch
// node, so the embedded node whose partial path matches the tail of key is appended
// as its own proof element. Proofs that do not end in a branch node, or whose branch
// node carries no matching embedded node, are returned unchanged.
func MaybeAddProofNode(key []byte, proof [][]byte) ([][]byte, error) {
	if len(proof) == 0 {
		return nil, ErrEmptyProof
	}

	modified := make([][]byte, len(proof), len(proof)+1)
	copy(modified, proof)

	items, err := DecodeNode(proof[len(proof)-1])
	if err != nil {
		return nil, err
	}
	if !IsBranchNode(items) {
		return modified, nil
	}

	keyHex := hex.EncodeToString(key)
	for _, item := range items {
		kind, _, _, err := rlp.Split(item)
		if err != nil {
			return nil, fmt.Errorf("failed to split branch item: %w", err)
		}
		if kind != rlp.List {
			continue
		}

		embedded, err := DecodeNode(item)
		if err != nil {
			return nil, err
		}
		if len(embedded) == 0 {
			continue
		}

		var path []byte
		if err := rlp.DecodeBytes(embedded[0], &path); err != nil {
			return nil, fmt.Errorf("failed to decode embedded node path: %w", err)
		}
		if len(path) == 0 {
			continue
		}

		// The first nibble is the compact-encoding flag, the rest is the key remainder.
		suffix := hex.EncodeToString(path)[1:]
		if strings.HasSuffix(keyHex, suffix) {
			modified = append(modified, append([]byte(nil), item...))
		}
	}

	return modified, nil
}
