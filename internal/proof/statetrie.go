package proof

import (
	"context"
	"fmt"
	"math/big"

	"github.com/compose-network/xdomain-relayer/internal/chain"
	"github.com/compose-network/xdomain-relayer/internal/codec"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/trie"
)

// StateTrieProof is the account and storage inclusion proof of one storage slot.
type StateTrieProof struct {
	AccountProof [][]byte
	StorageProof [][]byte
	StorageValue *big.Int
	StorageRoot  common.Hash
}

// BuildStateTrieProof fetches the eth_getProof witness of address/slot at blockNumber.
// When the storage proof ends in a branch node that embeds the slot's leaf, the
// embedded node is appended so the on-chain verifier can terminate on it.
func BuildStateTrieProof(ctx context.Context, client chain.ChainClient, blockNumber uint64, address common.Address, slot common.Hash) (*StateTrieProof, error) {
	result, err := client.GetProof(ctx, address, []common.Hash{slot}, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return nil, retryable("eth_getProof failed", err)
	}
	if result == nil {
		return nil, malformed("eth_getProof returned no result", nil)
	}
	if len(result.StorageProof) != 1 {
		return nil, malformed(fmt.Sprintf("expected 1 storage proof, got %d", len(result.StorageProof)), nil)
	}

	accountProof, err := codec.FromHexStrings(result.AccountProof)
	if err != nil {
		return nil, malformed("invalid account proof", err)
	}
	if len(accountProof) == 0 {
		return nil, malformed("empty account proof", nil)
	}

	storage := result.StorageProof[0]
	storageProof, err := codec.FromHexStrings(storage.Proof)
	if err != nil {
		return nil, malformed("invalid storage proof", err)
	}
	if len(storageProof) > 0 {
		storageProof, err = codec.MaybeAddProofNode(crypto.Keccak256(slot.Bytes()), storageProof)
		if err != nil {
			return nil, malformed("invalid storage proof node", err)
		}
	}

	value := new(big.Int)
	if storage.Value != nil {
		value = storage.Value.ToInt()
	}

	return &StateTrieProof{
		AccountProof: accountProof,
		StorageProof: storageProof,
		StorageValue: value,
		StorageRoot:  result.StorageHash,
	}, nil
}

// VerifyStateTrieProof checks proof against root for key in a secure trie, where
// nodes are keyed by keccak256(key). It returns the proven value, or nil when the
// proof shows the key is absent.
func VerifyStateTrieProof(root common.Hash, key []byte, proof [][]byte) ([]byte, error) {
	db := memorydb.New()
	for _, node := range proof {
		if err := db.Put(crypto.Keccak256(node), node); err != nil {
			return nil, fmt.Errorf("failed to load proof node: %w", err)
		}
	}

	value, err := trie.VerifyProof(root, crypto.Keccak256(key), db)
	if err != nil {
		return nil, fmt.Errorf("failed to verify proof: %w", err)
	}
	return value, nil
}
