package proof

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/stretchr/testify/require"
)

// proofList collects proof nodes in the order the trie writes them, root first.
type proofList [][]byte

func (p *proofList) Put(_ []byte, value []byte) error {
	*p = append(*p, common.CopyBytes(value))
	return nil
}

func (p *proofList) Delete([]byte) error {
	return nil
}

func (p proofList) hex() []string {
	out := make([]string, len(p))
	for i, node := range p {
		out[i] = hexutil.Encode(node)
	}
	return out
}

// secureTrie builds a trie keyed by keccak256(key) and returns its root and a
// proof for every key.
func secureTrie(t *testing.T, entries map[string][]byte) (common.Hash, map[string]proofList) {
	t.Helper()

	tr := trie.NewEmpty(triedb.NewDatabase(rawdb.NewMemoryDatabase(), nil))
	for key, value := range entries {
		require.NoError(t, tr.Update(crypto.Keccak256([]byte(key)), value))
	}
	root := tr.Hash()

	proofs := make(map[string]proofList, len(entries))
	for key := range entries {
		var list proofList
		require.NoError(t, tr.Prove(crypto.Keccak256([]byte(key)), &list))
		proofs[key] = list
	}
	return root, proofs
}
