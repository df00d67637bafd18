// Package codec holds the pure encoding helpers shared by the proof and
// messenger packages: hex strings, RLP trie nodes and proof post-processing.
package codec

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ToHexString encodes b as a 0x-prefixed lower case hex string.
func ToHexString(b []byte) string {
	return hexutil.Encode(b)
}

// FromHexString decodes a hex string with or without the 0x prefix. Odd-length
// input is left padded with a zero nibble, matching how RPC quantities are rendered.
func FromHexString(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s)%2 == 1 {
		s = "0" + s
	}

	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode hex: %w", err)
	}

	return b, nil
}

// FromHexStrings decodes every element of ss.
func FromHexStrings(ss []string) ([][]byte, error) {
	out := make([][]byte, 0, len(ss))
	for i, s := range ss {
		b, err := FromHexString(s)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, b)
	}
	return out, nil
}
