package filesystem

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type artifact struct {
	MessageHash common.Hash   `json:"messageHash" yaml:"messageHash"`
	Witness     hexutil.Bytes `json:"witness" yaml:"witness"`
	Index       uint64        `json:"index" yaml:"index"`
}

func testArtifact() artifact {
	return artifact{
		MessageHash: common.HexToHash("0x01"),
		Witness:     hexutil.Bytes{0xde, 0xad},
		Index:       2,
	}
}

func TestWriteFileJSON(t *testing.T) {
	writer, err := NewWriter(FormatJSON)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "proof.json")
	require.NoError(t, WriteFile(writer, path, testArtifact()))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"messageHash": "0x0000000000000000000000000000000000000000000000000000000000000001",
		"witness": "0xdead",
		"index": 2
	}`, string(content))
}

func TestWriteFileYAML(t *testing.T) {
	writer, err := NewWriter("YML")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "proof.yaml")
	require.NoError(t, WriteFile(writer, path, testArtifact()))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "messageHash:")
	assert.Contains(t, string(content), "0x0000000000000000000000000000000000000000000000000000000000000001")
	assert.Contains(t, string(content), "0xdead")
	assert.Contains(t, string(content), "index: 2")
}

func TestNewWriterRejectsUnknownFormat(t *testing.T) {
	_, err := NewWriter("toml")
	assert.Error(t, err)
}
