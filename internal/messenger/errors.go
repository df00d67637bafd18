package messenger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

type (
	// NotFoundError reports source data that is not available yet. Retryable.
	NotFoundError struct {
		TxHash common.Hash
	}

	// DuplicateRelayError reports more than one relay event for a single message.
	// The relay invariant is broken and the task observing it must stop.
	DuplicateRelayError struct {
		MessageHash common.Hash
		TxHashes    []common.Hash
	}
)

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("transaction %s has no receipt yet", e.TxHash.Hex())
}

func (e *DuplicateRelayError) Error() string {
	hashes := make([]string, len(e.TxHashes))
	for i, h := range e.TxHashes {
		hashes[i] = h.Hex()
	}
	return fmt.Sprintf("message %s relayed %d times (txs %s)", e.MessageHash.Hex(), len(e.TxHashes), strings.Join(hashes, ", "))
}

// IsFatal reports whether err breaks a relay invariant and must terminate the task.
func IsFatal(err error) bool {
	var duplicate *DuplicateRelayError
	return errors.As(err, &duplicate)
}

// IsNotFound reports whether err is a retryable missing-data error.
func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}
