package proof

import (
	"errors"
	"fmt"
)

// ProofConstructionError reports a proof that could not be built. Retryable is set
// when the cause was a transient RPC failure rather than malformed proof data.
type ProofConstructionError struct {
	Retryable bool
	Reason    string
	Err       error
}

func (e *ProofConstructionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("proof construction failed: %s", e.Reason)
	}
	return fmt.Sprintf("proof construction failed: %s: %v", e.Reason, e.Err)
}

func (e *ProofConstructionError) Unwrap() error {
	return e.Err
}

func retryable(reason string, err error) error {
	return &ProofConstructionError{Retryable: true, Reason: reason, Err: err}
}

func malformed(reason string, err error) error {
	return &ProofConstructionError{Reason: reason, Err: err}
}

// IsRetryable reports whether err is a ProofConstructionError worth retrying.
func IsRetryable(err error) bool {
	var proofErr *ProofConstructionError
	return errors.As(err, &proofErr) && proofErr.Retryable
}
