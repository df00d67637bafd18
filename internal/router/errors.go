package router

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// JSON-RPC error codes returned to callers.
const (
	CodeParseError       = -32700
	CodeInvalidRequest   = -32600
	CodeMethodNotFound   = -32601
	CodeInvalidParams    = -32602
	CodeInternalError    = -32603
	CodeInvalidDest      = -32010
	CodeRateLimited      = -32016
	CodeTransactionLimit = -32017
)

type (
	UnsupportedMethodError struct {
		Method string
	}

	// InvalidDestinationError rejects a transaction sent to an address outside the
	// allowlist. To is nil for contract creation.
	InvalidDestinationError struct {
		To     *common.Address
		Sender common.Address
	}

	InvalidParamsError struct {
		Reason string
	}
)

func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("unsupported method: %s", e.Method)
}

func (e *UnsupportedMethodError) ErrorCode() int { return CodeMethodNotFound }

func (e *InvalidDestinationError) Error() string {
	if e.To == nil {
		return fmt.Sprintf("contract creation by %s is not allowed", e.Sender.Hex())
	}
	return fmt.Sprintf("destination %s is not allowed", e.To.Hex())
}

func (e *InvalidDestinationError) ErrorCode() int { return CodeInvalidDest }

func (e *InvalidParamsError) Error() string {
	return fmt.Sprintf("invalid params: %s", e.Reason)
}

func (e *InvalidParamsError) ErrorCode() int { return CodeInvalidParams }
