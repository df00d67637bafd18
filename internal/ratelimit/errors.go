package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

type (
	// RateLimitError rejects a request whose source IP exceeded its window.
	RateLimitError struct {
		Key           string `json:"key"`
		ObservedCount int    `json:"observedCount"`
		Limit         int    `json:"limit"`
		WindowMillis  int64  `json:"windowMillis"`
	}

	// TransactionLimitError rejects a transaction whose sender exceeded its window.
	TransactionLimitError struct {
		RateLimitError
	}
)

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: %d requests in %dms (limit %d)", e.Key, e.ObservedCount, e.WindowMillis, e.Limit)
}

func (e *TransactionLimitError) Error() string {
	return fmt.Sprintf("transaction limit exceeded for %s: %d transactions in %dms (limit %d)", e.Key, e.ObservedCount, e.WindowMillis, e.Limit)
}

// Details returns the payload of either limit error.
func Details(err error) (*RateLimitError, bool) {
	var txErr *TransactionLimitError
	if errors.As(err, &txErr) {
		return &txErr.RateLimitError, true
	}

	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return rateErr, true
	}

	return nil, false
}

// RetryAfter is how long a rejected caller should back off.
func RetryAfter(err error) (time.Duration, bool) {
	details, ok := Details(err)
	if !ok {
		return 0, false
	}
	return time.Duration(details.WindowMillis) * time.Millisecond, true
}
