package ratelimit

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/compose-network/xdomain-relayer/internal/logger"
	"github.com/ethereum/go-ethereum/common"
)

const (
	mapIP      = "ip"
	mapAccount = "account"
)

type (
	Config struct {
		Period        time.Duration
		Buckets       int
		IPLimit       int
		AccountLimit  int
		PurgeInterval time.Duration
	}

	// AccountRateLimiter admits requests against two independent counter maps: one
	// keyed by source IP for every request, one keyed by sender for transactions.
	AccountRateLimiter struct {
		cfg     Config
		ip      CounterSet
		account CounterSet
		logger  *slog.Logger

		mu     sync.Mutex
		cancel context.CancelFunc
		wg     sync.WaitGroup
	}
)

// NewAccountRateLimiter keeps both counter maps in process memory.
func NewAccountRateLimiter(cfg Config) *AccountRateLimiter {
	return NewAccountRateLimiterWithCounters(
		cfg,
		NewMemoryCounterSet(cfg.Period, cfg.Buckets),
		NewMemoryCounterSet(cfg.Period, cfg.Buckets),
	)
}

func NewAccountRateLimiterWithCounters(cfg Config, ip, account CounterSet) *AccountRateLimiter {
	return &AccountRateLimiter{
		cfg:     cfg,
		ip:      ip,
		account: account,
		logger:  logger.Named("rate_limiter"),
	}
}

// ValidateIP counts a request from ip and rejects it with a RateLimitError once the
// window holds more than the IP limit.
func (l *AccountRateLimiter) ValidateIP(ctx context.Context, ip string) error {
	if err := l.Validate(ctx, ip, l.ip, l.cfg.IPLimit); err != nil {
		rejections.WithLabelValues(mapIP).Inc()
		return err
	}
	return nil
}

// ValidateAccount counts a transaction from account and rejects it with a
// TransactionLimitError once the window holds more than the account limit.
func (l *AccountRateLimiter) ValidateAccount(ctx context.Context, account common.Address) error {
	err := l.Validate(ctx, strings.ToLower(account.Hex()), l.account, l.cfg.AccountLimit)
	if details, ok := Details(err); ok {
		rejections.WithLabelValues(mapAccount).Inc()
		return &TransactionLimitError{RateLimitError: *details}
	}
	return err
}

// Validate increments the counter for key and compares it to limit. A failing
// counter backend admits the request.
func (l *AccountRateLimiter) Validate(ctx context.Context, key string, counters CounterSet, limit int) error {
	observed, err := counters.Increment(ctx, key)
	if err != nil {
		l.logger.With("key", key, "err", err).Warn("rate limit counter unavailable, admitting request")
		return nil
	}

	if observed > limit {
		l.logger.With("key", key, "observed", observed, "limit", limit).Debug("rate limit exceeded")
		return &RateLimitError{
			Key:           key,
			ObservedCount: observed,
			Limit:         limit,
			WindowMillis:  l.cfg.Period.Milliseconds(),
		}
	}

	return nil
}

// Purge runs one sweep phase on every in-memory counter map.
func (l *AccountRateLimiter) Purge() {
	for name, counters := range map[string]CounterSet{mapIP: l.ip, mapAccount: l.account} {
		sweeper, ok := counters.(Sweeper)
		if !ok {
			continue
		}

		if removed := sweeper.Sweep(); removed > 0 {
			l.logger.With("map", name, "removed", removed).Debug("purged idle rate limit counters")
		}
		if sized, ok := counters.(interface{ Size() int }); ok {
			trackedKeys.WithLabelValues(name).Set(float64(sized.Size()))
		}
	}
}

// Start launches the purge loop. Phases alternate every half purge interval so
// each phase runs once per interval.
func (l *AccountRateLimiter) Start(ctx context.Context) {
	if l.cfg.PurgeInterval <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return
	}

	ctx, l.cancel = context.WithCancel(ctx)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		ticker := time.NewTicker(max(l.cfg.PurgeInterval/2, time.Millisecond))
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Purge()
			}
		}
	}()

	l.logger.With("purge_interval", l.cfg.PurgeInterval).Info("rate limiter started")
}

// Shutdown stops the purge loop and waits for it to exit.
func (l *AccountRateLimiter) Shutdown() {
	l.mu.Lock()
	cancel := l.cancel
	l.cancel = nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	l.wg.Wait()
}
