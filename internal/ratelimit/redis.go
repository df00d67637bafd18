package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounterSet shares rolling counters between router replicas. Each bucket is
// a key that expires once it falls out of the window, so it needs no sweeping.
type RedisCounterSet struct {
	client  redis.UniversalClient
	prefix  string
	period  time.Duration
	buckets int
	width   time.Duration
	now     func() time.Time
}

func NewRedisCounterSet(client redis.UniversalClient, prefix string, period time.Duration, buckets int) *RedisCounterSet {
	if buckets <= 0 {
		buckets = 1
	}
	width := period / time.Duration(buckets)
	if width <= 0 {
		width = time.Millisecond
	}

	return &RedisCounterSet{
		client:  client,
		prefix:  prefix,
		period:  period,
		buckets: buckets,
		width:   width,
		now:     time.Now,
	}
}

func (s *RedisCounterSet) Increment(ctx context.Context, key string) (int, error) {
	head := s.now().UnixNano() / int64(s.width)

	keys := make([]string, s.buckets)
	for i := range keys {
		keys[i] = s.bucketKey(key, head-int64(i))
	}

	pipe := s.client.TxPipeline()
	pipe.Incr(ctx, keys[0])
	pipe.PExpire(ctx, keys[0], s.period+s.width)
	values := pipe.MGet(ctx, keys...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to increment counter %s: %w", key, err)
	}

	total := 0
	for _, v := range values.Val() {
		str, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(str)
		if err != nil {
			return 0, fmt.Errorf("failed to parse counter bucket %q: %w", str, err)
		}
		total += n
	}

	return total, nil
}

func (s *RedisCounterSet) bucketKey(key string, bucket int64) string {
	return fmt.Sprintf("%s:%s:%d", s.prefix, key, bucket)
}
