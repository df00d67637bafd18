package chain

import (
	"time"

	"github.com/compose-network/xdomain-relayer/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

var rpcDuration = metrics.NewComponentRegistry("chain").NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "rpc_duration_seconds",
		Help:    "Latency of outbound chain RPC calls",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"method"},
)

func observe(method string, started time.Time) {
	rpcDuration.WithLabelValues(method).Observe(time.Since(started).Seconds())
}
