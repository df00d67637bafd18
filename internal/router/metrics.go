package router

import (
	"github.com/compose-network/xdomain-relayer/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = metrics.NewComponentRegistry("router")

	requestsTotal = registry.NewCounterVec(prometheus.CounterOpts{
		Name: "requests_total",
		Help: "JSON-RPC calls handled, by method and outcome",
	}, []string{"method", "outcome"})

	requestDuration = registry.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "request_duration_seconds",
		Help:    "Time spent admitting and forwarding a JSON-RPC call",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
)

// metricMethod keeps unknown method names out of label values.
func metricMethod(method string) string {
	if _, ok := Route(method); ok {
		return method
	}
	return "unsupported"
}
