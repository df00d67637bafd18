package ratelimit

import (
	"github.com/compose-network/xdomain-relayer/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = metrics.NewComponentRegistry("ratelimit")

	rejections = registry.NewCounterVec(prometheus.CounterOpts{
		Name: "rejections_total",
		Help: "Requests rejected by the limiter, by counter map",
	}, []string{"map"})

	trackedKeys = registry.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tracked_keys",
		Help: "Keys currently held by an in-memory counter map",
	}, []string{"map"})
)
