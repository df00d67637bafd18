package batch

import (
	"github.com/compose-network/xdomain-relayer/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

var batchesTransitioned = metrics.NewComponentRegistry("batch").NewCounterVec(prometheus.CounterOpts{
	Name: "transitions_total",
	Help: "Batch submissions moved into a status",
}, []string{"status"})
