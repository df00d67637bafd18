package messenger

import (
	"github.com/compose-network/xdomain-relayer/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = metrics.NewComponentRegistry("messenger")

	relaysObserved = registry.NewCounterVec(prometheus.CounterOpts{
		Name: "relays_observed_total",
		Help: "Relay events matched to an awaited message, by outcome",
	}, []string{"outcome"})

	duplicateRelays = registry.NewCounter(prometheus.CounterOpts{
		Name: "duplicate_relays_total",
		Help: "Messages observed relayed more than once",
	})
)
