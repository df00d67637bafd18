package relayer

import (
	"github.com/compose-network/xdomain-relayer/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = metrics.NewComponentRegistry("relayer")

	messagesHandled = registry.NewCounterVec(prometheus.CounterOpts{
		Name: "messages_total",
		Help: "L2 to L1 messages handled by the relay cycle, by outcome",
	}, []string{"outcome"})

	nextTransactionIndex = registry.NewGauge(prometheus.GaugeOpts{
		Name: "next_transaction_index",
		Help: "First L2 transaction index whose state root is not yet final",
	})
)
