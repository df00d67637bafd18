package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const Namespace = "xdomain_relayer"

var (
	registryOnce   sync.Once
	customRegistry *prometheus.Registry
)

// GetRegistry returns the process-wide registry all relayer components report to.
func GetRegistry() *prometheus.Registry {
	registryOnce.Do(func() {
		customRegistry = prometheus.NewRegistry()
		customRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
	return customRegistry
}

// Handler serves the registry in the prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// ComponentRegistry names and registers the metrics of one component. Components
// declare their collectors once as package variables.
type ComponentRegistry struct {
	subsystem string
	registry  prometheus.Registerer
}

func NewComponentRegistry(subsystem string) *ComponentRegistry {
	return &ComponentRegistry{
		subsystem: subsystem,
		registry:  GetRegistry(),
	}
}

func (r *ComponentRegistry) NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	opts.Namespace = Namespace
	opts.Subsystem = r.subsystem
	return promauto.With(r.registry).NewCounterVec(opts, labelNames)
}

func (r *ComponentRegistry) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	opts.Namespace = Namespace
	opts.Subsystem = r.subsystem
	return promauto.With(r.registry).NewCounter(opts)
}

func (r *ComponentRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
	opts.Namespace = Namespace
	opts.Subsystem = r.subsystem
	return promauto.With(r.registry).NewGaugeVec(opts, labelNames)
}

func (r *ComponentRegistry) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	opts.Namespace = Namespace
	opts.Subsystem = r.subsystem
	return promauto.With(r.registry).NewGauge(opts)
}

func (r *ComponentRegistry) NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	opts.Namespace = Namespace
	opts.Subsystem = r.subsystem
	return promauto.With(r.registry).NewHistogramVec(opts, labelNames)
}
