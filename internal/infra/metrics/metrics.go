// Package metrics exposes workbench production counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	registry *prometheus.Registry

	unitsCreated      prometheus.Counter
	stagesCompleted   prometheus.Counter
	unitsCompleted    prometheus.Counter
	passportsAnchored prometheus.Counter
	errorsObserved    *prometheus.CounterVec
}

func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	r.unitsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "workbench_units_created_total",
		Help: "Units created on this workbench.",
	})
	r.stagesCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "workbench_stages_completed_total",
		Help: "Production stages completed on this workbench.",
	})
	r.unitsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "workbench_units_completed_total",
		Help: "Units that reached the built status.",
	})
	r.passportsAnchored = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "workbench_passports_anchored_total",
		Help: "Passports published to storage and anchored on the ledger.",
	})
	r.errorsObserved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workbench_errors_total",
		Help: "Operational errors by kind.",
	}, []string{"kind"})

	r.registry.MustRegister(
		r.unitsCreated,
		r.stagesCompleted,
		r.unitsCompleted,
		r.passportsAnchored,
		r.errorsObserved,
	)
	return r
}

func (r *Registry) UnitCreated()      { r.unitsCreated.Inc() }
func (r *Registry) StageCompleted()   { r.stagesCompleted.Inc() }
func (r *Registry) UnitCompleted()    { r.unitsCompleted.Inc() }
func (r *Registry) PassportAnchored() { r.passportsAnchored.Inc() }

func (r *Registry) ErrorObserved(kind string) {
	r.errorsObserved.WithLabelValues(kind).Inc()
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
