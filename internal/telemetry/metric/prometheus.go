package metric

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yndnr/slotkeep-go/internal/core/domain"
)

const namespace = "slotkeep"

// Registry holds all engine metrics on a private Prometheus registry.
type Registry struct {
	registry *prometheus.Registry

	// Operation metrics
	Operations       *prometheus.CounterVec   // kind, outcome
	OperationSeconds *prometheus.HistogramVec // kind
	ObjectErrors     *prometheus.CounterVec   // kind
	SkippedRecords   *prometheus.CounterVec   // reason
	BusyRejections   *prometheus.CounterVec   // kind

	// Storage metrics
	BytesWritten prometheus.Counter
	LastSaveSize prometheus.Gauge
}

// NewRegistry creates a registry with every metric registered, plus the
// Go runtime and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		registry: reg,
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Finished slot operations by kind and outcome.",
		}, []string{"kind", "outcome"}),
		OperationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Wall time of slot operations.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"kind"}),
		ObjectErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "object_errors_total",
			Help:      "Objects skipped because of encode, decode or apply failures.",
		}, []string{"kind"}),
		SkippedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_total",
			Help:      "Records and fields skipped for compatibility.",
		}, []string{"reason"}),
		BusyRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "busy_rejections_total",
			Help:      "Requests rejected because the slot had an operation in flight.",
		}, []string{"kind"}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Slot buffer bytes written by saves.",
		}),
		LastSaveSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_save_bytes",
			Help:      "Size of the most recent slot buffer.",
		}),
	}
	reg.MustRegister(
		r.Operations,
		r.OperationSeconds,
		r.ObjectErrors,
		r.SkippedRecords,
		r.BusyRejections,
		r.BytesWritten,
		r.LastSaveSize,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

var (
	global     *Registry
	globalOnce sync.Once
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() { global = NewRegistry() })
	return global
}

// Registerer lets other components (e.g. the badger transport) add
// their collectors.
func (r *Registry) Registerer() prometheus.Registerer { return r.registry }

// Gatherer exposes the registry for scraping and tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.registry }

// ObserveReport records a finished operation.
func (r *Registry) ObserveReport(rep *domain.Report) {
	if r == nil || rep == nil {
		return
	}
	kind := string(rep.Kind)
	r.Operations.WithLabelValues(kind, rep.Outcome().String()).Inc()
	r.OperationSeconds.WithLabelValues(kind).Observe(rep.Duration().Seconds())
	if n := len(rep.Objects); n > 0 {
		r.ObjectErrors.WithLabelValues(kind).Add(float64(n))
	}
	if rep.UnknownTypes > 0 {
		r.SkippedRecords.WithLabelValues("unknown_type").Add(float64(rep.UnknownTypes))
	}
	if rep.UnknownFields > 0 {
		r.SkippedRecords.WithLabelValues("unknown_field").Add(float64(rep.UnknownFields))
	}
	if rep.SchemaMismatches > 0 {
		r.SkippedRecords.WithLabelValues("schema_mismatch").Add(float64(rep.SchemaMismatches))
	}
	if rep.Kind == domain.OpSave && rep.Err == nil {
		r.BytesWritten.Add(float64(rep.BytesWritten))
		r.LastSaveSize.Set(float64(rep.BytesWritten))
	}
}

// ObserveBusy records a Busy rejection.
func (r *Registry) ObserveBusy(kind domain.OpKind) {
	if r == nil {
		return
	}
	r.BusyRejections.WithLabelValues(string(kind)).Inc()
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
