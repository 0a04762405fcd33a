package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry groups the corebus-wide Prometheus collectors: recorder
// throughput, bus drop counters, and time-sync offset, matching
// SPEC_FULL.md's domain-stack wiring for observability. Grounded on the
// teacher's own go.mod carrying prometheus/client_golang (used there for
// mix server statistics) — this is the one pack dependency with no
// closer home than "give every subsystem a gauge/counter."
type Registry struct {
	RecorderBytesPerSec prometheus.Gauge
	RecorderRowsTotal   prometheus.Counter
	BusDroppedTotal     *prometheus.CounterVec
	TimeSyncOffsetUs    *prometheus.GaugeVec
}

// NewRegistry constructs and registers every corebus collector against
// reg. Pass prometheus.NewRegistry() for test isolation, or
// prometheus.DefaultRegisterer in a cmd/ main.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		RecorderBytesPerSec: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "corebus",
			Subsystem: "recorder",
			Name:      "bytes_per_second",
			Help:      "Smoothed recorder append throughput in bytes/sec.",
		}),
		RecorderRowsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corebus",
			Subsystem: "recorder",
			Name:      "rows_appended_total",
			Help:      "Total rows appended to the recorder log.",
		}),
		BusDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "corebus",
			Subsystem: "bus",
			Name:      "dropped_messages_total",
			Help:      "Messages dropped due to a full ring buffer, by stage.",
		}, []string{"stage"}),
		TimeSyncOffsetUs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "corebus",
			Subsystem: "timesync",
			Name:      "offset_microseconds",
			Help:      "Estimated clock offset to a foreign process, in microseconds.",
		}, []string{"foreign_process_id"}),
	}

	reg.MustRegister(r.RecorderBytesPerSec, r.RecorderRowsTotal, r.BusDroppedTotal, r.TimeSyncOffsetUs)
	return r
}
