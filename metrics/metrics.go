package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "hw2influx_"

// Failure kinds
const (
	KindFetch      = "fetch"
	KindValidation = "validation"
	KindSink       = "sink"
	KindOther      = "other"
)

// Metrics holds the collector counters. The zero value is not usable; a nil
// *Metrics is, and records nothing.
type Metrics struct {
	ticks       *prometheus.CounterVec
	failures    *prometheus.CounterVec
	written     *prometheus.CounterVec
	sinkLatency *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ticks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "poll_ticks_total",
				Help: "Poll attempts per meter",
			},
			[]string{"meter"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "poll_failures_total",
				Help: "Failed poll ticks per meter by failure kind",
			},
			[]string{"meter", "kind"},
		),
		written: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "points_written_total",
				Help: "Data points accepted by the sink per meter",
			},
			[]string{"meter"},
		),
		sinkLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "sink_write_seconds",
				Help:    "Sink write latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"sink"},
		),
		lastSuccess: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "meter_last_success_timestamp_seconds",
				Help: "Unix time of the last point written per meter",
			},
			[]string{"meter"},
		),
	}
	reg.MustRegister(m.ticks, m.failures, m.written, m.sinkLatency, m.lastSuccess)
	return m
}

// Tick counts one poll attempt.
func (m *Metrics) Tick(meter string) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(meter).Inc()
}

// Failure counts one failed tick.
func (m *Metrics) Failure(meter, kind string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(meter, kind).Inc()
}

// Written records a point accepted by the sink at t.
func (m *Metrics) Written(meter string, t time.Time) {
	if m == nil {
		return
	}
	m.written.WithLabelValues(meter).Inc()
	m.lastSuccess.WithLabelValues(meter).Set(float64(t.UnixNano()) / 1e9)
}

// ObserveSink records the duration of one sink write.
func (m *Metrics) ObserveSink(sink string, d time.Duration) {
	if m == nil {
		return
	}
	m.sinkLatency.WithLabelValues(sink).Observe(d.Seconds())
}
