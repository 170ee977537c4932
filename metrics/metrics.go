// Package metrics exposes Prometheus collectors for the store's
// persistence lifecycle.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Persist outcome labels.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Collector records snapshot writes, recoveries and collection sizes.
// A nil *Collector is valid and records nothing.
type Collector struct {
	PersistTotal    *prometheus.CounterVec
	PersistDuration prometheus.Histogram
	SnapshotBytes   prometheus.Gauge
	RecoveriesTotal prometheus.Counter
	Documents       *prometheus.GaugeVec
}

// New creates a Collector and registers it with reg. A nil reg skips
// registration.
func New(namespace string, reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		PersistTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_persist_total",
			Help:      "Total number of snapshot writes by outcome",
		}, []string{"status"}),
		PersistDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_persist_duration_seconds",
			Help:      "Time spent encoding and writing a snapshot",
			Buckets:   prometheus.DefBuckets,
		}),
		SnapshotBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_bytes",
			Help:      "Size of the last written snapshot",
		}),
		RecoveriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_recoveries_total",
			Help:      "Times an unreadable snapshot was replaced by an empty store",
		}),
		Documents: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "collection_documents",
			Help:      "Number of documents per collection",
		}, []string{"collection"}),
	}
	if reg != nil {
		for _, col := range []prometheus.Collector{
			c.PersistTotal, c.PersistDuration, c.SnapshotBytes, c.RecoveriesTotal, c.Documents,
		} {
			if err := reg.Register(col); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

// ObservePersist records one snapshot write.
func (c *Collector) ObservePersist(start time.Time, size int, err error) {
	if c == nil {
		return
	}
	c.PersistDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.PersistTotal.WithLabelValues(StatusError).Inc()
		return
	}
	c.PersistTotal.WithLabelValues(StatusOK).Inc()
	c.SnapshotBytes.Set(float64(size))
}

// Recovered records a snapshot reset.
func (c *Collector) Recovered() {
	if c == nil {
		return
	}
	c.RecoveriesTotal.Inc()
}

// SetDocuments records the size of a collection.
func (c *Collector) SetDocuments(collection string, n int) {
	if c == nil {
		return
	}
	c.Documents.WithLabelValues(collection).Set(float64(n))
}
