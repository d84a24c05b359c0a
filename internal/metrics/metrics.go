// Package metrics exports index counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const indexMetricsNamespace = "pdom"

// Index holds the collectors of one symbol index. A nil *Index records
// nothing, so the index can run without a registry.
type Index struct {
	namesInserted    prometheus.Counter
	namesDeleted     prometheus.Counter
	bindingsInserted prometheus.Counter
	filesInvalidated prometheus.Counter
	writeDuration    prometheus.Histogram
	storeBytes       prometheus.Gauge
}

// NewIndex creates the collectors and registers them on reg.
func NewIndex(reg prometheus.Registerer) (*Index, error) {
	m := &Index{
		namesInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: indexMetricsNamespace,
			Name:      "names_inserted_total",
			Help:      "Name records inserted",
		}),
		namesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: indexMetricsNamespace,
			Name:      "names_deleted_total",
			Help:      "Name records unlinked and freed",
		}),
		bindingsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: indexMetricsNamespace,
			Name:      "bindings_inserted_total",
			Help:      "Binding records created",
		}),
		filesInvalidated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: indexMetricsNamespace,
			Name:      "files_invalidated_total",
			Help:      "File name lists cleared for reindexing",
		}),
		writeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: indexMetricsNamespace,
			Name:      "write_tx_seconds",
			Help:      "Time spent holding the write lock",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		storeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: indexMetricsNamespace,
			Name:      "store_bytes",
			Help:      "Size of the backing store",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.namesInserted, m.namesDeleted, m.bindingsInserted,
		m.filesInvalidated, m.writeDuration, m.storeBytes,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Index) NameInserted() {
	if m != nil {
		m.namesInserted.Inc()
	}
}

func (m *Index) NameDeleted() {
	if m != nil {
		m.namesDeleted.Inc()
	}
}

func (m *Index) BindingInserted() {
	if m != nil {
		m.bindingsInserted.Inc()
	}
}

func (m *Index) FileInvalidated() {
	if m != nil {
		m.filesInvalidated.Inc()
	}
}

// WriteDone records the duration of a write transaction and the store size after it.
func (m *Index) WriteDone(d time.Duration, storeSize int64) {
	if m == nil {
		return
	}
	m.writeDuration.Observe(d.Seconds())
	m.storeBytes.Set(float64(storeSize))
}
