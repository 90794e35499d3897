package hummock

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "hummock"

// Stats are the engine's prometheus metrics.
type Stats struct {
	GetCounts         prometheus.Counter
	GetLatency        prometheus.Histogram
	IterCounts        prometheus.Counter
	IterSeekLatency   prometheus.Histogram
	WriteBatchCounts  prometheus.Counter
	WriteBatchSize    prometheus.Histogram
	WriteBatchLatency prometheus.Histogram
}

// NewStats registers the engine metrics on reg. A nil reg leaves them
// unregistered, which is what tests and embedded engines usually want.
func NewStats(reg prometheus.Registerer) *Stats {
	f := promauto.With(reg)
	return &Stats{
		GetCounts: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "get_counts",
			Help:      "Total number of point lookups.",
		}),
		GetLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "get_latency_seconds",
			Help:      "Latency of point lookups.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		IterCounts: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "iter_counts",
			Help:      "Total number of iterators created.",
		}),
		IterSeekLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "iter_seek_latency_seconds",
			Help:      "Time to build and rewind an iterator.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		WriteBatchCounts: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "write_batch_counts",
			Help:      "Total number of committed write batches.",
		}),
		WriteBatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "write_batch_size",
			Help:      "Number of key/value pairs per write batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		WriteBatchLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "write_batch_latency_seconds",
			Help:      "Latency of committing a write batch.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
	}
}
