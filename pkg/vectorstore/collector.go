package vectorstore

import (
	"github.com/prometheus/client_golang/prometheus"
)

var documentsDesc = prometheus.NewDesc(
	prometheus.BuildFQName("ragstore", "vectorstore", "documents"),
	"Number of documents held by a local vector store",
	[]string{"backend"},
	nil,
)

// Collector exposes document counts of local stores to Prometheus.
// Stores that do not implement Counter are skipped.
type Collector struct {
	stores map[string]Counter
}

// NewCollector builds a Collector over the given stores, keyed by backend label.
func NewCollector(stores map[string]Store) *Collector {
	c := &Collector{stores: make(map[string]Counter, len(stores))}
	for backend, s := range stores {
		if counter, ok := s.(Counter); ok {
			c.stores[backend] = counter
		}
	}
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- documentsDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for backend, counter := range c.stores {
		ch <- prometheus.MustNewConstMetric(documentsDesc, prometheus.GaugeValue, float64(counter.Len()), backend)
	}
}
