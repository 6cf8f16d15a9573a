package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tether_serial"

// BridgeMetrics contains the collectors updated by the ingestion loop.
type BridgeMetrics struct {
	LinesRead       prometheus.Counter
	ValuesPublished prometheus.Counter
	LinesDiscarded  prometheus.Counter
	EmptyReads      prometheus.Counter
	ReadErrors      prometheus.Counter
	PublishFailures prometheus.Counter
	LastValue       prometheus.Gauge
	WatchdogElapsed prometheus.Gauge
}

func NewBridgeMetrics() *BridgeMetrics {
	return &BridgeMetrics{
		LinesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_read_total",
			Help:      "Total number of complete lines read from the device",
		}),
		ValuesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "values_published_total",
			Help:      "Total number of values published",
		}),
		LinesDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_discarded_total",
			Help:      "Total number of lines that were not a value",
		}),
		EmptyReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "empty_reads_total",
			Help:      "Total number of reads that ended without a complete line",
		}),
		ReadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_errors_total",
			Help:      "Total number of device read errors absorbed by the reader",
		}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Total number of failed publishes",
		}),
		LastValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_value",
			Help:      "Last published value",
		}),
		WatchdogElapsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watchdog_elapsed_seconds",
			Help:      "Seconds since the last valid value",
		}),
	}
}

func (m *BridgeMetrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.LinesRead,
		m.ValuesPublished,
		m.LinesDiscarded,
		m.EmptyReads,
		m.ReadErrors,
		m.PublishFailures,
		m.LastValue,
		m.WatchdogElapsed,
	}
}

// Register adds all collectors to registry.
func (m *BridgeMetrics) Register(registry prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}
