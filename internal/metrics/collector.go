package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/DeltaRhoSygnis/mcp-server-sub000/internal/pool"
)

// Snapshotter provides a point-in-time view of pool state. *pool.Pool
// satisfies it.
type Snapshotter interface {
	Snapshot() pool.PoolMetrics
}

// PoolCollector adapts pool snapshots to Prometheus. All metrics are read
// fresh on every scrape.
type PoolCollector struct {
	source Snapshotter

	totalChannels   *prometheus.Desc
	channelsByState *prometheus.Desc
	waitingCallers  *prometheus.Desc
	totalMessages   *prometheus.Desc
	meanLatency     *prometheus.Desc
	utilization     *prometheus.Desc
	reusedChannels  *prometheus.Desc
	createdChannels *prometheus.Desc
}

// NewPoolCollector creates a collector reading from the given source.
func NewPoolCollector(source Snapshotter) *PoolCollector {
	return &PoolCollector{
		source: source,
		totalChannels: prometheus.NewDesc(
			"channelpool_channels_total",
			"Number of channels currently tracked by the pool.",
			nil, nil,
		),
		channelsByState: prometheus.NewDesc(
			"channelpool_channels",
			"Number of channels in a given state.",
			[]string{"state"}, nil,
		),
		waitingCallers: prometheus.NewDesc(
			"channelpool_waiting_callers",
			"Number of acquire callers queued for a channel.",
			nil, nil,
		),
		totalMessages: prometheus.NewDesc(
			"channelpool_messages_total",
			"Total messages carried across all channels.",
			nil, nil,
		),
		meanLatency: prometheus.NewDesc(
			"channelpool_mean_latency_seconds",
			"Mean probe round-trip latency across live channels.",
			nil, nil,
		),
		utilization: prometheus.NewDesc(
			"channelpool_utilization_ratio",
			"Active channels as a fraction of all channels.",
			nil, nil,
		),
		reusedChannels: prometheus.NewDesc(
			"channelpool_reused_channels",
			"Number of channels that served more than one message.",
			nil, nil,
		),
		createdChannels: prometheus.NewDesc(
			"channelpool_created_channels_total",
			"Total channels dialed over the pool's lifetime.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalChannels
	ch <- c.channelsByState
	ch <- c.waitingCallers
	ch <- c.totalMessages
	ch <- c.meanLatency
	ch <- c.utilization
	ch <- c.reusedChannels
	ch <- c.createdChannels
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.totalChannels, prometheus.GaugeValue, float64(snap.TotalChannels))
	ch <- prometheus.MustNewConstMetric(c.channelsByState, prometheus.GaugeValue, float64(snap.ActiveChannels), "active")
	ch <- prometheus.MustNewConstMetric(c.channelsByState, prometheus.GaugeValue, float64(snap.IdleChannels), "idle")
	ch <- prometheus.MustNewConstMetric(c.channelsByState, prometheus.GaugeValue, float64(snap.ErrorChannels), "error")
	ch <- prometheus.MustNewConstMetric(c.waitingCallers, prometheus.GaugeValue, float64(snap.WaitingCallers))
	ch <- prometheus.MustNewConstMetric(c.totalMessages, prometheus.CounterValue, float64(snap.TotalMessages))
	ch <- prometheus.MustNewConstMetric(c.meanLatency, prometheus.GaugeValue, snap.MeanLatency.Seconds())
	ch <- prometheus.MustNewConstMetric(c.utilization, prometheus.GaugeValue, snap.Utilization)
	ch <- prometheus.MustNewConstMetric(c.reusedChannels, prometheus.GaugeValue, float64(snap.ReusedChannels))
	ch <- prometheus.MustNewConstMetric(c.createdChannels, prometheus.CounterValue, float64(snap.CreatedChannels))
}
