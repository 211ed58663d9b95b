// Package metrics exposes pipeline.StageSnapshot data as real Prometheus
// collectors, grounded on collector/emissions.go's Desc/MustNewConstMetric
// pattern. It is wired as a pipeline.MetricsObserver that caches the most
// recent snapshot per stage and serves it on scrape.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pwkasay/gridcarbon/pkg/pipeline"
)

const namespace = "gridcarbon"

// StageCollector implements prometheus.Collector over the latest
// pipeline.StageSnapshot seen per (pipeline, stage) pair.
type StageCollector struct {
	mu        sync.Mutex
	snapshots map[string]pipeline.StageSnapshot
	pipelines map[string]string // stage key -> pipeline name

	itemsIn      *prometheus.Desc
	itemsOut     *prometheus.Desc
	itemsErrored *prometheus.Desc
	itemsRetried *prometheus.Desc
	errorRate    *prometheus.Desc
	throughput   *prometheus.Desc
	latencyP50   *prometheus.Desc
	latencyP95   *prometheus.Desc
	latencyP99   *prometheus.Desc
	queueDepth   *prometheus.Desc
	queueUtil    *prometheus.Desc
}

// NewStageCollector returns a Collector with no samples yet; the observers
// returned by Observer feed it new snapshots as pipelines run.
func NewStageCollector() *StageCollector {
	labels := []string{"pipeline", "stage"}

	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "stage", name), help, labels, nil)
	}

	return &StageCollector{
		snapshots:    make(map[string]pipeline.StageSnapshot),
		pipelines:    make(map[string]string),
		itemsIn:      desc("items_in_total", "Items received by the stage"),
		itemsOut:     desc("items_out_total", "Items successfully forwarded by the stage"),
		itemsErrored: desc("items_errored_total", "Items that exhausted retries and were dead-lettered or fatal"),
		itemsRetried: desc("items_retried_total", "Retry attempts made by the stage"),
		errorRate:    desc("error_rate", "Fraction of processed items that errored, over the stage's lifetime"),
		throughput:   desc("throughput_per_second", "Items processed per second, over the stage's lifetime"),
		latencyP50:   desc("latency_p50_milliseconds", "Median processing latency"),
		latencyP95:   desc("latency_p95_milliseconds", "95th percentile processing latency"),
		latencyP99:   desc("latency_p99_milliseconds", "99th percentile processing latency"),
		queueDepth:   desc("queue_depth", "Current depth of the stage's input channel"),
		queueUtil:    desc("queue_utilization", "Input channel depth over capacity, in [0,1]"),
	}
}

// Observer returns a pipeline.MetricsObserver that feeds snapshots from
// pipelineName into this collector; wire with Pipeline.WithMetrics.
func (c *StageCollector) Observer(pipelineName string) pipeline.MetricsObserver {
	return func(snapshots []pipeline.StageSnapshot) {
		c.mu.Lock()
		defer c.mu.Unlock()

		for _, snap := range snapshots {
			key := pipelineName + "/" + snap.Stage
			c.snapshots[key] = snap
			c.pipelines[key] = pipelineName
		}
	}
}

// Describe implements prometheus.Collector.
func (c *StageCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.itemsIn
	ch <- c.itemsOut
	ch <- c.itemsErrored
	ch <- c.itemsRetried
	ch <- c.errorRate
	ch <- c.throughput
	ch <- c.latencyP50
	ch <- c.latencyP95
	ch <- c.latencyP99
	ch <- c.queueDepth
	ch <- c.queueUtil
}

// Collect implements prometheus.Collector.
func (c *StageCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, snap := range c.snapshots {
		pipelineName := c.pipelines[key]
		labels := []string{pipelineName, snap.Stage}

		ch <- prometheus.MustNewConstMetric(c.itemsIn, prometheus.CounterValue, float64(snap.ItemsIn), labels...)
		ch <- prometheus.MustNewConstMetric(c.itemsOut, prometheus.CounterValue, float64(snap.ItemsOut), labels...)
		ch <- prometheus.MustNewConstMetric(c.itemsErrored, prometheus.CounterValue, float64(snap.ItemsErrored), labels...)
		ch <- prometheus.MustNewConstMetric(c.itemsRetried, prometheus.CounterValue, float64(snap.ItemsRetried), labels...)
		ch <- prometheus.MustNewConstMetric(c.errorRate, prometheus.GaugeValue, snap.ErrorRate, labels...)
		ch <- prometheus.MustNewConstMetric(c.throughput, prometheus.GaugeValue, snap.ThroughputPerSec, labels...)
		ch <- prometheus.MustNewConstMetric(c.latencyP50, prometheus.GaugeValue, float64(snap.LatencyP50.Milliseconds()), labels...)
		ch <- prometheus.MustNewConstMetric(c.latencyP95, prometheus.GaugeValue, float64(snap.LatencyP95.Milliseconds()), labels...)
		ch <- prometheus.MustNewConstMetric(c.latencyP99, prometheus.GaugeValue, float64(snap.LatencyP99.Milliseconds()), labels...)
		ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(snap.QueueDepth), labels...)
		ch <- prometheus.MustNewConstMetric(c.queueUtil, prometheus.GaugeValue, snap.QueueUtilization, labels...)
	}
}
