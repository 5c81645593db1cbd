// Package metrics exposes segmentation counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "y4m_segmenter"

// Collector records segmentation activity on its own registry.
type Collector struct {
	registry *prometheus.Registry

	framesWritten   prometheus.Counter
	decodeErrors    prometheus.Counter
	segmentsWritten prometheus.Counter
	runs            *prometheus.CounterVec
	segmentDuration prometheus.Histogram
}

// NewCollector creates a Collector with Go runtime and process collectors
// registered alongside the segmenter metrics.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		framesWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_written_total",
			Help:      "Total number of frames written to segment files",
		}),
		decodeErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Total number of frames that failed to decode",
		}),
		segmentsWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_written_total",
			Help:      "Total number of segment files closed",
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of segmentation runs, by outcome",
		}, []string{"outcome"}),
		segmentDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "segment_duration_seconds",
			Help:      "Wall time spent producing one segment file",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}),
	}
}

// FrameWritten counts one frame written.
func (c *Collector) FrameWritten() { c.framesWritten.Inc() }

// DecodeError counts one undecodable frame.
func (c *Collector) DecodeError() { c.decodeErrors.Inc() }

// SegmentWritten counts a closed segment and observes how long it took.
func (c *Collector) SegmentWritten(d time.Duration) {
	c.segmentsWritten.Inc()
	c.segmentDuration.Observe(d.Seconds())
}

// RunFinished counts a finished run under its outcome label.
func (c *Collector) RunFinished(outcome string) { c.runs.WithLabelValues(outcome).Inc() }

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Nop discards every observation.
type Nop struct{}

func (Nop) FrameWritten()                {}
func (Nop) DecodeError()                 {}
func (Nop) SegmentWritten(time.Duration) {}
func (Nop) RunFinished(string)           {}
