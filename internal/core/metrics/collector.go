// Package metrics exposes Prometheus instrumentation for the rendering
// pipeline and its HTTP surface.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config controls metric collection.
type Config struct {
	Enabled bool   `mapstructure:"enabled"`
	Prefix  string `mapstructure:"prefix"`
}

// Collector holds all Prometheus instruments for the service.
type Collector struct {
	config Config

	// Render pipeline
	rendersTotal    *prometheus.CounterVec
	renderDuration  *prometheus.HistogramVec
	componentsDrawn *prometheus.CounterVec

	// Per-device queues
	queueDepth *prometheus.GaugeVec

	// Rotation and overrides
	rotationRunning *prometheus.GaugeVec
	overridesTotal  *prometheus.CounterVec

	// Image pipeline
	imageFetches *prometheus.CounterVec

	// HTTP surface
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// WebSocket
	websocketConnections prometheus.Gauge
}

// NewCollector registers all instruments with reg. Passing nil uses the
// default registerer.
func NewCollector(config Config, reg prometheus.Registerer) *Collector {
	if config.Prefix == "" {
		config.Prefix = "pma_display"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	prefix := config.Prefix

	c := &Collector{config: config}

	c.rendersTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_renders_total",
			Help: "Total number of page renders by device and outcome",
		},
		[]string{"device", "outcome"},
	)

	c.renderDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_render_duration_seconds",
			Help:    "Page render duration in seconds, including the device push",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		},
		[]string{"device"},
	)

	c.componentsDrawn = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_components_total",
			Help: "Total number of components by device and disposition",
		},
		[]string{"device", "disposition"},
	)

	c.queueDepth = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: prefix + "_queue_depth",
			Help: "Pending operations per device queue",
		},
		[]string{"device"},
	)

	c.rotationRunning = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: prefix + "_rotation_running",
			Help: "Rotation state per device (1 = running, 0 = stopped)",
		},
		[]string{"device"},
	)

	c.overridesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_overrides_total",
			Help: "Total number of override requests by device",
		},
		[]string{"device"},
	)

	c.imageFetches = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_image_fetches_total",
			Help: "Total number of image source resolutions by result",
		},
		[]string{"result"},
	)

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.websocketConnections = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: prefix + "_websocket_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	return c
}

// RecordRender records one page render.
func (c *Collector) RecordRender(device, outcome string, rendered, skipped int, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.rendersTotal.WithLabelValues(device, outcome).Inc()
	c.renderDuration.WithLabelValues(device).Observe(duration.Seconds())
	if rendered > 0 {
		c.componentsDrawn.WithLabelValues(device, "rendered").Add(float64(rendered))
	}
	if skipped > 0 {
		c.componentsDrawn.WithLabelValues(device, "skipped").Add(float64(skipped))
	}
}

// SetQueueDepth reports the pending item count of one device queue.
func (c *Collector) SetQueueDepth(device string, depth int) {
	if !c.config.Enabled {
		return
	}
	c.queueDepth.WithLabelValues(device).Set(float64(depth))
}

// SetRotationRunning reports whether a device's rotation is active.
func (c *Collector) SetRotationRunning(device string, running bool) {
	if !c.config.Enabled {
		return
	}
	v := 0.0
	if running {
		v = 1.0
	}
	c.rotationRunning.WithLabelValues(device).Set(v)
}

// RecordOverride counts one override request.
func (c *Collector) RecordOverride(device string) {
	if !c.config.Enabled {
		return
	}
	c.overridesTotal.WithLabelValues(device).Inc()
}

// RecordImageFetch counts one image source resolution.
func (c *Collector) RecordImageFetch(result string) {
	if !c.config.Enabled {
		return
	}
	c.imageFetches.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records HTTP request metrics.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordWebSocketConnection adjusts the live connection gauge.
func (c *Collector) RecordWebSocketConnection(delta int) {
	if !c.config.Enabled {
		return
	}
	c.websocketConnections.Add(float64(delta))
}
