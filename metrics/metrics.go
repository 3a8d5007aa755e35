// Package metrics exports connection, engine and bus metrics to Prometheus.
package metrics

import (
	"github.com/arloliu/go-gmc/counter"
	"github.com/arloliu/go-gmc/event"
	"github.com/arloliu/go-gmc/gmc"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace is the metric namespace used unless WithNamespace is given.
const DefaultNamespace = "gmc"

// ConnMetricsFunc returns the metrics of the current connection, or nil when disconnected.
type ConnMetricsFunc func() *gmc.ConnectionMetrics

// Option configures a Collector.
type Option func(*Collector)

// WithNamespace sets the metric namespace.
func WithNamespace(ns string) Option {
	return func(c *Collector) { c.namespace = ns }
}

// WithConstLabels adds constant labels to every metric, e.g. the serial port.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Collector) { c.labels = labels }
}

// WithConnection exports the metrics returned by fn. fn is called on every
// scrape, so it can follow reconnects of a gmc.Controller.
func WithConnection(fn ConnMetricsFunc) Option {
	return func(c *Collector) { c.conn = fn }
}

// WithEngine exports the metrics of a counting engine.
func WithEngine(m *counter.EngineMetrics) Option {
	return func(c *Collector) { c.engine = m }
}

// WithBus exports the event bus counters.
func WithBus(b *event.Bus) Option {
	return func(c *Collector) { c.bus = b }
}

// Collector is a prometheus.Collector over the atomic metrics of go-gmc components.
type Collector struct {
	namespace string
	labels    prometheus.Labels

	conn   ConnMetricsFunc
	engine *counter.EngineMetrics
	bus    *event.Bus

	collectors []prometheus.Collector
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a Collector for the components given as options.
func NewCollector(opts ...Option) *Collector {
	c := &Collector{namespace: DefaultNamespace}
	for _, opt := range opts {
		opt(c)
	}

	if c.conn != nil {
		c.addConnection()
	}
	if c.engine != nil {
		c.addEngine()
	}
	if c.bus != nil {
		c.addBus()
	}

	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, col := range c.collectors {
		col.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, col := range c.collectors {
		col.Collect(ch)
	}
}

func (c *Collector) opts(subsystem, name, help string) prometheus.Opts {
	return prometheus.Opts{
		Namespace:   c.namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: c.labels,
	}
}

func (c *Collector) counter(subsystem, name, help string, fn func() float64) {
	c.collectors = append(c.collectors,
		prometheus.NewCounterFunc(prometheus.CounterOpts(c.opts(subsystem, name, help)), fn))
}

func (c *Collector) gauge(subsystem, name, help string, fn func() float64) {
	c.collectors = append(c.collectors,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts(c.opts(subsystem, name, help)), fn))
}

// connValue reads one field of the current connection metrics, 0 when disconnected.
func (c *Collector) connValue(field func(m *gmc.ConnectionMetrics) uint64) func() float64 {
	return func() float64 {
		m := c.conn()
		if m == nil {
			return 0
		}

		return float64(field(m))
	}
}

func (c *Collector) addConnection() {
	const sub = "connection"

	c.counter(sub, "commands_total", "Command frames written to the serial port.",
		c.connValue(func(m *gmc.ConnectionMetrics) uint64 { return m.CommandCount.Load() }))
	c.counter(sub, "written_bytes_total", "Bytes written to the serial port.",
		c.connValue(func(m *gmc.ConnectionMetrics) uint64 { return m.BytesWritten.Load() }))
	c.counter(sub, "read_bytes_total", "Reply bytes read from the serial port.",
		c.connValue(func(m *gmc.ConnectionMetrics) uint64 { return m.BytesRead.Load() }))
	c.counter(sub, "ack_failures_total", "Acknowledgements that were missing or not 0xAA.",
		c.connValue(func(m *gmc.ConnectionMetrics) uint64 { return m.AckFailCount.Load() }))
	c.counter(sub, "read_timeouts_total", "Fixed-length reads that ended short.",
		c.connValue(func(m *gmc.ConnectionMetrics) uint64 { return m.ReadTimeoutCount.Load() }))
	c.counter(sub, "heartbeats_total", "Heartbeat count pushes read.",
		c.connValue(func(m *gmc.ConnectionMetrics) uint64 { return m.HeartbeatCount.Load() }))
	c.counter(sub, "config_writes_total", "Configuration rewrites sent.",
		c.connValue(func(m *gmc.ConnectionMetrics) uint64 { return m.ConfigWriteCount.Load() }))
	c.gauge(sub, "heartbeat_enabled", "1 while heartbeat mode is on.",
		c.connValue(func(m *gmc.ConnectionMetrics) uint64 { return uint64(m.HeartbeatGauge.Load()) }))
	c.gauge(sub, "up", "1 while a device connection is open.", func() float64 {
		if c.conn() == nil {
			return 0
		}

		return 1
	})
}

func (c *Collector) addEngine() {
	const sub = "counter"
	m := c.engine

	c.counter(sub, "sessions_started_total", "Counting sessions started.",
		func() float64 { return float64(m.SessionsStarted.Load()) })
	c.counter(sub, "sessions_completed_total", "Counting sessions that ran their full duration.",
		func() float64 { return float64(m.SessionsCompleted.Load()) })
	c.counter(sub, "sessions_interrupted_total", "Counting sessions ended early.",
		func() float64 { return float64(m.SessionsInterrupted.Load()) })
	c.counter(sub, "device_errors_total", "Failed count reads during sessions.",
		func() float64 { return float64(m.DeviceErrors.Load()) })
	c.counter(sub, "counts_total", "Sum of all counts read.",
		func() float64 { return float64(m.CountsTotal.Load()) })
	c.gauge(sub, "session_active", "1 while a counting session is running.",
		func() float64 { return float64(m.ActiveSession.Load()) })
}

func (c *Collector) addBus() {
	const sub = "events"
	b := c.bus

	c.counter(sub, "published_total", "Events published on the bus.",
		func() float64 { return float64(b.Published()) })
	c.gauge(sub, "subscribers", "Live bus subscriptions.",
		func() float64 { return float64(b.Subscribers()) })
}
