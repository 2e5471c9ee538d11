package telemetry

import (
	"runtime"
	"strconv"
	"time"

	"chatrelay/pkg/timeutil"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const namespace = "chatrelay"

// Stanza outcomes recorded by StanzaResult.
const (
	StanzaDelivered = "delivered"
	StanzaDropped   = "dropped"
	StanzaInvalid   = "invalid"
)

// Metrics owns a private prometheus registry. All methods are safe on a
// nil receiver so components can run without metrics in tests.
type Metrics struct {
	reg *prometheus.Registry

	sweeps     prometheus.Counter
	evictions  prometheus.Counter
	fanout     prometheus.Histogram
	stanzas    *prometheus.CounterVec
	inserted   *prometheus.CounterVec
	published  *prometheus.CounterVec
	requests   *prometheus.HistogramVec
	opDuration *prometheus.HistogramVec
	opSteps    *prometheus.HistogramVec
	diskUsed   prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_sweeps_total",
			Help:      "Presence timeout sweeps executed.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_evictions_total",
			Help:      "Users demoted to unavailable by a sweep.",
		}),
		fanout: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "presence_fanout_messages",
			Help:      "Presence messages emitted per sweep (inactive x online).",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		stanzas: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stanzas_total",
			Help:      "Inbound chat stanzas by outcome.",
		}, []string{"result"}),
		inserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_inserted_total",
			Help:      "Messages handed to the sink by kind.",
		}, []string{"kind"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_published_total",
			Help:      "Messages published to the relay bus.",
		}, []string{"result"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "op_duration_seconds",
			Help:      "Duration of tracked operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		opSteps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "op_step_duration_seconds",
			Help:      "Duration of marked steps within tracked operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "step"}),
		diskUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "disk_used_percent",
			Help:      "Used space of the filesystem holding the database.",
		}),
	}
	m.reg.MustRegister(
		m.sweeps, m.evictions, m.fanout, m.stanzas, m.inserted,
		m.published, m.requests, m.opDuration, m.opSteps, m.diskUsed,
	)
	m.reg.MustRegister(runtimeGauges()...)
	return m
}

func runtimeGauges() []prometheus.Collector {
	mem := func(pick func(*runtime.MemStats) float64) func() float64 {
		return func() float64 {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			return pick(&stats)
		}
	}
	return []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "go_goroutines",
			Help: "Number of active goroutines.",
		}, func() float64 { return float64(runtime.NumGoroutine()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "go_gc_pause_total_ns",
			Help: "Total GC pause time in nanoseconds.",
		}, mem(func(s *runtime.MemStats) float64 { return float64(s.PauseTotalNs) })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "go_heap_alloc_bytes",
			Help: "Current heap allocation in bytes.",
		}, mem(func(s *runtime.MemStats) float64 { return float64(s.HeapAlloc) })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "go_gc_cycles_total",
			Help: "Total number of GC cycles.",
		}, mem(func(s *runtime.MemStats) float64 { return float64(s.NumGC) })),
	}
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// SweepRan records one executed sweep.
func (m *Metrics) SweepRan(evicted, fanout int) {
	if m == nil {
		return
	}
	m.sweeps.Inc()
	m.evictions.Add(float64(evicted))
	if evicted > 0 {
		m.fanout.Observe(float64(fanout))
	}
}

func (m *Metrics) StanzaResult(result string) {
	if m == nil {
		return
	}
	m.stanzas.WithLabelValues(result).Inc()
}

func (m *Metrics) MessageInserted(kind string) {
	if m == nil {
		return
	}
	m.inserted.WithLabelValues(kind).Inc()
}

func (m *Metrics) RelayPublished(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.published.WithLabelValues(result).Inc()
}

func (m *Metrics) SetDiskUsage(pct float64) {
	if m == nil {
		return
	}
	m.diskUsed.Set(pct)
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))
}

// Middleware observes the latency of every request passing through next.
func (m *Metrics) Middleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	if m == nil {
		return next
	}
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)
		m.requests.WithLabelValues(
			string(ctx.Method()),
			strconv.Itoa(ctx.Response.StatusCode()),
		).Observe(time.Since(start).Seconds())
	}
}

// Trace times one operation and the steps marked within it.
type Trace struct {
	name     string
	start    time.Time
	lastMark time.Time
	m        *Metrics
}

// Track starts a trace for op.
func (m *Metrics) Track(op string) *Trace {
	now := timeutil.Now()
	return &Trace{name: op, start: now, lastMark: now, m: m}
}

// Mark records the elapsed duration since last mark.
func (tr *Trace) Mark(step string) {
	now := timeutil.Now()
	if tr.m != nil {
		tr.m.opSteps.WithLabelValues(tr.name, step).Observe(now.Sub(tr.lastMark).Seconds())
	}
	tr.lastMark = now
}

// Finish records the total duration. Safe to call multiple times or via defer.
func (tr *Trace) Finish() {
	if tr.m == nil {
		return
	}
	tr.m.opDuration.WithLabelValues(tr.name).Observe(timeutil.Now().Sub(tr.start).Seconds())
	tr.m = nil
}
