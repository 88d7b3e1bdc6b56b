package observability

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/searchktools/scratch-server/core/pools"
)

// InstrumentationName identifies this module's tracer, meter and logger
const InstrumentationName = "github.com/searchktools/scratch-server"

// Monitor keeps in-process per-route counters and mirrors them to the
// global OpenTelemetry providers
type Monitor struct {
	routes sync.Map // route name -> *RouteMetrics
	global struct {
		totalRequests atomic.Uint64
		totalErrors   atomic.Uint64
	}

	tracer   trace.Tracer
	meter    metric.Meter
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

// RouteMetrics stores per-route metrics
type RouteMetrics struct {
	Name          string
	Count         atomic.Uint64
	Errors        atomic.Uint64
	TotalDuration atomic.Uint64
	MinDuration   atomic.Uint64
	MaxDuration   atomic.Uint64
}

// RouteSnapshot is a point-in-time copy of RouteMetrics
type RouteSnapshot struct {
	Name        string
	Count       uint64
	Errors      uint64
	AvgDuration time.Duration
	MinDuration time.Duration
	MaxDuration time.Duration
}

// NewMonitor creates a monitor bound to the global OpenTelemetry providers
func NewMonitor() (*Monitor, error) {
	m := &Monitor{
		tracer: otel.Tracer(InstrumentationName),
		meter:  otel.Meter(InstrumentationName),
	}

	var err error
	m.requests, err = m.meter.Int64Counter("http.server.requests",
		metric.WithDescription("Requests handled, by route and status"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	m.duration, err = m.meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("Time from job start to response written"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// StartSpan starts a span for one connection
func (m *Monitor) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...))
}

// RecordRequest records a handled request. Statuses >= 400 count as errors.
func (m *Monitor) RecordRequest(ctx context.Context, route string, status int, duration time.Duration) {
	val, _ := m.routes.LoadOrStore(route, &RouteMetrics{Name: route})
	rm := val.(*RouteMetrics)

	isError := status >= 400
	rm.Count.Add(1)
	if isError {
		rm.Errors.Add(1)
		m.global.totalErrors.Add(1)
	}
	m.global.totalRequests.Add(1)

	d := uint64(duration.Nanoseconds())
	rm.TotalDuration.Add(d)
	updateMinMax(rm, d)

	attrs := metric.WithAttributes(
		attribute.String("http.route", route),
		attribute.Int("http.response.status_code", status),
	)
	m.requests.Add(ctx, 1, attrs)
	m.duration.Record(ctx, duration.Seconds(), attrs)
}

func updateMinMax(m *RouteMetrics, d uint64) {
	for {
		min := m.MinDuration.Load()
		if min != 0 && d >= min {
			break
		}
		if m.MinDuration.CompareAndSwap(min, d) {
			break
		}
	}
	for {
		max := m.MaxDuration.Load()
		if d <= max {
			break
		}
		if m.MaxDuration.CompareAndSwap(max, d) {
			break
		}
	}
}

// Route returns a snapshot of one route's metrics
func (m *Monitor) Route(name string) (RouteSnapshot, bool) {
	val, ok := m.routes.Load(name)
	if !ok {
		return RouteSnapshot{}, false
	}
	return snapshot(val.(*RouteMetrics)), true
}

// Routes returns snapshots for every route seen so far
func (m *Monitor) Routes() []RouteSnapshot {
	var out []RouteSnapshot
	m.routes.Range(func(_, value any) bool {
		out = append(out, snapshot(value.(*RouteMetrics)))
		return true
	})
	return out
}

func snapshot(rm *RouteMetrics) RouteSnapshot {
	s := RouteSnapshot{
		Name:        rm.Name,
		Count:       rm.Count.Load(),
		Errors:      rm.Errors.Load(),
		MinDuration: time.Duration(rm.MinDuration.Load()),
		MaxDuration: time.Duration(rm.MaxDuration.Load()),
	}
	if s.Count > 0 {
		s.AvgDuration = time.Duration(rm.TotalDuration.Load() / s.Count)
	}
	return s
}

// Totals returns the request and error counts across all routes
func (m *Monitor) Totals() (requests, errors uint64) {
	return m.global.totalRequests.Load(), m.global.totalErrors.Load()
}

// ObservePool exports the pool's queue depth and busy workers as gauges
func (m *Monitor) ObservePool(pool *pools.WorkerPool) (metric.Registration, error) {
	pending, err := m.meter.Int64ObservableGauge("pool.tasks.pending",
		metric.WithDescription("Jobs queued and not yet picked up by a worker"),
		metric.WithUnit("{task}"))
	if err != nil {
		return nil, err
	}
	active, err := m.meter.Int64ObservableGauge("pool.workers.active",
		metric.WithDescription("Workers currently running a job"),
		metric.WithUnit("{worker}"))
	if err != nil {
		return nil, err
	}

	return m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := pool.Stats()
		o.ObserveInt64(pending, int64(stats.TasksPending))
		o.ObserveInt64(active, int64(stats.ActiveWorkers))
		return nil
	}, pending, active)
}
