package core

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/searchktools/scratch-server/core/files"
	"github.com/searchktools/scratch-server/core/http"
	"github.com/searchktools/scratch-server/core/observability"
	"github.com/searchktools/scratch-server/core/pools"
	"github.com/searchktools/scratch-server/core/router"
)

// routeBadRequest labels requests whose header section could not be parsed
const routeBadRequest = "bad_request"

// EngineConfig configures an Engine
type EngineConfig struct {
	Addr    string
	BaseDir string
	Workers int
	Logger  *slog.Logger
	// Routes defaults to router.Default(Logger)
	Routes *router.Table
}

// Engine accepts connections and hands each one to a fixed worker pool,
// which serves exactly one request per connection
type Engine struct {
	addr    string
	baseDir string
	routes  *router.Table
	logger  *slog.Logger

	pool        *pools.WorkerPool
	monitor     *observability.Monitor
	poolMetrics metric.Registration

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	closed    atomic.Bool
}

// NewEngine creates a new engine instance and starts its workers
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWorkers, cfg.Workers)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.BaseDir == "" {
		cfg.BaseDir = "."
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Routes == nil {
		cfg.Routes = router.Default(cfg.Logger)
	}

	monitor, err := observability.NewMonitor()
	if err != nil {
		return nil, fmt.Errorf("core: creating monitor: %w", err)
	}

	pool, err := pools.NewWorkerPool(cfg.Workers, pools.WithLogger(cfg.Logger))
	if err != nil {
		return nil, err
	}

	e := &Engine{
		addr:      cfg.Addr,
		baseDir:   cfg.BaseDir,
		routes:    cfg.Routes,
		logger:    cfg.Logger,
		pool:      pool,
		monitor:   monitor,
		listeners: make(map[net.Listener]struct{}),
	}

	e.poolMetrics, err = monitor.ObservePool(pool)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("core: registering pool metrics: %w", err)
	}

	return e, nil
}

// Addr returns the configured listen address
func (e *Engine) Addr() string {
	return e.addr
}

// Monitor returns the engine's request monitor
func (e *Engine) Monitor() *observability.Monitor {
	return e.monitor
}

// PoolStats returns worker pool statistics
func (e *Engine) PoolStats() pools.WorkerPoolStats {
	return e.pool.Stats()
}

// Listen binds the configured address
func (e *Engine) Listen(ctx context.Context) (net.Listener, error) {
	lc := net.ListenConfig{Control: listenControl}
	ln, err := lc.Listen(ctx, "tcp", e.addr)
	if err != nil {
		return nil, fmt.Errorf("core: listen on %s: %w", e.addr, err)
	}
	return ln, nil
}

// Run binds the configured address and serves until Shutdown
func (e *Engine) Run(ctx context.Context) error {
	ln, err := e.Listen(ctx)
	if err != nil {
		return err
	}

	e.logger.Info("listening", "addr", ln.Addr().String(), "workers", e.pool.Stats().NumWorkers, "directory", e.baseDir)
	return e.Serve(ln)
}

// Serve accepts connections on ln and submits one job per connection to the
// worker pool. It returns nil after Shutdown.
func (e *Engine) Serve(ln net.Listener) error {
	if !e.trackListener(ln, true) {
		ln.Close()
		return ErrServerClosed
	}
	defer e.trackListener(ln, false)

	baseDir := e.baseDir
	var backoff time.Duration

	for {
		conn, err := ln.Accept()
		if err != nil {
			if e.closed.Load() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}

			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			e.logger.Warn("accept failed", "error", err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		if err := e.pool.Submit(func() { e.ServeConn(conn, baseDir) }); err != nil {
			e.logger.Error("dropping connection", "remote", conn.RemoteAddr().String(), "error", err)
			conn.Close()
		}
	}
}

func (e *Engine) trackListener(ln net.Listener, add bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if add {
		if e.closed.Load() {
			return false
		}
		e.listeners[ln] = struct{}{}
	} else {
		delete(e.listeners, ln)
	}
	return true
}

// ServeConn reads one request from conn, writes the response and closes
// the connection. Every failure stays inside this call.
func (e *Engine) ServeConn(conn net.Conn, baseDir string) {
	defer conn.Close()

	start := time.Now()
	remote := conn.RemoteAddr().String()
	ctx, span := e.monitor.StartSpan(context.Background(), "serve_conn",
		attribute.String("network.peer.address", remote))
	defer span.End()

	resp, route := e.handle(bufio.NewReaderSize(conn, DefaultReadBufferSize), baseDir, remote)
	if resp == nil {
		return
	}

	status := resp.Status()
	span.SetAttributes(
		attribute.String("http.route", route),
		attribute.Int("http.response.status_code", status),
	)

	if _, err := resp.WriteTo(conn); err != nil {
		e.logger.Warn("writing response failed", "remote", remote, "route", route, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
	}

	e.monitor.RecordRequest(ctx, route, status, time.Since(start))
}

// handle parses the header section from br and dispatches it. A nil
// response means the peer sent nothing and gets no reply.
func (e *Engine) handle(br *bufio.Reader, baseDir, remote string) (*http.Response, string) {
	lines, err := http.ReadHeaderLines(br)
	if err != nil {
		if len(lines) == 0 && !errors.Is(err, http.ErrHeaderTooLarge) {
			if !errors.Is(err, io.EOF) {
				e.logger.Debug("reading request failed", "remote", remote, "error", err)
			}
			return nil, ""
		}
		e.logger.Debug("bad header section", "remote", remote, "error", err)
		return http.BadRequest(), routeBadRequest
	}

	req, err := http.Parse(lines)
	if err != nil {
		e.logger.Debug("bad request", "remote", remote, "error", err)
		return http.BadRequest(), routeBadRequest
	}

	route := e.routes.Find(req)
	resp := route.Handler(req, files.Dir(baseDir), br)

	e.logger.Debug("request",
		"remote", remote,
		"method", req.Method,
		"path", req.Path,
		"route", route.Name,
		"status", resp.Status())

	return resp, route.Name
}

// Shutdown stops accepting connections, then waits for queued and in-flight
// jobs to finish or for ctx to be done
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed.Store(true)
	var err error
	for ln := range e.listeners {
		if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = errors.Join(err, cerr)
		}
	}
	reg := e.poolMetrics
	e.poolMetrics = nil
	e.mu.Unlock()

	if reg != nil {
		err = errors.Join(err, reg.Unregister())
	}

	return errors.Join(err, e.pool.Shutdown(ctx))
}
