// Package worker implements a single unit of serving capacity. A worker
// registers in the slot registry, receives accepted connections from a
// channel shared with its siblings and serves the keep-alive request loop on
// each of them.
//
// Between connections and on every checkpoint tick the worker decides
// whether to exit: when the supervisor asked it to, when it has served its
// request quota or when it has been idle for too long while the pool has
// spare capacity.
package worker

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"go.pact.im/x/qhttpd/config"
	"go.pact.im/x/qhttpd/hook"
	"go.pact.im/x/qhttpd/registry"
	"go.pact.im/x/qhttpd/stream"
)

// DefaultCheckpointInterval is the default interval between checkpoints while
// waiting for a connection.
const DefaultCheckpointInterval = time.Second

// lingerTimeout is the SO_LINGER timeout set on accepted TCP connections.
const lingerTimeout = 15

// Tracker tracks connections while they are served.
type Tracker interface {
	// Track starts tracking the connection and returns a function that
	// stops tracking it.
	Track(conn net.Conn) (untrack func())
}

type nopTracker struct{}

func (nopTracker) Track(net.Conn) func() { return func() {} }

// Options are the options for a Worker.
type Options struct {
	// ID identifies the worker in the registry. It must not be zero.
	ID int64
	// Name is a human-readable worker name.
	Name string

	// Conns delivers accepted connections. Run returns once it is closed.
	Conns <-chan net.Conn

	Registry *registry.Registry
	Config   *config.Store

	// Handler handles well-formed requests. It is expected to always
	// return hook.Handled.
	Handler hook.RequestHandler

	// ResponseHooks run right before a response is written.
	ResponseHooks hook.ResponseHooks

	// Lifecycle defaults to hook.Nop.
	Lifecycle hook.Lifecycle

	// Tracker defaults to a no-op tracker.
	Tracker Tracker

	// ServerName is the Server response header value.
	ServerName string

	// CheckpointInterval defaults to DefaultCheckpointInterval.
	CheckpointInterval time.Duration

	// Clock defaults to the system clock.
	Clock clock.Clock

	// Logger defaults to a no-op logger.
	Logger *zap.Logger

	// AccessLog receives one entry per request. If not set, requests are
	// not logged.
	AccessLog *zap.Logger
}

func (o *Options) setDefaults() {
	if o.Lifecycle == nil {
		o.Lifecycle = hook.Nop{}
	}
	if o.Tracker == nil {
		o.Tracker = nopTracker{}
	}
	if o.CheckpointInterval <= 0 {
		o.CheckpointInterval = DefaultCheckpointInterval
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.AccessLog == nil {
		o.AccessLog = zap.NewNop()
	}
}

// Worker serves connections. It is not safe for concurrent use and Run must
// be called at most once.
type Worker struct {
	id    int64
	name  string
	conns <-chan net.Conn

	reg       *registry.Registry
	store     *config.Store
	handler   hook.RequestHandler
	rewrite   hook.ResponseHooks
	lifecycle hook.Lifecycle
	tracker   Tracker

	serverName string
	interval   time.Duration
	clock      clock.Clock
	log        *zap.Logger
	access     *zap.Logger

	slot     int
	requests int
}

// New returns a new Worker.
func New(o Options) *Worker {
	o.setDefaults()
	return &Worker{
		id:         o.ID,
		name:       o.Name,
		conns:      o.Conns,
		reg:        o.Registry,
		store:      o.Config,
		handler:    o.Handler,
		rewrite:    o.ResponseHooks,
		lifecycle:  o.Lifecycle,
		tracker:    o.Tracker,
		serverName: o.ServerName,
		interval:   o.CheckpointInterval,
		clock:      o.Clock,
		log:        o.Logger.With(zap.Int64("worker", o.ID), zap.String("name", o.Name)),
		access:     o.AccessLog,
		slot:       -1,
	}
}

// ID returns the worker ID.
func (w *Worker) ID() int64 {
	return w.id
}

// Run registers the worker and serves connections until the worker decides to
// exit, the context is canceled or the connection channel is closed. It
// returns an error if the worker could not start or panicked.
func (w *Worker) Run(ctx context.Context) (err error) {
	defer recoverPanic(&err)

	slot, err := w.reg.Register(w.id, w.name)
	if err != nil {
		return fmt.Errorf("register worker: %w", err)
	}
	w.slot = slot
	defer w.reg.Deregister(slot)

	if err := w.lifecycle.AfterWorkerInit(ctx, w.id); err != nil {
		return fmt.Errorf("init worker: %w", err)
	}
	defer w.lifecycle.BeforeWorkerExit(w.id)

	w.log.Debug("Worker started", zap.Int("slot", slot))

	ticker := w.clock.Ticker(w.interval)
	defer ticker.Stop()

	idleSince := w.clock.Now()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Worker canceled")
			return nil
		case conn, ok := <-w.conns:
			if !ok {
				return nil
			}
			w.handleConn(ctx, conn)
			idleSince = w.clock.Now()
		case <-ticker.C:
		}
		if reason := w.checkpoint(idleSince); reason != "" {
			w.log.Debug("Worker exiting",
				zap.String("reason", reason),
				zap.Int("requests", w.requests),
			)
			return nil
		}
	}
}

// checkpoint returns the reason to exit or an empty string to keep running.
func (w *Worker) checkpoint(idleSince time.Time) string {
	if w.reg.ExitRequested(w.slot, w.id) {
		return "exit requested"
	}
	cfg := w.store.Load()
	if cfg.MaxRequestsPerChild > 0 && w.requests >= cfg.MaxRequestsPerChild {
		return "request limit reached"
	}
	if cfg.MaxIdleTime > 0 && w.clock.Since(idleSince) >= cfg.MaxIdleTime {
		c := w.reg.Counters()
		if c.Running > cfg.StartServers && c.Idle() > cfg.MinSpareServers {
			return "idle"
		}
	}
	return ""
}

// closing reports whether the connection must be closed after the current
// response because the worker is about to exit.
func (w *Worker) closing(ctx context.Context, cfg *config.Config) bool {
	if ctx.Err() != nil {
		return true
	}
	if cfg.MaxRequestsPerChild > 0 && w.requests >= cfg.MaxRequestsPerChild {
		return true
	}
	return w.reg.ExitRequested(w.slot, w.id)
}

func (w *Worker) handleConn(ctx context.Context, nc net.Conn) {
	untrack := w.tracker.Track(nc)
	defer untrack()

	if tcp, ok := nc.(*net.TCPConn); ok {
		_ = tcp.SetLinger(lingerTimeout)
		_ = tcp.SetNoDelay(true)
	}

	conn := stream.New(nc, w.store.Load().ConnectionTimeout)
	defer func() {
		if err := conn.Close(); err != nil {
			w.log.Debug("Failed to close connection", zap.Error(err))
		}
	}()

	if !w.lifecycle.AfterConnEstablished(nc) {
		w.log.Debug("Connection rejected by hook", zap.Stringer("remote", nc.RemoteAddr()))
		return
	}

	w.reg.ConnStart(w.slot, nc.RemoteAddr())
	defer w.reg.ConnEnd(w.slot)

	w.serve(ctx, conn)
}
