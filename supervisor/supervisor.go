// Package supervisor implements the pool scheduler. The supervisor launches
// and retires workers to keep the number of idle workers between the
// configured bounds, reaps exited workers, answers connections that arrive
// while the pool is saturated, reloads the configuration and drives the
// staged shutdown.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/technosophos/moniker"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"go.pact.im/x/qhttpd/config"
	"go.pact.im/x/qhttpd/hook"
	"go.pact.im/x/qhttpd/http1"
	"go.pact.im/x/qhttpd/registry"
	"go.pact.im/x/qhttpd/stream"
	"go.pact.im/x/qhttpd/worker"
)

const (
	// DefaultTick is the default scheduling interval.
	DefaultTick = 10 * time.Millisecond

	// DefaultSoftStopTimeout is how long workers are given to exit on their
	// own during shutdown.
	DefaultSoftStopTimeout = 10 * time.Second

	// DefaultHardStopTimeout is how long workers are given to exit after
	// their connections are closed.
	DefaultHardStopTimeout = 5 * time.Second

	periodicInterval = 2 * time.Second
	registrationWait = time.Second
	stuckLockAge     = 10 * time.Second
	shutdownPoll     = time.Second

	// maxOverflowResponders bounds the number of concurrent 503 responses.
	maxOverflowResponders = 64
)

// Runner is a worker started by the supervisor.
type Runner interface {
	Run(ctx context.Context) error
}

// NewWorkerFunc returns a new worker with the given ID and name.
type NewWorkerFunc func(id int64, name string) Runner

// ConnTracker tracks served connections and closes them on hard shutdown.
type ConnTracker interface {
	worker.Tracker
	CloseAll() error
}

type nopTracker struct{}

func (nopTracker) Track(net.Conn) func() { return func() {} }
func (nopTracker) CloseAll() error       { return nil }

// Options are the options for a Supervisor.
type Options struct {
	Registry *registry.Registry
	Config   *config.Store

	// Load reads a new configuration on reload. If not set, reload
	// requests are ignored.
	Load func() (*config.Config, error)

	// NewWorker creates workers.
	NewWorker NewWorkerFunc

	// Conns is the channel of accepted connections shared with workers.
	// The supervisor receives from it to reject connections while the pool
	// is saturated.
	Conns <-chan net.Conn

	// Tracker defaults to a no-op tracker.
	Tracker ConnTracker

	// Lifecycle defaults to hook.Nop.
	Lifecycle hook.Lifecycle

	// Level, if set, is updated from the configuration on reload.
	Level *zap.AtomicLevel

	// ServerName is the Server header of overflow responses.
	ServerName string

	// Tick defaults to DefaultTick.
	Tick time.Duration

	// SoftStopTimeout defaults to DefaultSoftStopTimeout.
	SoftStopTimeout time.Duration

	// HardStopTimeout defaults to DefaultHardStopTimeout.
	HardStopTimeout time.Duration

	// Clock defaults to the system clock.
	Clock clock.Clock

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

func (o *Options) setDefaults() {
	if o.Tracker == nil {
		o.Tracker = nopTracker{}
	}
	if o.Lifecycle == nil {
		o.Lifecycle = hook.Nop{}
	}
	if o.Tick <= 0 {
		o.Tick = DefaultTick
	}
	if o.SoftStopTimeout <= 0 {
		o.SoftStopTimeout = DefaultSoftStopTimeout
	}
	if o.HardStopTimeout <= 0 {
		o.HardStopTimeout = DefaultHardStopTimeout
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

type workerExit struct {
	id  int64
	err error
}

// Supervisor is the pool scheduler.
type Supervisor struct {
	reg       *registry.Registry
	store     *config.Store
	load      func() (*config.Config, error)
	newWorker NewWorkerFunc
	conns     <-chan net.Conn
	tracker   ConnTracker
	lifecycle hook.Lifecycle
	level     *zap.AtomicLevel

	serverName string
	tick       time.Duration
	softStop   time.Duration
	hardStop   time.Duration
	clock      clock.Clock
	log        *zap.Logger

	names  moniker.Namer
	nextID atomic.Int64
	policy policy

	reloadc chan struct{}
	exits   chan workerExit
	done    chan struct{}

	// live is the number of launched workers that were not reaped. It is
	// only accessed by the supervisor goroutine.
	live int

	workers  errgroup.Group
	overflow errgroup.Group
}

// New returns a new Supervisor.
func New(o Options) *Supervisor {
	o.setDefaults()
	s := &Supervisor{
		reg:        o.Registry,
		store:      o.Config,
		load:       o.Load,
		newWorker:  o.NewWorker,
		conns:      o.Conns,
		tracker:    o.Tracker,
		lifecycle:  o.Lifecycle,
		level:      o.Level,
		serverName: o.ServerName,
		tick:       o.Tick,
		softStop:   o.SoftStopTimeout,
		hardStop:   o.HardStopTimeout,
		clock:      o.Clock,
		log:        o.Logger,
		names:      moniker.New(),
		policy: policy{
			threshold: ticksPerSecond(o.Tick),
		},
		reloadc: make(chan struct{}, 1),
		exits:   make(chan workerExit),
		done:    make(chan struct{}),
	}
	s.overflow.SetLimit(maxOverflowResponders)
	return s
}

func ticksPerSecond(tick time.Duration) int {
	n := int(time.Second / tick)
	if n < 1 {
		n = 1
	}
	return n
}

// Reload asks the supervisor to reload the configuration. It does not block
// and multiple pending requests are coalesced.
func (s *Supervisor) Reload() {
	select {
	case s.reloadc <- struct{}{}:
	default:
	}
}

// Run runs the scheduling loop. The callback is called once the supervisor
// is initialized. When the callback returns, the supervisor stops all workers
// and returns the callback error.
func (s *Supervisor) Run(ctx context.Context, callback func(ctx context.Context) error) error {
	if err := s.lifecycle.AfterSupervisorInit(ctx); err != nil {
		return fmt.Errorf("init supervisor: %w", err)
	}

	workerCtx, cancelWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWorkers()

	loopCtx, stopLoop := context.WithCancel(ctx)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		s.loop(loopCtx, workerCtx)
	}()

	callbackErr := callback(ctx)

	stopLoop()
	<-loopDone

	s.shutdown(cancelWorkers)
	s.lifecycle.BeforeSupervisorExit(context.WithoutCancel(ctx))
	return callbackErr
}

func (s *Supervisor) loop(ctx, workerCtx context.Context) {
	ticker := s.clock.Ticker(s.tick)
	defer ticker.Stop()

	lastPeriodic := s.clock.Now()
	s.step(workerCtx)
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-s.exits:
			s.reap(e)
		case <-s.reloadc:
			_ = s.reload()
		case <-ticker.C:
			s.step(workerCtx)
			if s.clock.Since(lastPeriodic) >= periodicInterval {
				lastPeriodic = s.clock.Now()
				s.periodic(ctx)
			}
		}
	}
}

// step runs a single scheduling decision.
func (s *Supervisor) step(workerCtx context.Context) {
	cfg := s.store.Load()
	c := s.reg.Counters()
	limit := s.reg.Size()

	a := s.policy.decide(cfg, c, limit)
	for i := 0; i < a.Launch; i++ {
		s.launch(workerCtx)
	}
	if a.Retire {
		if id, ok := s.reg.RequestIdleExit(); ok {
			s.log.Debug("Retiring idle worker",
				zap.Int64("worker", id),
				zap.Int("idle", c.Idle()),
			)
		}
	}

	if cfg.MaxClients < limit {
		limit = cfg.MaxClients
	}
	if cfg.IgnoreOverConnection && c.Running >= limit && c.Idle() <= 0 {
		s.drainOverflow(cfg)
	}
}

// periodic runs housekeeping on a multi-second cadence.
func (s *Supervisor) periodic(ctx context.Context) {
	s.reg.Reconcile()
	s.reg.ReleaseStuck(stuckLockAge)
	s.lifecycle.WhileSupervisorIdle(ctx)
}

// launch starts a worker and waits until it registers or exits.
func (s *Supervisor) launch(workerCtx context.Context) {
	id := s.nextID.Inc()
	name := s.names.NameSep("-")
	w := s.newWorker(id, name)

	s.live++
	s.workers.Go(func() error {
		err := w.Run(workerCtx)
		e := workerExit{id: id, err: err}
		select {
		case s.exits <- e:
		case <-s.done:
			s.handleExit(e)
		}
		return nil
	})

	deadline := s.clock.Timer(registrationWait)
	defer deadline.Stop()
	poll := s.clock.Ticker(time.Millisecond)
	defer poll.Stop()
	for {
		if _, ok := s.reg.FindSlot(id); ok {
			s.log.Debug("Worker launched", zap.Int64("worker", id), zap.String("name", name))
			return
		}
		select {
		case e := <-s.exits:
			s.reap(e)
			if e.id == id {
				return
			}
		case <-poll.C:
		case <-deadline.C:
			s.log.Warn("Worker did not register in time", zap.Int64("worker", id))
			return
		}
	}
}

// reap handles a worker exit on the supervisor goroutine.
func (s *Supervisor) reap(e workerExit) {
	s.live--
	s.handleExit(e)
}

func (s *Supervisor) handleExit(e workerExit) {
	log := s.log.With(zap.Int64("worker", e.id))
	leftover := s.reg.DeregisterWorker(e.id)

	var perr *worker.PanicError
	switch {
	case errors.As(e.err, &perr):
		log.Error("Worker panicked",
			zap.Any("panic", perr.Value),
			zap.ByteString("stack", perr.Stack),
		)
	case errors.Is(e.err, registry.ErrPoolFull):
		log.Warn("Worker could not register, pool is full")
	case e.err != nil:
		log.Error("Worker failed", zap.Error(e.err))
	case leftover:
		log.Warn("Worker exited unexpectedly")
	default:
		log.Debug("Worker exited")
	}
}

// drainOverflow answers pending connections with 503 while no worker is
// available to receive them.
func (s *Supervisor) drainOverflow(cfg *config.Config) {
	for {
		select {
		case nc, ok := <-s.conns:
			if !ok {
				return
			}
			s.rejectConn(nc, cfg.ConnectionTimeout)
		default:
			return
		}
	}
}

func (s *Supervisor) rejectConn(nc net.Conn, timeout time.Duration) {
	ok := s.overflow.TryGo(func() error {
		untrack := s.tracker.Track(nc)
		defer untrack()
		s.serviceUnavailable(nc, timeout)
		return nil
	})
	if !ok {
		_ = nc.Close()
	}
}

func (s *Supervisor) serviceUnavailable(nc net.Conn, timeout time.Duration) {
	conn := stream.New(nc, timeout)
	res := http1.NewResponse(conn, nil, &http1.ResponseOptions{
		ServerName: s.serverName,
		Logger:     s.log,
	})
	res.SetSimple(http1.StatusServiceUnavailable, false,
		"The server is temporarily unable to service your request. Please try again later.")
	if err := res.Flush(); err != nil {
		s.log.Debug("Failed to write overflow response", zap.Error(err))
	}
	if err := conn.Close(); err != nil {
		s.log.Debug("Failed to close overflow connection", zap.Error(err))
	}
	s.log.Info("Rejected connection, pool is saturated", zap.Stringer("remote", nc.RemoteAddr()))
}

// reload loads a new configuration and publishes it. On failure the current
// configuration stays in effect.
func (s *Supervisor) reload() error {
	if s.load == nil {
		s.log.Warn("Configuration reload is not supported")
		return nil
	}
	cfg, err := s.load()
	if err == nil {
		if hookErr := s.lifecycle.AfterConfigLoaded(cfg); hookErr != nil {
			err = fmt.Errorf("rejected by hook: %w", hookErr)
		}
	}
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		s.log.Error("Failed to reload configuration, keeping the current one", zap.Error(err))
		return err
	}

	s.store.Swap(cfg)
	if s.level != nil {
		if lvl, err := cfg.Level(); err == nil {
			s.level.SetLevel(lvl)
		}
	}
	s.lifecycle.AfterConfigReload(cfg)

	n := s.reg.RequestExitAll()
	s.log.Info("Configuration reloaded", zap.Int("restarting", n))
	return nil
}

// shutdown stops all workers in stages: the soft stage asks workers to exit,
// the hard stage cancels their context and closes their connections, and
// the final stage gives up on stragglers.
func (s *Supervisor) shutdown(cancelWorkers context.CancelFunc) {
	defer close(s.done)

	n := s.reg.RequestExitAll()
	s.log.Info("Stopping workers", zap.Int("workers", n))

	if s.waitWorkers(s.softStop) {
		s.finish()
		return
	}
	s.log.Warn("Workers did not stop in time, closing connections", zap.Int("workers", s.live))
	cancelWorkers()
	if err := s.tracker.CloseAll(); err != nil {
		s.log.Debug("Failed to close connections", zap.Error(err))
	}
	if s.waitWorkers(s.hardStop) {
		s.finish()
		return
	}
	s.log.Error("Giving up on workers that did not stop", zap.Int("stragglers", s.live))
}

// finish waits for worker and overflow goroutines once every worker was
// reaped.
func (s *Supervisor) finish() {
	_ = s.workers.Wait()
	if err := s.tracker.CloseAll(); err != nil {
		s.log.Debug("Failed to close connections", zap.Error(err))
	}
	_ = s.overflow.Wait()
	s.log.Info("All workers stopped")
}

// waitWorkers reaps workers until none is left or the timeout expires.
func (s *Supervisor) waitWorkers(timeout time.Duration) bool {
	deadline := s.clock.Timer(timeout)
	defer deadline.Stop()
	poll := s.clock.Ticker(shutdownPoll)
	defer poll.Stop()

	for s.live > 0 {
		select {
		case e := <-s.exits:
			s.reap(e)
		case <-poll.C:
			s.log.Debug("Waiting for workers", zap.Int("workers", s.live))
		case <-deadline.C:
			return false
		}
	}
	return true
}
