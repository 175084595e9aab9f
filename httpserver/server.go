package httpserver

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"go.pact.im/x/process"

	"go.pact.im/x/qhttpd/config"
	"go.pact.im/x/qhttpd/hook"
	"go.pact.im/x/qhttpd/methods"
	"go.pact.im/x/qhttpd/registry"
	"go.pact.im/x/qhttpd/status"
	"go.pact.im/x/qhttpd/supervisor"
	"go.pact.im/x/qhttpd/worker"
)

// Server is a file server backed by a supervised worker pool.
type Server struct {
	log *zap.Logger

	reg     *registry.Registry
	sup     *supervisor.Supervisor
	tracker *connTracker
	accept  *acceptor

	watchFile string
	addr      atomic.Value
}

// NewServer returns a new Server instance with the given options. The slot
// table is sized from the initial configuration and does not change on
// reload.
func NewServer(o Options) *Server {
	o.setDefaults()

	cfg := o.Config.Load()
	size := cfg.MaxClients
	if size > registry.MaxSlots {
		size = registry.MaxSlots
	}
	reg := registry.New(registry.Options{
		Size:   size,
		Clock:  o.Clock,
		Logger: o.Logger.Named("registry"),
	})

	dispatcher := methods.NewDispatcher(methods.Options{
		Config: o.Config,
		Locks:  methods.NewLockTable(o.Clock),
		Clock:  o.Clock,
		Logger: o.Logger.Named("methods"),
	})
	handlers := make(hook.Chain, 0, len(o.Handlers)+2)
	handlers = append(handlers, status.New(status.Options{
		Registry:   reg,
		Config:     o.Config,
		ServerName: o.ServerName,
		Clock:      o.Clock,
	}))
	handlers = append(handlers, o.Handlers...)
	handlers = append(handlers, dispatcher)

	conns := make(chan net.Conn)
	tracker := newConnTracker()

	workerLog := o.Logger.Named("worker")
	accessLog := o.Logger.Named("access")
	newWorker := func(id int64, name string) supervisor.Runner {
		return worker.New(worker.Options{
			ID:                 id,
			Name:               name,
			Conns:              conns,
			Registry:           reg,
			Config:             o.Config,
			Handler:            handlers,
			ResponseHooks:      o.ResponseHooks,
			Lifecycle:          o.Lifecycle,
			Tracker:            tracker,
			ServerName:         o.ServerName,
			CheckpointInterval: o.CheckpointInterval,
			Clock:              o.Clock,
			Logger:             workerLog,
			AccessLog:          accessLog,
		})
	}

	s := &Server{
		log:       o.Logger,
		reg:       reg,
		tracker:   tracker,
		watchFile: o.WatchFile,
	}
	s.sup = supervisor.New(supervisor.Options{
		Registry:        reg,
		Config:          o.Config,
		Load:            o.Load,
		NewWorker:       newWorker,
		Conns:           conns,
		Tracker:         tracker,
		Lifecycle:       o.Lifecycle,
		Level:           o.Level,
		ServerName:      o.ServerName,
		Tick:            o.Tick,
		SoftStopTimeout: o.SoftStopTimeout,
		HardStopTimeout: o.HardStopTimeout,
		Clock:           o.Clock,
		Logger:          o.Logger.Named("supervisor"),
	})
	s.accept = &acceptor{
		socket: o.Socket,
		conns:  conns,
		clock:  o.Clock,
		log:    o.Logger.Named("http"),
		addr: func(a net.Addr) {
			s.addr.Store(a)
		},
	}
	return s
}

// Registry returns the worker slot table.
func (s *Server) Registry() *registry.Registry {
	return s.reg
}

// Addr returns the listener address or nil if the server is not listening.
func (s *Server) Addr() net.Addr {
	a, _ := s.addr.Load().(net.Addr)
	return a
}

// Reload asks the server to reload its configuration. It does not block.
func (s *Server) Reload() {
	s.sup.Reload()
}

// Run runs the server. The given callback is called after the server is
// listening and the supervisor is initialized. When the callback returns,
// the server stops accepting connections, stops the workers and returns.
func (s *Server) Run(ctx context.Context, callback func(ctx context.Context) error) error {
	procs := []process.Runnable{s.accept, s.sup}
	if s.watchFile != "" {
		procs = append(procs, &configWatch{
			name:   s.watchFile,
			reload: s.Reload,
			log:    s.log.Named("config"),
		})
	}
	return process.Parallel(procs...).Run(ctx, callback)
}

// configWatch reloads the configuration when the file changes.
type configWatch struct {
	name   string
	reload func()
	log    *zap.Logger
}

func (w *configWatch) Run(ctx context.Context, callback func(ctx context.Context) error) error {
	watcher, err := config.NewWatcher(w.name)
	if err != nil {
		return fmt.Errorf("watch %s: %w", w.name, err)
	}

	watchCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		err := watcher.Run(watchCtx, func() {
			w.log.Info("Configuration file changed", zap.String("file", w.name))
			w.reload()
		})
		if err != nil {
			w.log.Error("Stopped watching configuration file", zap.Error(err))
		}
	}()

	callbackError := callback(ctx)

	stop()
	<-done
	return multierr.Combine(callbackError, watcher.Close())
}
