package httpserver

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const maxAcceptDelay = time.Second

// acceptor accepts connections and hands them over to workers. A connection
// is sent on an unbuffered channel so it stays with the acceptor until some
// worker, or the supervisor answering overflow, receives it.
type acceptor struct {
	socket StreamSocket
	conns  chan<- net.Conn
	clock  clock.Clock
	log    *zap.Logger

	// addr receives the listener address once listening.
	addr func(net.Addr)
}

func (a *acceptor) Run(ctx context.Context, callback func(ctx context.Context) error) error {
	ln, err := a.socket.Listen(ctx)
	if err != nil {
		return err
	}
	l := &onceCloseListener{Listener: ln}
	if a.addr != nil {
		a.addr(ln.Addr())
	}
	a.log.Info("Listening", zap.Stringer("address", ln.Addr()))

	fgctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	errc := make(chan error, 1)
	go func() {
		err := a.serve(l, done)
		cancel()
		errc <- err
	}()

	callbackError := callback(fgctx)

	// Closing the listener unblocks Accept. The done channel unblocks a
	// pending handover.
	close(done)
	closeError := l.Close()
	serveError := <-errc
	if errors.Is(closeError, net.ErrClosed) {
		closeError = nil
	}
	return multierr.Combine(callbackError, serveError, closeError)
}

func (a *acceptor) serve(l net.Listener, done <-chan struct{}) error {
	var delay time.Duration
	for {
		nc, err := l.Accept()
		if err != nil {
			select {
			case <-done:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			// Accept errors other than a closed listener are usually
			// caused by running out of file descriptors. Back off the
			// same way net/http does.
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay *= 2
			}
			if delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			a.log.Warn("Failed to accept connection", zap.Error(err), zap.Duration("retryIn", delay))
			select {
			case <-done:
				return nil
			case <-a.clock.After(delay):
			}
			continue
		}
		delay = 0

		select {
		case a.conns <- nc:
		case <-done:
			_ = nc.Close()
			return nil
		}
	}
}

type onceCloseListener struct {
	net.Listener
	once sync.Once
	err  error
}

func (l *onceCloseListener) Close() error {
	l.once.Do(func() { l.err = l.Listener.Close() })
	return l.err
}
