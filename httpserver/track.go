package httpserver

import (
	"errors"
	"net"
	"sync"

	"go.uber.org/multierr"
)

// connTracker tracks connections that are being served so that the hard
// shutdown stage can close them and unblock workers stuck in I/O.
type connTracker struct {
	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func newConnTracker() *connTracker {
	return &connTracker{
		conns: make(map[net.Conn]struct{}),
	}
}

// Track implements the worker.Tracker interface.
func (t *connTracker) Track(conn net.Conn) func() {
	t.mu.Lock()
	t.conns[conn] = struct{}{}
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.conns, conn)
		t.mu.Unlock()
	}
}

// Len returns the number of tracked connections.
func (t *connTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// CloseAll closes every tracked connection. Connections stay tracked until
// their owners untrack them.
func (t *connTracker) CloseAll() error {
	t.mu.Lock()
	conns := make([]net.Conn, 0, len(t.conns))
	for c := range t.conns {
		conns = append(conns, c)
	}
	t.mu.Unlock()

	var err error
	for _, c := range conns {
		if closeErr := c.Close(); closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
			err = multierr.Append(err, closeErr)
		}
	}
	return err
}
