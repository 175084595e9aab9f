// Package streamtest provides an in-memory net.Conn for testing code built on
// top of the stream package.
package streamtest

import (
	"bytes"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

// Conn is a net.Conn that reads from a fixed input and records everything
// written to it. Deadlines are accepted and ignored. Reading past the end of
// input returns io.EOF.
type Conn struct {
	r io.Reader

	mu     sync.Mutex
	w      bytes.Buffer
	closed bool
}

// NewConn returns a new Conn that reads the given input.
func NewConn(input string) *Conn {
	return &Conn{r: strings.NewReader(input)}
}

// Written returns everything written to the connection so far.
func (c *Conn) Written() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.String()
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Read implements the net.Conn interface.
func (c *Conn) Read(p []byte) (int, error) {
	if c.Closed() {
		return 0, net.ErrClosed
	}
	return c.r.Read(p)
}

// Write implements the net.Conn interface.
func (c *Conn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, net.ErrClosed
	}
	return c.w.Write(p)
}

// Close implements the net.Conn interface.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// LocalAddr implements the net.Conn interface.
func (c *Conn) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(192, 0, 2, 1), Port: 80}
}

// RemoteAddr implements the net.Conn interface.
func (c *Conn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(198, 51, 100, 7), Port: 40123}
}

// SetDeadline implements the net.Conn interface.
func (c *Conn) SetDeadline(time.Time) error { return nil }

// SetReadDeadline implements the net.Conn interface.
func (c *Conn) SetReadDeadline(time.Time) error { return nil }

// SetWriteDeadline implements the net.Conn interface.
func (c *Conn) SetWriteDeadline(time.Time) error { return nil }
