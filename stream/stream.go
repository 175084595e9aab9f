// Package stream provides byte stream primitives with per-operation timeouts
// over a single bidirectional network connection.
//
// Every blocking call on Conn arms a fresh deadline on the underlying
// net.Conn, so a slow peer can stall a single operation for at most the
// configured timeout but a long transfer that keeps making progress is never
// cut off.
package stream

import (
	"bufio"
	"errors"
	"io"
	"net"
	"os"
	"time"
)

// MaxShutdownWait is the maximum duration Close waits for the peer to finish
// sending after the write side of the connection is shut down.
const MaxShutdownWait = 5 * time.Second

// readBufferSize is the size of the connection read buffer. The buffer lives
// as long as the connection so that bytes read ahead of the current request
// are seen by the next one.
const readBufferSize = 8 << 10

// ErrLineTooLong is returned by ReadLine when the line exceeds the limit.
var ErrLineTooLong = errors.New("stream: line too long")

// Conn is a buffered connection with timeout-bounded operations. It is not
// safe for concurrent use.
type Conn struct {
	conn    net.Conn
	r       *bufio.Reader
	timeout time.Duration
}

// New returns a new Conn for the given connection. A zero or negative timeout
// disables deadlines.
func New(conn net.Conn, timeout time.Duration) *Conn {
	return &Conn{
		conn:    conn,
		r:       bufio.NewReaderSize(conn, readBufferSize),
		timeout: timeout,
	}
}

// NetConn returns the underlying connection.
func (c *Conn) NetConn() net.Conn {
	return c.conn
}

// Timeout returns the per-operation timeout.
func (c *Conn) Timeout() time.Duration {
	return c.timeout
}

// SetTimeout changes the per-operation timeout.
func (c *Conn) SetTimeout(d time.Duration) {
	c.timeout = d
}

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// WaitReadable waits until at least one byte can be read without blocking.
// It returns false and a nil error if the timeout expires first.
func (c *Conn) WaitReadable(timeout time.Duration) (bool, error) {
	if c.r.Buffered() > 0 {
		return true, nil
	}
	if err := c.setReadDeadline(timeout); err != nil {
		return false, err
	}
	if _, err := c.r.Peek(1); err != nil {
		if IsTimeout(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Read implements the io.Reader interface.
func (c *Conn) Read(p []byte) (int, error) {
	if err := c.setReadDeadline(c.timeout); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// ReadFull reads exactly len(p) bytes. The deadline applies to the whole
// read.
func (c *Conn) ReadFull(p []byte) (int, error) {
	if err := c.setReadDeadline(c.timeout); err != nil {
		return 0, err
	}
	return io.ReadFull(c.r, p)
}

// ReadLine reads a single line terminated by LF and returns it without the
// line terminator (CRLF or LF). If max is positive and the line is longer,
// ReadLine returns ErrLineTooLong. Reaching EOF in the middle of a line
// returns io.ErrUnexpectedEOF.
func (c *Conn) ReadLine(max int) (string, error) {
	if err := c.setReadDeadline(c.timeout); err != nil {
		return "", err
	}
	var line []byte
	for {
		frag, err := c.r.ReadSlice('\n')
		line = append(line, frag...)
		if max > 0 && len(line) > max+2 {
			return "", ErrLineTooLong
		}
		if err == nil {
			break
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err == io.EOF && len(line) > 0 {
			err = io.ErrUnexpectedEOF
		}
		return "", err
	}
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	if max > 0 && len(line) > max {
		return "", ErrLineTooLong
	}
	return string(line), nil
}

// Write writes p to the connection.
func (c *Conn) Write(p []byte) (int, error) {
	if err := c.setWriteDeadline(c.timeout); err != nil {
		return 0, err
	}
	return c.conn.Write(p)
}

// Writev writes the given buffers with a single vectored write where the
// connection supports it. It returns the total number of bytes written.
func (c *Conn) Writev(bufs ...[]byte) (int64, error) {
	if err := c.setWriteDeadline(c.timeout); err != nil {
		return 0, err
	}
	b := net.Buffers(bufs)
	return b.WriteTo(c.conn)
}

// Save copies exactly n bytes from the connection to w. A short transfer
// returns io.EOF or the underlying read error.
func (c *Conn) Save(w io.Writer, n int64) (int64, error) {
	return io.CopyN(w, readerOnly{c}, n)
}

// Send copies exactly n bytes from r to the connection.
func (c *Conn) Send(r io.Reader, n int64) (int64, error) {
	return io.CopyN(writerOnly{c}, r, n)
}

// Close shuts down the write side of the connection, discards whatever the
// peer still sends for up to MaxShutdownWait and then closes the connection.
// This lets the peer read the final response before it sees a reset.
func (c *Conn) Close() error {
	if cw, ok := c.conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err == nil {
			_ = c.conn.SetReadDeadline(time.Now().Add(MaxShutdownWait))
			_, _ = io.Copy(io.Discard, c.conn)
		}
	}
	return c.conn.Close()
}

func (c *Conn) setReadDeadline(d time.Duration) error {
	if d <= 0 {
		return c.conn.SetReadDeadline(time.Time{})
	}
	return c.conn.SetReadDeadline(time.Now().Add(d))
}

func (c *Conn) setWriteDeadline(d time.Duration) error {
	if d <= 0 {
		return c.conn.SetWriteDeadline(time.Time{})
	}
	return c.conn.SetWriteDeadline(time.Now().Add(d))
}

// IsTimeout reports whether err is a deadline error.
func IsTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// readerOnly and writerOnly hide optional interfaces so that io.Copy goes
// through Conn methods that refresh deadlines for every chunk.
type readerOnly struct{ c *Conn }

func (r readerOnly) Read(p []byte) (int, error) { return r.c.Read(p) }

type writerOnly struct{ c *Conn }

func (w writerOnly) Write(p []byte) (int, error) { return w.c.Write(p) }
