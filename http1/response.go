package http1

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"strconv"
	"time"

	"go.uber.org/zap"

	"go.pact.im/x/qhttpd/header"
	"go.pact.im/x/qhttpd/stream"
)

// ErrAlreadyFlushed is returned by Flush if the response head was already
// written.
var ErrAlreadyFlushed = errors.New("http1: response already flushed")

// ErrNotFlushed is returned by WriteChunk if the response head was not
// written yet.
var ErrNotFlushed = errors.New("http1: response head not flushed")

var crlf = []byte("\r\n")

// ResponseOptions are settings shared by all responses on a connection.
type ResponseOptions struct {
	// KeepAlive enables persistent connections.
	KeepAlive bool

	// KeepAliveTimeout is advertised in the Keep-Alive header. Defaults to
	// DefaultKeepAliveTimeout.
	KeepAliveTimeout time.Duration

	// ServerName is the Server header value. The header is omitted if
	// empty.
	ServerName string

	// Rewrite, if set, is called right before the response head is
	// written and may modify the response.
	Rewrite func(*Response)

	// Closing, if set, reports whether the connection is going to be closed
	// after the current response regardless of the keep-alive negotiation.
	Closing func() bool

	// Logger is used to report short writes. If not set, logs are not
	// written.
	Logger *zap.Logger
}

// Response is an HTTP response. Fields may be modified directly or with
// setters until the response is flushed. Once flushed, setters have no
// effect and Flush refuses to run again.
type Response struct {
	// Request is the request being answered. It is nil for synthetic
	// responses sent without reading a request.
	Request *Request

	Proto  string
	Code   int
	Header *header.Header

	ContentType string
	// Body is the in-memory response body.
	Body []byte
	// ContentLength is the body length announced in Content-Length.
	ContentLength int64
	// Chunked selects chunked transfer coding instead of Content-Length.
	Chunked bool

	conn    *stream.Conn
	opts    *ResponseOptions
	flushed bool
	failed  bool
	written int64
}

// NewResponse returns a new response on the given connection. The request may
// be nil.
func NewResponse(conn *stream.Conn, req *Request, opts *ResponseOptions) *Response {
	if opts == nil {
		opts = &ResponseOptions{}
	}
	proto := HTTP11
	if req != nil && req.Proto == HTTP10 {
		proto = HTTP10
	}
	return &Response{
		Request: req,
		Proto:   proto,
		Header:  header.New(),
		conn:    conn,
		opts:    opts,
	}
}

// Flushed reports whether the response head was written.
func (r *Response) Flushed() bool {
	return r.flushed
}

// Written returns the number of body bytes sent.
func (r *Response) Written() int64 {
	return r.written
}

// Failed reports whether writing any part of the response failed. The
// connection is out of sync with the client and must be closed.
func (r *Response) Failed() bool {
	return r.failed
}

// KeepAlive reports whether the response keeps the connection open.
func (r *Response) KeepAlive() bool {
	return r.Header.HasToken("Connection", "keep-alive")
}

// SetStatus sets the status code and negotiates the connection persistence.
// Keep-alive is only used if both keepAlive and the client allow it.
func (r *Response) SetStatus(code int, keepAlive bool) {
	if r.flushed {
		return
	}
	r.Code = code
	r.setConnection(keepAlive && r.keepAliveAllowed())
}

// SetSimple sets the status code and, if msg is not empty, an HTML body
// describing the status. It returns the status code.
func (r *Response) SetSimple(code int, keepAlive bool, msg string) int {
	if r.flushed {
		return r.Code
	}
	r.SetStatus(code, keepAlive)
	if msg != "" && bodyAllowed(code) {
		r.SetContent("text/html", errorPage(code, msg, r.opts.ServerName))
	}
	return code
}

// SetContent sets the in-memory body and its content type.
func (r *Response) SetContent(contentType string, body []byte) {
	if r.flushed {
		return
	}
	r.ContentType = contentType
	r.Body = body
	r.ContentLength = int64(len(body))
	r.Chunked = false
}

// SetContentLength announces a body of n bytes that the caller streams with
// SendBody after Flush.
func (r *Response) SetContentLength(contentType string, n int64) {
	if r.flushed {
		return
	}
	r.ContentType = contentType
	r.Body = nil
	r.ContentLength = n
	r.Chunked = false
}

// SetChunked selects chunked transfer coding. The caller writes the body
// with WriteChunk after Flush and terminates it with an empty chunk.
func (r *Response) SetChunked(contentType string) {
	if r.flushed {
		return
	}
	r.ContentType = contentType
	r.Body = nil
	r.ContentLength = 0
	r.Chunked = true
}

// SetAuthRequired sets a 401 response asking for Basic credentials for the
// given realm. It returns the status code.
func (r *Response) SetAuthRequired(realm string) int {
	if r.flushed {
		return r.Code
	}
	r.Header.Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
	return r.SetSimple(StatusUnauthorized, true, "You need a valid user and password to access this content.")
}

// Flush writes the status line and header and then the in-memory body, if
// any. It runs the Rewrite option, forces the connection to close if
// requested, selects the body framing and refreshes the Date header.
func (r *Response) Flush() error {
	if r.flushed {
		return ErrAlreadyFlushed
	}
	if r.opts.Rewrite != nil {
		r.opts.Rewrite(r)
	}
	if r.Code == 0 {
		r.Code = StatusInternalServerError
	}
	if !r.Header.Has("Connection") || r.closing() {
		r.setConnection(false)
	}
	r.setFraming()
	r.Header.Set("Date", time.Now().UTC().Format(TimeFormat))
	if r.opts.ServerName != "" && !r.Header.Has("Server") {
		r.Header.Set("Server", r.opts.ServerName)
	}
	r.flushed = true

	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %d %s\r\n", r.Proto, r.Code, StatusText(r.Code))
	r.Header.Each(func(name, value string) bool {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(value)
		b.Write(crlf)
		return true
	})
	b.Write(crlf)

	if err := r.write(b.Bytes()); err != nil {
		return fmt.Errorf("write response head: %w", err)
	}
	if len(r.Body) == 0 || r.headOnly() {
		return nil
	}
	if err := r.write(r.Body); err != nil {
		return fmt.Errorf("write response body: %w", err)
	}
	r.written += int64(len(r.Body))
	return nil
}

// WriteChunk writes a single chunk with one vectored write. An empty p
// writes the terminal chunk. It succeeds only if the whole chunk was sent.
// Nothing is sent in response to a HEAD request.
func (r *Response) WriteChunk(p []byte) error {
	if !r.flushed {
		return ErrNotFlushed
	}
	if r.headOnly() {
		return nil
	}
	size := chunkHeader(len(p))
	want := int64(len(size) + len(p) + len(crlf))
	n, err := r.conn.Writev(size, p, crlf)
	if err == nil && n != want {
		err = io.ErrShortWrite
	}
	if err != nil {
		r.logShortWrite(n, want, err)
		return err
	}
	r.written += int64(len(p))
	return nil
}

// SendBody streams exactly n body bytes from src after the head was flushed.
// Nothing is sent in response to a HEAD request.
func (r *Response) SendBody(src io.Reader, n int64) (int64, error) {
	if r.headOnly() {
		return 0, nil
	}
	sent, err := r.conn.Send(src, n)
	r.written += sent
	if err != nil {
		r.logShortWrite(sent, n, err)
	}
	return sent, err
}

// WriteContinue sends a 100 Continue interim response.
func (r *Response) WriteContinue() error {
	return r.write([]byte(r.Proto + " 100 Continue\r\n\r\n"))
}

func (r *Response) headOnly() bool {
	return r.Request != nil && r.Request.Method == "HEAD"
}

// keepAliveAllowed reports whether the client permits a persistent
// connection.
func (r *Response) keepAliveAllowed() bool {
	req := r.Request
	if !r.opts.KeepAlive || req == nil || req.Status != StatusWellFormed {
		return false
	}
	if req.Proto == HTTP11 {
		return !req.Header.HasToken("Connection", "close")
	}
	return req.Header.HasToken("Connection", "keep-alive") || req.Header.HasToken("Connection", "TE")
}

// closing reports whether the connection must be closed after the response.
func (r *Response) closing() bool {
	req := r.Request
	if req == nil || req.Status != StatusWellFormed || req.BodyPending() {
		return true
	}
	return r.opts.Closing != nil && r.opts.Closing()
}

func (r *Response) setConnection(keepAlive bool) {
	if !keepAlive {
		r.Header.Set("Connection", "close")
		r.Header.Del("Keep-Alive")
		return
	}
	timeout := r.opts.KeepAliveTimeout
	if timeout <= 0 {
		timeout = DefaultKeepAliveTimeout
	}
	r.Header.Set("Connection", "Keep-Alive")
	r.Header.Set("Keep-Alive", "timeout="+strconv.Itoa(int(timeout/time.Second)))
}

func (r *Response) setFraming() {
	switch {
	case r.Chunked:
		r.Header.Del("Content-Length")
		r.Header.Set("Transfer-Encoding", "chunked")
	case bodyAllowed(r.Code):
		r.Header.Del("Transfer-Encoding")
		r.Header.Set("Content-Length", strconv.FormatInt(r.ContentLength, 10))
	default:
		r.Header.Del("Transfer-Encoding")
		r.Header.Del("Content-Length")
	}
	if r.ContentType != "" {
		r.Header.Set("Content-Type", r.ContentType)
	}
}

func (r *Response) write(p []byte) error {
	n, err := r.conn.Write(p)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	if err != nil {
		r.logShortWrite(int64(n), int64(len(p)), err)
	}
	return err
}

func (r *Response) logShortWrite(n, want int64, err error) {
	r.failed = true
	if r.opts.Logger == nil {
		return
	}
	r.opts.Logger.Debug("Short write",
		zap.Int64("written", n),
		zap.Int64("expected", want),
		zap.Error(err),
	)
}

func errorPage(code int, msg, server string) []byte {
	title := strconv.Itoa(code) + " " + html.EscapeString(StatusText(code))
	var b bytes.Buffer
	b.WriteString("<html>\n<head><title>" + title + "</title></head>\n<body>\n")
	b.WriteString("<h1>" + title + "</h1>\n")
	b.WriteString("<p>" + html.EscapeString(msg) + "</p>\n")
	if server != "" {
		b.WriteString("<hr>\n<address>" + html.EscapeString(server) + "</address>\n")
	}
	b.WriteString("</body>\n</html>\n")
	return b.Bytes()
}
