package http1

import (
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"

	"go.pact.im/x/qhttpd/header"
	"go.pact.im/x/qhttpd/stream"
)

// ErrNoBody is returned by CopyBody when the request declares neither
// Content-Length nor chunked Transfer-Encoding.
var ErrNoBody = errors.New("http1: request has no body framing")

// Status is the outcome of reading a request.
type Status int

const (
	// StatusClosed means the connection was closed or timed out before a
	// request could be read. The caller should close the connection
	// without responding.
	StatusClosed Status = iota - 1
	// StatusBad means the request is malformed. RejectCode holds the
	// status code to answer with.
	StatusBad
	// StatusWellFormed means the request was parsed successfully.
	StatusWellFormed
)

// Request is an HTTP request read from a connection.
type Request struct {
	// Conn is the connection the request was read from.
	Conn *stream.Conn
	// Timeout is the per-operation I/O timeout.
	Timeout time.Duration
	// Received is the time the request line was read.
	Received time.Time

	Status Status
	// RejectCode is the response status for a bad request.
	RejectCode int

	// Method is the uppercased request method.
	Method string
	// RequestURI is the raw request target from the request line.
	RequestURI string
	// Proto is the uppercased protocol version.
	Proto string

	// Path is the decoded and cleaned request path, or "*" for an
	// asterisk-form OPTIONS request.
	Path string
	// Query is the raw query string without the leading '?'.
	Query string

	// Host is the normalized Host header value.
	Host string
	// Domain is Host without the port.
	Domain string

	// Header holds request header fields with uppercased names.
	Header *header.Header

	// Body is the in-memory request body. It is only read for methods other
	// than PUT and POST with a Content-Length up to MaxMemoryBody.
	Body []byte
	// ContentLength is the declared body length or -1 if unknown.
	ContentLength int64

	// DocumentRoot and DirectoryIndex are filled by the server and may be
	// rewritten by request hooks.
	DocumentRoot   string
	DirectoryIndex string

	absHost  string
	bodyRead bool
}

// ReadRequest reads and parses a request from the connection. It never
// returns nil; parse failures are reported through the request status.
func ReadRequest(conn *stream.Conn) *Request {
	req := &Request{
		Conn:          conn,
		Timeout:       conn.Timeout(),
		Status:        StatusClosed,
		Header:        header.New(),
		ContentLength: -1,
	}

	line, err := readRequestLine(conn)
	if err != nil {
		if errors.Is(err, stream.ErrLineTooLong) {
			req.reject(StatusRequestURITooLong)
		}
		return req
	}
	req.Received = time.Now()

	if !req.parseRequestLine(line) {
		return req
	}
	if !req.readHeader(conn) {
		return req
	}
	if !req.parseHost() {
		return req
	}
	if !req.readBody(conn) {
		return req
	}

	req.Status = StatusWellFormed
	return req
}

// readRequestLine reads the request line skipping empty lines that some
// clients send after a request body.
func readRequestLine(conn *stream.Conn) (string, error) {
	for i := 0; ; i++ {
		line, err := conn.ReadLine(MaxRequestLine)
		if err != nil {
			return "", err
		}
		if line != "" || i >= 2 {
			return line, nil
		}
	}
}

func (r *Request) reject(code int) bool {
	r.Status = StatusBad
	r.RejectCode = code
	return false
}

func (r *Request) parseRequestLine(line string) bool {
	tokens := strings.Fields(line)
	if len(tokens) != 3 {
		return r.reject(StatusBadRequest)
	}

	r.Method = strings.ToUpper(tokens[0])
	r.RequestURI = tokens[1]
	r.Proto = strings.ToUpper(tokens[2])

	switch r.Proto {
	case HTTP09, HTTP10, HTTP11:
	default:
		return r.reject(StatusBadRequest)
	}

	uri := r.RequestURI
	switch {
	case uri == "*" && r.Method == "OPTIONS":
		r.Path = "*"
		return true
	case strings.HasPrefix(uri, "/"):
	case len(uri) > len("http://") && strings.EqualFold(uri[:len("http://")], "http://"):
		host, path, _ := strings.Cut(uri[len("http://"):], "/")
		if host == "" {
			return r.reject(StatusBadRequest)
		}
		r.absHost = host
		uri = "/" + path
	default:
		return r.reject(StatusBadRequest)
	}

	rawPath, query, _ := strings.Cut(uri, "?")
	r.Query = query

	path, err := DecodePath(rawPath)
	if err != nil || !ValidPath(path) {
		return r.reject(StatusBadRequest)
	}
	r.Path = CleanPath(path)
	return true
}

func (r *Request) readHeader(conn *stream.Conn) bool {
	for {
		line, err := conn.ReadLine(MaxHeaderLine)
		switch {
		case err == nil:
		case stream.IsTimeout(err):
			return r.reject(StatusRequestTimeout)
		case errors.Is(err, stream.ErrLineTooLong):
			return r.reject(StatusBadRequest)
		default:
			r.Status = StatusClosed
			return false
		}
		if line == "" {
			break
		}
		if r.Header.Len() >= MaxHeaderFields {
			return r.reject(StatusBadRequest)
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return r.reject(StatusBadRequest)
		}
		name = strings.ToUpper(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		if !httpguts.ValidHeaderFieldName(name) || !httpguts.ValidHeaderFieldValue(value) {
			return r.reject(StatusBadRequest)
		}
		r.Header.Add(name, value)
	}

	if r.absHost != "" {
		r.Header.Set("HOST", r.absHost)
	}
	return true
}

func (r *Request) parseHost() bool {
	host := strings.ToLower(r.Header.Get("Host"))
	host = strings.TrimSuffix(host, ":80")
	if host == "" || !httpguts.ValidHostHeader(host) {
		return r.reject(StatusBadRequest)
	}
	r.Header.Set("HOST", host)
	r.Host = host

	r.Domain = host
	if h, _, err := net.SplitHostPort(host); err == nil {
		r.Domain = h
	}
	return true
}

func (r *Request) readBody(conn *stream.Conn) bool {
	v, ok := r.Header.Lookup("Content-Length")
	if !ok {
		return true
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return r.reject(StatusBadRequest)
	}
	r.ContentLength = n

	if n == 0 {
		r.bodyRead = true
		return true
	}
	if r.Method == "PUT" || r.Method == "POST" || n > MaxMemoryBody {
		return true
	}

	body := make([]byte, n)
	if _, err := conn.ReadFull(body); err != nil {
		if stream.IsTimeout(err) {
			return r.reject(StatusRequestTimeout)
		}
		return r.reject(StatusBadRequest)
	}
	r.Body = body
	r.bodyRead = true
	return true
}

// Chunked reports whether the request body uses chunked transfer coding.
func (r *Request) Chunked() bool {
	return r.Header.HasToken("Transfer-Encoding", "chunked")
}

// ExpectsContinue reports whether the client waits for a 100 Continue
// interim response before sending the body.
func (r *Request) ExpectsContinue() bool {
	return r.Header.HasToken("Expect", "100-continue")
}

// BodyPending reports whether request body bytes are left unread on the
// connection.
func (r *Request) BodyPending() bool {
	if r.bodyRead {
		return false
	}
	return r.ContentLength > 0 || r.Chunked()
}

// CopyBody copies the request body from the connection to w. A positive
// Content-Length takes precedence over chunked transfer coding, the same way
// the parser reads bodies of other methods. A short transfer is an error.
func (r *Request) CopyBody(w io.Writer) (int64, error) {
	switch {
	case r.bodyRead:
		n, err := w.Write(r.Body)
		return int64(n), err
	case r.Chunked() && r.ContentLength <= 0:
		r.bodyRead = true
		return ReadChunkedBody(r.Conn, w)
	case r.ContentLength >= 0:
		r.bodyRead = true
		n, err := r.Conn.Save(w, r.ContentLength)
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return n, err
	}
	return 0, ErrNoBody
}

// RemoteAddr returns the address of the client.
func (r *Request) RemoteAddr() net.Addr {
	return r.Conn.RemoteAddr()
}
