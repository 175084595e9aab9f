// Package http1 implements the HTTP/0.9–1.1 message model for a file server:
// request parsing off a raw connection, response framing (fixed length,
// chunked and byte ranges) and decoding of chunked request bodies.
//
// Unlike net/http, the package exposes the request/response cycle to the
// caller. The caller reads a Request, builds a Response for it and decides
// whether to keep the connection alive based on the flushed response.
package http1

import (
	"strings"
	"time"
)

const (
	// MaxRequestLine is the maximum length of the request line. Longer
	// request lines are rejected with 414.
	MaxRequestLine = 4096

	// MaxHeaderLine is the maximum length of a single header line.
	MaxHeaderLine = 8192

	// MaxHeaderFields is the maximum number of header fields in a request.
	MaxHeaderFields = 128

	// MaxMemoryBody is the maximum length of a request body that is read
	// into memory by ReadRequest. PUT and POST bodies are never read into
	// memory.
	MaxMemoryBody = 1 << 20

	// MaxPathSegment is the maximum length of a single path segment.
	MaxPathSegment = 255

	// DefaultKeepAliveTimeout is the idle timeout advertised in the
	// Keep-Alive response header when none is configured.
	DefaultKeepAliveTimeout = 15 * time.Second
)

// Protocol versions accepted by ReadRequest.
const (
	HTTP09 = "HTTP/0.9"
	HTTP10 = "HTTP/1.0"
	HTTP11 = "HTTP/1.1"
)

// TimeFormat is the time format used in HTTP headers.
const TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// ParseTime parses an HTTP date in any of the three formats allowed by
// RFC 9110.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var err error
	for _, layout := range []string{TimeFormat, time.RFC850, time.ANSIC} {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}
