package http1

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"go.pact.im/x/qhttpd/stream"
)

// maxChunkSizeDigits limits chunk size lines so that the size fits in int64.
const maxChunkSizeDigits = 15

var (
	// ErrInvalidChunkSize is returned for a chunk size line that is not a
	// hexadecimal number.
	ErrInvalidChunkSize = errors.New("http1: invalid chunk size")

	// ErrMalformedChunk is returned when chunk data is not followed by CRLF.
	ErrMalformedChunk = errors.New("http1: malformed chunk")
)

// ParseChunkSize parses a chunk size line. Chunk extensions after ';' are
// ignored. Any other non-hexadecimal input, including signs and empty
// strings, is rejected.
func ParseChunkSize(line string) (int64, error) {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimRight(line, " \t")
	if line == "" || len(line) > maxChunkSizeDigits {
		return 0, ErrInvalidChunkSize
	}

	var n int64
	for i := 0; i < len(line); i++ {
		var d byte
		switch c := line[i]; {
		case c >= '0' && c <= '9':
			d = c - '0'
		case c >= 'a' && c <= 'f':
			d = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			d = c - 'A' + 10
		default:
			return 0, ErrInvalidChunkSize
		}
		n = n<<4 | int64(d)
	}
	return n, nil
}

// ReadChunkedBody decodes a chunked body from the connection and writes the
// payload to w. It consumes the terminal chunk and any trailer fields.
func ReadChunkedBody(conn *stream.Conn, w io.Writer) (int64, error) {
	var total int64
	for {
		line, err := conn.ReadLine(MaxHeaderLine)
		if err != nil {
			return total, err
		}
		size, err := ParseChunkSize(line)
		if err != nil {
			return total, fmt.Errorf("%w: %q", err, line)
		}

		if size == 0 {
			for {
				trailer, err := conn.ReadLine(MaxHeaderLine)
				if err != nil {
					return total, err
				}
				if trailer == "" {
					return total, nil
				}
			}
		}

		n, err := conn.Save(w, size)
		total += n
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return total, err
		}

		crlf, err := conn.ReadLine(0)
		if err != nil {
			return total, err
		}
		if crlf != "" {
			return total, ErrMalformedChunk
		}
	}
}

// chunkHeader returns the chunk size line for a chunk of n bytes.
func chunkHeader(n int) []byte {
	return []byte(fmt.Sprintf("%x\r\n", n))
}
