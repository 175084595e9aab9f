package http1

import (
	"strconv"
	"strings"
)

// ParseRange parses a single byte range from a Range header value for a
// resource of the given size. It returns the inclusive span and false if the
// value is absent, uses another unit, lists several ranges or does not
// describe a satisfiable span.
func ParseRange(value string, size int64) (start, end int64, ok bool) {
	rng, found := strings.CutPrefix(strings.TrimSpace(value), "bytes=")
	if !found || strings.Contains(rng, ",") {
		return 0, 0, false
	}
	first, last, found := strings.Cut(strings.TrimSpace(rng), "-")
	if !found {
		return 0, 0, false
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)

	switch {
	case first == "" && last == "":
		return 0, 0, false
	case first == "":
		// Suffix range: the last n bytes.
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 || size <= 0 {
			return 0, 0, false
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, true
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false
	}
	end = size - 1
	if last != "" {
		end, err = strconv.ParseInt(last, 10, 64)
		if err != nil {
			return 0, 0, false
		}
	}
	if start > end || start >= size {
		return 0, 0, false
	}
	if end >= size {
		end = size - 1
	}
	return start, end, true
}
