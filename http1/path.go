package http1

import (
	"net/url"
	"strings"
)

// forbiddenPathChars are the characters that must not appear in a decoded
// request path.
const forbiddenPathChars = "\\:*?\"<>|\x00"

// DecodePath percent-decodes a request path. Unlike query strings, '+' is
// kept as is.
func DecodePath(raw string) (string, error) {
	return url.PathUnescape(raw)
}

// ValidPath reports whether the decoded path is absolute, contains no
// forbidden characters, no parent directory references and no overly long
// segments.
func ValidPath(p string) bool {
	if p == "" || p[0] != '/' {
		return false
	}
	if strings.ContainsAny(p, forbiddenPathChars) {
		return false
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." || len(seg) > MaxPathSegment {
			return false
		}
	}
	return true
}

// CleanPath trims surrounding whitespace, collapses repeated slashes and
// removes the trailing slash. The root path is returned as "/".
func CleanPath(p string) string {
	p = strings.TrimSpace(p)

	var b strings.Builder
	b.Grow(len(p))
	slash := false
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c == '/' {
			if slash {
				continue
			}
			slash = true
		} else {
			slash = false
		}
		b.WriteByte(c)
	}

	s := b.String()
	if len(s) > 1 {
		s = strings.TrimSuffix(s, "/")
	}
	if s == "" {
		return "/"
	}
	return s
}
