package http1

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"
)

// ETag returns a strong entity tag for a file identified by the request path,
// size and modification time. The tag is not quoted.
func ETag(path string, size int64, modTime time.Time) string {
	h := fnv.New32()
	_, _ = h.Write([]byte(path))
	return fmt.Sprintf("%08x-%08x-%08x", h.Sum32(), uint32(size), uint32(modTime.Unix()))
}

// UnquoteETag strips surrounding double quotes from an entity tag.
func UnquoteETag(tag string) string {
	tag = strings.TrimSpace(tag)
	if len(tag) >= 2 && tag[0] == '"' && tag[len(tag)-1] == '"' {
		return tag[1 : len(tag)-1]
	}
	return tag
}
