package http1

import (
	"regexp"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestParseRange(t *testing.T) {
	testCases := []struct {
		value      string
		start, end int64
		ok         bool
	}{
		{"bytes=0-99", 0, 99, true},
		{"bytes=100-", 100, 999, true},
		{"bytes=-100", 900, 999, true},
		{"bytes=-5000", 0, 999, true},
		{"bytes=990-5000", 990, 999, true},
		{" bytes= 5 - 9 ", 5, 9, true},
		{"bytes=5000-6000", 0, 0, false},
		{"bytes=99-0", 0, 0, false},
		{"bytes=0-1,5-6", 0, 0, false},
		{"bytes=-", 0, 0, false},
		{"bytes=a-b", 0, 0, false},
		{"bytes=5", 0, 0, false},
		{"items=0-5", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tc := range testCases {
		t.Run(tc.value, func(t *testing.T) {
			start, end, ok := ParseRange(tc.value, 1000)
			assert.Equal(t, ok, tc.ok)
			if ok {
				assert.Equal(t, start, tc.start)
				assert.Equal(t, end, tc.end)
			}
		})
	}

	_, _, ok := ParseRange("bytes=0-", 0)
	assert.Assert(t, !ok)
}

func TestETag(t *testing.T) {
	mtime := time.Unix(1700000000, 0)
	tag := ETag("/index.html", 1000, mtime)
	assert.Assert(t, regexp.MustCompile(`^[0-9a-f]{8}-000003e8-6553f100$`).MatchString(tag), tag)
	assert.Assert(t, tag != ETag("/other.html", 1000, mtime))
	assert.Assert(t, tag != ETag("/index.html", 1001, mtime))

	assert.Equal(t, UnquoteETag(`"`+tag+`"`), tag)
	assert.Equal(t, UnquoteETag(tag), tag)
}

func TestParseUser(t *testing.T) {
	req := readTestRequest("GET / HTTP/1.1\r\nHost: x\r\nAuthorization: Basic dXNlcjpwYTpzcw==\r\n\r\n")
	u, err := ParseUser(req)
	assert.NilError(t, err)
	assert.Equal(t, *u, User{Scheme: "Basic", Username: "user", Password: "pa:ss"})

	req = readTestRequest("GET / HTTP/1.1\r\nHost: x\r\nAuthorization: Digest username=\"u\"\r\n\r\n")
	_, err = ParseUser(req)
	assert.ErrorIs(t, err, ErrDigestUnsupported)

	req = readTestRequest("GET / HTTP/1.1\r\nHost: x\r\nAuthorization: Basic !!!\r\n\r\n")
	_, err = ParseUser(req)
	assert.ErrorIs(t, err, ErrMalformedCredentials)

	req = readTestRequest("GET / HTTP/1.1\r\nHost: x\r\n\r\n")
	_, err = ParseUser(req)
	assert.ErrorIs(t, err, ErrNoCredentials)
}
