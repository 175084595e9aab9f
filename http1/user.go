package http1

import (
	"encoding/base64"
	"errors"
	"strings"
)

var (
	// ErrNoCredentials is returned by ParseUser if the request has no
	// Authorization header.
	ErrNoCredentials = errors.New("http1: no credentials")

	// ErrDigestUnsupported is returned by ParseUser for Digest credentials.
	ErrDigestUnsupported = errors.New("http1: digest authentication is not supported")

	// ErrMalformedCredentials is returned by ParseUser for credentials that
	// cannot be decoded or use an unknown scheme.
	ErrMalformedCredentials = errors.New("http1: malformed credentials")
)

// User holds credentials from an Authorization header.
type User struct {
	Scheme   string
	Username string
	Password string
}

// ParseUser parses Basic credentials from the request Authorization header.
func ParseUser(req *Request) (*User, error) {
	v := req.Header.Get("Authorization")
	if v == "" {
		return nil, ErrNoCredentials
	}
	scheme, rest, _ := strings.Cut(strings.TrimSpace(v), " ")
	switch {
	case strings.EqualFold(scheme, "Basic"):
	case strings.EqualFold(scheme, "Digest"):
		return nil, ErrDigestUnsupported
	default:
		return nil, ErrMalformedCredentials
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(rest))
	if err != nil {
		return nil, ErrMalformedCredentials
	}
	name, password, ok := strings.Cut(string(raw), ":")
	if !ok {
		return nil, ErrMalformedCredentials
	}
	return &User{
		Scheme:   "Basic",
		Username: name,
		Password: password,
	}, nil
}
