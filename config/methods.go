package config

import (
	"fmt"
	"strings"
)

// Methods is a set of enabled request methods.
type Methods uint16

// Known request methods.
const (
	MethodOptions Methods = 1 << iota
	MethodHead
	MethodGet
	MethodPut
	MethodPropfind
	MethodProppatch
	MethodMkcol
	MethodMove
	MethodDelete
	MethodLock
	MethodUnlock

	// AllMethods enables every known method.
	AllMethods = MethodOptions | MethodHead | MethodGet | MethodPut |
		MethodPropfind | MethodProppatch | MethodMkcol | MethodMove |
		MethodDelete | MethodLock | MethodUnlock

	// WebDAVMethods are the WebDAV extension methods.
	WebDAVMethods = MethodPropfind | MethodProppatch | MethodMkcol |
		MethodMove | MethodDelete | MethodLock | MethodUnlock
)

// methodNames lists method names in the order used by String.
var methodNames = []struct {
	m    Methods
	name string
}{
	{MethodOptions, "OPTIONS"},
	{MethodHead, "HEAD"},
	{MethodGet, "GET"},
	{MethodPut, "PUT"},
	{MethodPropfind, "PROPFIND"},
	{MethodProppatch, "PROPPATCH"},
	{MethodMkcol, "MKCOL"},
	{MethodMove, "MOVE"},
	{MethodDelete, "DELETE"},
	{MethodLock, "LOCK"},
	{MethodUnlock, "UNLOCK"},
}

// LookupMethod returns the set bit for a method name. Names are
// case-sensitive and uppercase.
func LookupMethod(name string) (Methods, bool) {
	for _, v := range methodNames {
		if v.name == name {
			return v.m, true
		}
	}
	return 0, false
}

// ParseMethods parses a comma or space separated list of method names. The
// special name ALL enables every known method.
func ParseMethods(s string) (Methods, error) {
	var set Methods
	fields := strings.FieldsFunc(strings.ToUpper(s), func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	for _, name := range fields {
		if name == "ALL" {
			set |= AllMethods
			continue
		}
		m, ok := LookupMethod(name)
		if !ok {
			return 0, fmt.Errorf("unknown method %q", name)
		}
		set |= m
	}
	return set, nil
}

// Allows reports whether the named method is enabled.
func (s Methods) Allows(name string) bool {
	m, ok := LookupMethod(name)
	return ok && s&m != 0
}

// Names returns the enabled method names in canonical order.
func (s Methods) Names() []string {
	var names []string
	for _, v := range methodNames {
		if s&v.m != 0 {
			names = append(names, v.name)
		}
	}
	return names
}

// String returns the enabled methods as an Allow header value.
func (s Methods) String() string {
	return strings.Join(s.Names(), ", ")
}
