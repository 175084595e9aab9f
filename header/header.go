// Package header implements an ordered collection of HTTP header fields with
// case-insensitive field name lookup.
package header

import (
	"strings"

	"golang.org/x/net/http/httpguts"
)

// Field is a single header field.
type Field struct {
	Name  string
	Value string
}

// Header is an ordered list of header fields. Field names are compared
// case-insensitively and keep the case they were added with. The zero value
// is an empty header ready to use.
type Header struct {
	fields []Field
}

// New returns an empty Header.
func New() *Header {
	return &Header{}
}

// Len returns the number of fields.
func (h *Header) Len() int {
	return len(h.fields)
}

// Get returns the value of the first field with the given name or an empty
// string if there is none.
func (h *Header) Get(name string) string {
	v, _ := h.Lookup(name)
	return v
}

// Lookup returns the value of the first field with the given name.
func (h *Header) Lookup(name string) (string, bool) {
	if i := h.index(name); i >= 0 {
		return h.fields[i].Value, true
	}
	return "", false
}

// Has reports whether a field with the given name exists.
func (h *Header) Has(name string) bool {
	return h.index(name) >= 0
}

// Values returns the values of all fields with the given name in order.
func (h *Header) Values(name string) []string {
	var values []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			values = append(values, f.Value)
		}
	}
	return values
}

// Add appends a field.
func (h *Header) Add(name, value string) {
	h.fields = append(h.fields, Field{name, value})
}

// Set replaces the value of the first field with the given name and removes
// the others. If there is no such field, it is appended.
func (h *Header) Set(name, value string) {
	i := h.index(name)
	if i < 0 {
		h.Add(name, value)
		return
	}
	h.fields[i] = Field{name, value}
	h.deleteFrom(i+1, name)
}

// Del removes all fields with the given name and returns the number of
// removed fields.
func (h *Header) Del(name string) int {
	n := len(h.fields)
	h.deleteFrom(0, name)
	return n - len(h.fields)
}

// HasToken reports whether any field with the given name contains token in
// its comma-separated value list. Tokens are compared case-insensitively.
func (h *Header) HasToken(name, token string) bool {
	return httpguts.HeaderValuesContainsToken(h.Values(name), token)
}

// Each calls fn for each field in order until fn returns false.
func (h *Header) Each(fn func(name, value string) bool) {
	for _, f := range h.fields {
		if !fn(f.Name, f.Value) {
			return
		}
	}
}

// Fields returns a copy of all fields in order.
func (h *Header) Fields() []Field {
	return append([]Field(nil), h.fields...)
}

func (h *Header) index(name string) int {
	for i, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return i
		}
	}
	return -1
}

func (h *Header) deleteFrom(start int, name string) {
	j := start
	for i := start; i < len(h.fields); i++ {
		if strings.EqualFold(h.fields[i].Name, name) {
			continue
		}
		h.fields[j] = h.fields[i]
		j++
	}
	clear(h.fields[j:])
	h.fields = h.fields[:j]
}
