// Package mimetype maps file name extensions to media types using a table
// file with one "ext = type" entry per line.
package mimetype

import (
	"bufio"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"strings"
)

// Default is the media type for files with an unknown extension.
const Default = "application/octet-stream"

// Table maps lowercase extensions without the leading dot to media types. A
// nil Table is valid and only uses the fallbacks.
type Table map[string]string

// Load reads a table file. Empty lines and lines starting with '#' are
// ignored.
func Load(name string) (Table, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a table from r.
func Parse(r io.Reader) (Table, error) {
	t := make(Table)
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		ext, typ, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("line %d: missing '='", n)
		}
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		typ = strings.TrimSpace(typ)
		if ext == "" || typ == "" {
			return nil, fmt.Errorf("line %d: empty extension or type", n)
		}
		t[ext] = typ
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// Lookup returns the media type for the file name. Extensions missing from
// the table fall back to the system MIME database and then to Default.
func (t Table) Lookup(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if ext == "" {
		return Default
	}
	if typ, ok := t[ext]; ok {
		return typ
	}
	if typ := mime.TypeByExtension("." + ext); typ != "" {
		return typ
	}
	return Default
}
