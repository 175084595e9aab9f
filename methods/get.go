package methods

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"go.pact.im/x/qhttpd/config"
	"go.pact.im/x/qhttpd/http1"
)

// get serves GET and HEAD. Directories are replaced with their index file if
// one is configured.
func (d *Dispatcher) get(cfg *config.Config, req *http1.Request, res *http1.Response) int {
	name := resolve(req)
	fi, err := os.Stat(name)
	if err != nil {
		return res.SetSimple(http1.StatusNotFound, true, msgNotFound)
	}
	if fi.IsDir() && req.DirectoryIndex != "" {
		name = filepath.Join(name, req.DirectoryIndex)
		if fi, err = os.Stat(name); err != nil {
			return res.SetSimple(http1.StatusNotFound, true, msgNotFound)
		}
	}
	if !fi.Mode().IsRegular() {
		return res.SetSimple(http1.StatusForbidden, true, msgForbidden)
	}

	etag := http1.ETag(req.Path, fi.Size(), fi.ModTime())
	if notModified(req, etag, fi.ModTime()) {
		res.SetStatus(http1.StatusNotModified, true)
		d.setValidators(cfg, res, etag, fi.ModTime())
		return http1.StatusNotModified
	}

	f, err := os.Open(name)
	if err != nil {
		d.log.Debug("Open failed", zap.String("path", name), zap.Error(err))
		return res.SetSimple(http1.StatusForbidden, true, msgForbidden)
	}
	defer f.Close()

	size := fi.Size()
	start, end, partial := int64(0), size-1, false
	if v, ok := req.Header.Lookup("Range"); ok && req.Method == "GET" {
		if s, e, ok := http1.ParseRange(v, size); ok {
			start, end, partial = s, e, true
		}
	}
	if start > 0 {
		if _, err := f.Seek(start, io.SeekStart); err != nil {
			d.log.Warn("Seek failed", zap.String("path", name), zap.Error(err))
			return res.SetSimple(http1.StatusInternalServerError, false, "The file could not be read.")
		}
	}

	code := http1.StatusOK
	if partial {
		code = http1.StatusPartialContent
		res.Header.Set("Content-Range", "bytes "+strconv.FormatInt(start, 10)+"-"+
			strconv.FormatInt(end, 10)+"/"+strconv.FormatInt(size, 10))
	}
	n := end - start + 1

	res.SetStatus(code, true)
	res.Header.Set("Accept-Ranges", "bytes")
	d.setValidators(cfg, res, etag, fi.ModTime())
	res.SetContentLength(cfg.MimeTypes.Lookup(name), n)
	if err := res.Flush(); err != nil {
		return code
	}
	if n > 0 {
		if sent, err := res.SendBody(f, n); err != nil {
			d.log.Warn("Failed to send file",
				zap.String("path", name),
				zap.Int64("sent", sent),
				zap.Int64("size", n),
				zap.Error(err),
			)
		}
	}
	return code
}

// setValidators sets Last-Modified, ETag and, if configured, the caching
// headers.
func (d *Dispatcher) setValidators(cfg *config.Config, res *http1.Response, etag string, modTime time.Time) {
	res.Header.Set("Last-Modified", modTime.UTC().Format(http1.TimeFormat))
	res.Header.Set("ETag", `"`+etag+`"`)
	if cfg.ResponseExpires > 0 {
		res.Header.Set("Cache-Control", "max-age="+strconv.FormatInt(int64(cfg.ResponseExpires/time.Second), 10))
		res.Header.Set("Expires", d.clock.Now().Add(cfg.ResponseExpires).UTC().Format(http1.TimeFormat))
	}
}

// notModified evaluates the conditional request headers. If-None-Match takes
// precedence over If-Modified-Since.
func notModified(req *http1.Request, etag string, modTime time.Time) bool {
	if inm, ok := req.Header.Lookup("If-None-Match"); ok {
		for _, tag := range strings.Split(inm, ",") {
			tag = strings.TrimPrefix(strings.TrimSpace(tag), "W/")
			if tag == "*" || http1.UnquoteETag(tag) == etag {
				return true
			}
		}
		return false
	}
	if ims, ok := req.Header.Lookup("If-Modified-Since"); ok {
		t, err := http1.ParseTime(ims)
		if err != nil {
			return false
		}
		return !modTime.Truncate(time.Second).After(t)
	}
	return false
}
