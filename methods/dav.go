package methods

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path"
	"strings"

	"go.uber.org/zap"

	"go.pact.im/x/qhttpd/config"
	"go.pact.im/x/qhttpd/http1"
)

// propfindFlushSize is the amount of buffered multistatus XML that is sent as
// a single chunk.
const propfindFlushSize = 10 * 1024

// readDirBatch is the number of directory entries read at once.
const readDirBatch = 256

const xmlContentType = `text/xml; charset="utf-8"`

// parseDepth parses the Depth header. Only depths 0 and 1 are supported and
// an absent header means 0.
func parseDepth(v string) (int, bool) {
	switch strings.TrimSpace(v) {
	case "", "0":
		return 0, true
	case "1":
		return 1, true
	}
	return 0, false
}

func (d *Dispatcher) propfind(cfg *config.Config, req *http1.Request, res *http1.Response) int {
	depth, ok := parseDepth(req.Header.Get("Depth"))
	if !ok {
		return res.SetSimple(http1.StatusNotImplemented, false, "Only Depth 0 and 1 are supported.")
	}
	name := resolve(req)
	fi, err := os.Stat(name)
	if err != nil {
		return res.SetSimple(http1.StatusNotFound, true, msgNotFound)
	}

	res.SetStatus(http1.StatusMultiStatus, true)
	res.SetChunked(xmlContentType)
	if err := res.Flush(); err != nil {
		return http1.StatusMultiStatus
	}

	w := &chunkWriter{res: res, limit: propfindFlushSize}
	w.WriteString(xmlHeader)
	w.WriteString(`<D:multistatus xmlns:D="DAV:">` + "\n")
	writePropResponse(w, cfg, req.Path, fi)
	if depth == 1 && fi.IsDir() {
		if err := d.propfindChildren(w, cfg, name, req.Path); err != nil {
			d.log.Debug("Directory listing failed", zap.String("path", name), zap.Error(err))
		}
	}
	w.WriteString("</D:multistatus>\n")
	if err := w.Close(); err != nil {
		d.log.Debug("Multistatus write failed", zap.Error(err))
	}
	return http1.StatusMultiStatus
}

func (d *Dispatcher) propfindChildren(w *chunkWriter, cfg *config.Config, dir, href string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	for {
		entries, err := f.ReadDir(readDirBatch)
		for _, e := range entries {
			fi, err := e.Info()
			if err != nil {
				continue
			}
			writePropResponse(w, cfg, path.Join(href, e.Name()), fi)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if w.err != nil {
			return w.err
		}
	}
}

func (d *Dispatcher) proppatch(req *http1.Request, res *http1.Response) int {
	if _, err := os.Lstat(resolve(req)); err != nil {
		return res.SetSimple(http1.StatusNotFound, true, msgNotFound)
	}
	if d.locked(req, req.Path) {
		return res.SetSimple(http1.StatusLocked, false, msgLocked)
	}

	var b bytes.Buffer
	b.WriteString(xmlHeader)
	b.WriteString(`<D:multistatus xmlns:D="DAV:" xmlns:Z="urn:schemas-microsoft-com:">` + "\n")
	b.WriteString("<D:response>\n<D:href>" + escapeHref(req.Path) + "</D:href>\n")
	b.WriteString("<D:propstat>\n<D:prop>")
	b.WriteString("<Z:Win32CreationTime/><Z:Win32LastAccessTime/><Z:Win32LastModifiedTime/><Z:Win32FileAttributes/>")
	b.WriteString("</D:prop>\n<D:status>HTTP/1.1 200 OK</D:status>\n</D:propstat>\n")
	b.WriteString("</D:response>\n</D:multistatus>\n")

	res.SetStatus(http1.StatusMultiStatus, true)
	res.SetContent(xmlContentType, b.Bytes())
	return http1.StatusMultiStatus
}

func (d *Dispatcher) mkcol(req *http1.Request, res *http1.Response) int {
	if d.locked(req, req.Path) {
		return res.SetSimple(http1.StatusLocked, false, msgLocked)
	}
	name := resolve(req)
	if _, err := os.Lstat(name); err == nil {
		return res.SetSimple(http1.StatusForbidden, true, "The resource already exists.")
	}
	if err := os.Mkdir(name, 0o755); err != nil {
		d.log.Debug("Mkdir failed", zap.String("path", name), zap.Error(err))
		return res.SetSimple(http1.StatusInternalServerError, true, "The collection could not be created.")
	}
	return res.SetSimple(http1.StatusCreated, true, "")
}

func (d *Dispatcher) move(req *http1.Request, res *http1.Response) int {
	dst, ok := destinationPath(req.Header.Get("Destination"))
	if !ok || dst == "/" || req.Path == "/" {
		return res.SetSimple(http1.StatusBadRequest, true, "The destination is missing or invalid.")
	}
	src := resolve(req)
	if _, err := os.Lstat(src); err != nil {
		return res.SetSimple(http1.StatusNotFound, true, msgNotFound)
	}
	if d.locked(req, req.Path, dst) {
		return res.SetSimple(http1.StatusLocked, false, msgLocked)
	}

	target := fsPath(req.DocumentRoot, dst)
	if err := os.Rename(src, target); err != nil {
		d.log.Debug("Rename failed",
			zap.String("path", src),
			zap.String("destination", target),
			zap.Error(err),
		)
		return res.SetSimple(http1.StatusInternalServerError, true, "The resource could not be moved.")
	}
	d.locks.Forget(req.Path)
	return res.SetSimple(http1.StatusCreated, true, "")
}

// destinationPath extracts the cleaned path from a Destination header that
// is either an absolute URL or an absolute path.
func destinationPath(v string) (string, bool) {
	v = strings.TrimSpace(v)
	for _, scheme := range []string{"http://", "https://"} {
		if len(v) > len(scheme) && strings.EqualFold(v[:len(scheme)], scheme) {
			_, rest, _ := strings.Cut(v[len(scheme):], "/")
			v = "/" + rest
			break
		}
	}
	if !strings.HasPrefix(v, "/") {
		return "", false
	}
	v, _, _ = strings.Cut(v, "?")
	p, err := http1.DecodePath(v)
	if err != nil || !http1.ValidPath(p) {
		return "", false
	}
	return http1.CleanPath(p), true
}

func (d *Dispatcher) delete(req *http1.Request, res *http1.Response) int {
	if req.Path == "/" {
		return res.SetSimple(http1.StatusForbidden, true, msgForbidden)
	}
	name := resolve(req)
	if _, err := os.Lstat(name); err != nil {
		return res.SetSimple(http1.StatusNotFound, true, msgNotFound)
	}
	if d.locked(req, req.Path) {
		return res.SetSimple(http1.StatusLocked, false, msgLocked)
	}
	if err := os.Remove(name); err != nil {
		d.log.Debug("Remove failed", zap.String("path", name), zap.Error(err))
		return res.SetSimple(http1.StatusForbidden, true, msgForbidden)
	}
	d.locks.Forget(req.Path)
	return res.SetSimple(http1.StatusNoContent, true, "")
}

// chunkWriter buffers output and sends it as chunks of at least limit bytes.
// The first error is sticky.
type chunkWriter struct {
	res   *http1.Response
	limit int
	buf   bytes.Buffer
	err   error
}

func (w *chunkWriter) WriteString(s string) {
	if w.err != nil {
		return
	}
	w.buf.WriteString(s)
	if w.buf.Len() >= w.limit {
		w.flush()
	}
}

func (w *chunkWriter) flush() {
	if w.err != nil || w.buf.Len() == 0 {
		return
	}
	w.err = w.res.WriteChunk(w.buf.Bytes())
	w.buf.Reset()
}

// Close sends the buffered output and the terminal chunk.
func (w *chunkWriter) Close() error {
	w.flush()
	if w.err == nil {
		w.err = w.res.WriteChunk(nil)
	}
	return w.err
}
