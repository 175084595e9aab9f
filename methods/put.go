package methods

import (
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"go.pact.im/x/qhttpd/http1"
)

// put stores the request body at the request path, replacing an existing
// file.
func (d *Dispatcher) put(req *http1.Request, res *http1.Response) int {
	if req.ContentLength < 0 && !req.Chunked() {
		return res.SetSimple(http1.StatusBadRequest, false, "The request body length is not specified.")
	}
	if d.locked(req, req.Path) {
		return res.SetSimple(http1.StatusLocked, false, msgLocked)
	}

	name := resolve(req)
	if fi, err := os.Stat(name); err == nil && fi.IsDir() {
		return res.SetSimple(http1.StatusForbidden, false, msgForbidden)
	}
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		d.log.Debug("Create failed", zap.String("path", name), zap.Error(err))
		return res.SetSimple(http1.StatusForbidden, false, msgForbidden)
	}

	if req.ExpectsContinue() && req.BodyPending() {
		if err := res.WriteContinue(); err != nil {
			_ = f.Close()
			return res.SetSimple(http1.StatusBadRequest, false, "")
		}
	}

	n, err := req.CopyBody(f)
	err = multierr.Append(err, f.Close())
	if err != nil {
		d.log.Debug("Upload failed",
			zap.String("path", name),
			zap.Int64("received", n),
			zap.Error(err),
		)
		return res.SetSimple(http1.StatusBadRequest, false, "The request body could not be stored.")
	}
	return res.SetSimple(http1.StatusCreated, true, "")
}
