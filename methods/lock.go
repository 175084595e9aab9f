package methods

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"go.pact.im/x/qhttpd/http1"
)

type lockInfo struct {
	XMLName   xml.Name `xml:"DAV: lockinfo"`
	LockScope struct {
		Exclusive *struct{} `xml:"DAV: exclusive"`
		Shared    *struct{} `xml:"DAV: shared"`
	} `xml:"DAV: lockscope"`
	LockType struct {
		Write *struct{} `xml:"DAV: write"`
	} `xml:"DAV: locktype"`
	Owner struct {
		InnerXML string `xml:",innerxml"`
	} `xml:"DAV: owner"`
}

func parseLockInfo(body []byte) (*lockInfo, error) {
	var li lockInfo
	if err := xml.Unmarshal(body, &li); err != nil {
		return nil, err
	}
	if li.LockType.Write == nil {
		return nil, errors.New("unsupported lock type")
	}
	if (li.LockScope.Exclusive == nil) == (li.LockScope.Shared == nil) {
		return nil, errors.New("lock scope must be either exclusive or shared")
	}
	return &li, nil
}

// lock creates a lock or, for a request without a body, refreshes the lock
// named in the If header.
func (d *Dispatcher) lock(req *http1.Request, res *http1.Response) int {
	timeout := ParseTimeout(req.Header.Get("Timeout"))

	if len(req.Body) == 0 {
		l, ok := d.locks.Refresh(req.Path, req.Header.Get("If"), timeout)
		if !ok {
			return res.SetSimple(http1.StatusBadRequest, false, "The lock request is missing lockinfo.")
		}
		return d.writeLockDiscovery(res, l)
	}

	li, err := parseLockInfo(req.Body)
	if err != nil {
		d.log.Debug("Invalid lockinfo", zap.Error(err))
		return res.SetSimple(http1.StatusBadRequest, false, "The lockinfo is invalid.")
	}
	l, err := d.locks.Acquire(req.Path, li.LockScope.Exclusive != nil, li.Owner.InnerXML, timeout)
	switch {
	case errors.Is(err, ErrLocked):
		return res.SetSimple(http1.StatusLocked, true, msgLocked)
	case err != nil:
		d.log.Error("Lock failed", zap.Error(err))
		return res.SetSimple(http1.StatusInternalServerError, false, "The lock could not be created.")
	}
	res.Header.Set("Lock-Token", "<"+l.Token+">")
	return d.writeLockDiscovery(res, l)
}

// writeLockDiscovery answers with the active lock. Locks cover the exact
// path only, so the reported depth is always 0.
func (d *Dispatcher) writeLockDiscovery(res *http1.Response, l *Lock) int {
	scope := "<D:shared/>"
	if l.Exclusive {
		scope = "<D:exclusive/>"
	}

	var b bytes.Buffer
	b.WriteString(xmlHeader)
	b.WriteString(`<D:prop xmlns:D="DAV:">` + "\n<D:lockdiscovery>\n<D:activelock>\n")
	b.WriteString("<D:locktype><D:write/></D:locktype>\n")
	b.WriteString("<D:lockscope>" + scope + "</D:lockscope>\n")
	b.WriteString("<D:depth>0</D:depth>\n")
	if l.Owner != "" {
		b.WriteString("<D:owner>" + l.Owner + "</D:owner>\n")
	}
	b.WriteString("<D:timeout>Second-" + strconv.FormatInt(int64(l.Timeout/time.Second), 10) + "</D:timeout>\n")
	b.WriteString("<D:locktoken><D:href>" + l.Token + "</D:href></D:locktoken>\n")
	b.WriteString("<D:lockroot><D:href>" + escapeHref(l.Path) + "</D:href></D:lockroot>\n")
	b.WriteString("</D:activelock>\n</D:lockdiscovery>\n</D:prop>\n")

	res.SetStatus(http1.StatusOK, true)
	res.SetContent(xmlContentType, b.Bytes())
	return http1.StatusOK
}

// unlock releases the lock named in the Lock-Token header. Unknown tokens
// are ignored.
func (d *Dispatcher) unlock(req *http1.Request, res *http1.Response) int {
	token := strings.TrimSpace(req.Header.Get("Lock-Token"))
	token = strings.TrimSuffix(strings.TrimPrefix(token, "<"), ">")
	if token != "" && !d.locks.Release(req.Path, token) {
		d.log.Debug("Unlock of unknown token",
			zap.String("path", req.Path),
			zap.String("token", token),
		)
	}
	return res.SetSimple(http1.StatusNoContent, true, "")
}
