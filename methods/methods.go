// Package methods implements the HTTP and WebDAV methods served from the
// document root: OPTIONS, HEAD, GET, PUT, PROPFIND, PROPPATCH, MKCOL, MOVE,
// DELETE, LOCK and UNLOCK.
package methods

import (
	"path/filepath"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"go.pact.im/x/qhttpd/config"
	"go.pact.im/x/qhttpd/hook"
	"go.pact.im/x/qhttpd/http1"
)

// Options are the options for a Dispatcher.
type Options struct {
	// Config is the live configuration.
	Config *config.Store

	// Locks is the WebDAV lock table. Defaults to a new table.
	Locks *LockTable

	// Clock is used for Expires headers and lock timeouts. Defaults to the
	// system clock.
	Clock clock.Clock

	// Logger is used to report file system errors. If not set, logs are not
	// written.
	Logger *zap.Logger
}

func (o *Options) setDefaults() {
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Locks == nil {
		o.Locks = NewLockTable(o.Clock)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Dispatcher is the final request handler that selects a method
// implementation. It always returns hook.Handled.
type Dispatcher struct {
	store *config.Store
	locks *LockTable
	clock clock.Clock
	log   *zap.Logger
}

var _ hook.RequestHandler = (*Dispatcher)(nil)

// NewDispatcher returns a new Dispatcher.
func NewDispatcher(o Options) *Dispatcher {
	o.setDefaults()
	return &Dispatcher{
		store: o.Config,
		locks: o.Locks,
		clock: o.Clock,
		log:   o.Logger,
	}
}

// Locks returns the lock table used by the dispatcher.
func (d *Dispatcher) Locks() *LockTable {
	return d.locks
}

// HandleRequest implements the hook.RequestHandler interface.
func (d *Dispatcher) HandleRequest(req *http1.Request, res *http1.Response) hook.Result {
	return hook.Handled{Code: d.dispatch(d.store.Load(), req, res)}
}

func (d *Dispatcher) dispatch(cfg *config.Config, req *http1.Request, res *http1.Response) int {
	m, ok := config.LookupMethod(req.Method)
	if !ok {
		return res.SetSimple(http1.StatusNotImplemented, false, "The requested method is not implemented on this server.")
	}
	if cfg.Methods&m == 0 {
		return res.SetSimple(http1.StatusMethodNotAllowed, false, "The requested method is not allowed on this server.")
	}

	switch m {
	case config.MethodOptions:
		return d.options(cfg, req, res)
	case config.MethodHead, config.MethodGet:
		return d.get(cfg, req, res)
	case config.MethodPut:
		return d.put(req, res)
	case config.MethodPropfind:
		return d.propfind(cfg, req, res)
	case config.MethodProppatch:
		return d.proppatch(req, res)
	case config.MethodMkcol:
		return d.mkcol(req, res)
	case config.MethodMove:
		return d.move(req, res)
	case config.MethodDelete:
		return d.delete(req, res)
	case config.MethodLock:
		return d.lock(req, res)
	case config.MethodUnlock:
		return d.unlock(req, res)
	}
	return res.SetSimple(http1.StatusNotImplemented, false, "The requested method is not implemented on this server.")
}

func (d *Dispatcher) options(cfg *config.Config, req *http1.Request, res *http1.Response) int {
	res.SetStatus(http1.StatusOK, true)
	res.Header.Set("Allow", cfg.Methods.String())
	if cfg.Methods&config.WebDAVMethods != 0 {
		dav := "1"
		if cfg.Methods&config.MethodLock != 0 {
			dav = "1, 2"
		}
		res.Header.Set("DAV", dav)
		res.Header.Set("MS-Author-Via", "DAV")
	}
	res.SetContent("httpd/unix-directory", nil)
	return http1.StatusOK
}

// resolve maps the request path to a file system path under the document
// root.
func resolve(req *http1.Request) string {
	return fsPath(req.DocumentRoot, req.Path)
}

func fsPath(root, p string) string {
	return filepath.Join(root, filepath.FromSlash(p))
}

// locked reports whether any of the paths holds a lock whose token is not
// presented in the If header.
func (d *Dispatcher) locked(req *http1.Request, paths ...string) bool {
	cond := req.Header.Get("If")
	for _, p := range paths {
		if !d.locks.Allowed(p, cond) {
			return true
		}
	}
	return false
}

const (
	msgNotFound  = "The requested URL was not found on this server."
	msgForbidden = "You don't have permission to access this URL."
	msgLocked    = "The resource is locked."
)
