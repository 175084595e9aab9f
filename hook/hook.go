// Package hook defines the extension points of the server: an ordered chain
// of request handlers, response rewriting hooks and lifecycle notifications.
package hook

import (
	"context"
	"net"

	"go.pact.im/x/qhttpd/config"
	"go.pact.im/x/qhttpd/http1"
)

// Result is the outcome of a RequestHandler. It is either Handled or
// Continue.
type Result interface {
	result()
}

// Handled means that the handler has set up the response. Code is the
// response status code.
type Handled struct {
	Code int
}

// Continue passes the request to the next handler in the chain.
type Continue struct{}

func (Handled) result()  {}
func (Continue) result() {}

// RequestHandler handles a well-formed request.
type RequestHandler interface {
	HandleRequest(req *http1.Request, res *http1.Response) Result
}

// RequestHandlerFunc is an adapter to use ordinary functions as request
// handlers.
type RequestHandlerFunc func(req *http1.Request, res *http1.Response) Result

// HandleRequest implements the RequestHandler interface.
func (f RequestHandlerFunc) HandleRequest(req *http1.Request, res *http1.Response) Result {
	return f(req, res)
}

// Chain runs handlers in order and stops at the first one that returns
// Handled.
type Chain []RequestHandler

// HandleRequest implements the RequestHandler interface.
func (c Chain) HandleRequest(req *http1.Request, res *http1.Response) Result {
	for _, h := range c {
		if r, ok := h.HandleRequest(req, res).(Handled); ok {
			return r
		}
	}
	return Continue{}
}

// ResponseHook may modify a response right before it is written.
type ResponseHook func(req *http1.Request, res *http1.Response)

// ResponseHooks runs hooks in order.
type ResponseHooks []ResponseHook

// Rewrite calls every hook.
func (hs ResponseHooks) Rewrite(req *http1.Request, res *http1.Response) {
	for _, h := range hs {
		h(req, res)
	}
}

// Lifecycle is notified at server lifecycle milestones.
type Lifecycle interface {
	// AfterSupervisorInit is called once the supervisor is ready to launch
	// workers. An error aborts the startup.
	AfterSupervisorInit(ctx context.Context) error

	// WhileSupervisorIdle is called periodically by the supervisor.
	WhileSupervisorIdle(ctx context.Context)

	// BeforeSupervisorExit is called after all workers have stopped.
	BeforeSupervisorExit(ctx context.Context)

	// AfterConfigLoaded is called for every configuration loaded on
	// reload. An error rejects the configuration.
	AfterConfigLoaded(c *config.Config) error

	// AfterConfigReload is called after a new configuration is published.
	AfterConfigReload(c *config.Config)

	// AfterWorkerInit is called when a worker has registered. An error
	// makes the worker exit.
	AfterWorkerInit(ctx context.Context, worker int64) error

	// BeforeWorkerExit is called before a worker deregisters.
	BeforeWorkerExit(worker int64)

	// AfterConnEstablished is called for every accepted connection.
	// Returning false closes the connection without serving it.
	AfterConnEstablished(conn net.Conn) bool
}

// Nop is a Lifecycle that does nothing. Embed it to implement a subset of
// the methods.
type Nop struct{}

var _ Lifecycle = Nop{}

// AfterSupervisorInit implements the Lifecycle interface.
func (Nop) AfterSupervisorInit(context.Context) error { return nil }

// WhileSupervisorIdle implements the Lifecycle interface.
func (Nop) WhileSupervisorIdle(context.Context) {}

// BeforeSupervisorExit implements the Lifecycle interface.
func (Nop) BeforeSupervisorExit(context.Context) {}

// AfterConfigLoaded implements the Lifecycle interface.
func (Nop) AfterConfigLoaded(*config.Config) error { return nil }

// AfterConfigReload implements the Lifecycle interface.
func (Nop) AfterConfigReload(*config.Config) {}

// AfterWorkerInit implements the Lifecycle interface.
func (Nop) AfterWorkerInit(context.Context, int64) error { return nil }

// BeforeWorkerExit implements the Lifecycle interface.
func (Nop) BeforeWorkerExit(int64) {}

// AfterConnEstablished implements the Lifecycle interface.
func (Nop) AfterConnEstablished(net.Conn) bool { return true }
