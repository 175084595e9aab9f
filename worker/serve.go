package worker

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"go.pact.im/x/qhttpd/config"
	"go.pact.im/x/qhttpd/hook"
	"go.pact.im/x/qhttpd/http1"
	"go.pact.im/x/qhttpd/stream"
)

var rejectMessages = map[int]string{
	http1.StatusBadRequest:        "Your browser sent a request that this server could not understand.",
	http1.StatusRequestTimeout:    "The server timed out waiting for the request.",
	http1.StatusRequestURITooLong: "The requested URL's length exceeds the capacity limit for this server.",
}

// serve runs the keep-alive request loop on the connection.
func (w *Worker) serve(ctx context.Context, conn *stream.Conn) {
	for n := 1; ; n++ {
		cfg := w.store.Load()
		conn.SetTimeout(cfg.ConnectionTimeout)

		req := http1.ReadRequest(conn)
		if req.Status == http1.StatusClosed {
			return
		}
		w.requests++
		w.reg.ConnRequest(w.slot, requestLine(req), req.Received)

		last := cfg.MaxKeepAliveRequests > 0 && n >= cfg.MaxKeepAliveRequests
		res := http1.NewResponse(conn, req, &http1.ResponseOptions{
			KeepAlive:        cfg.EnableKeepAlive,
			KeepAliveTimeout: cfg.ConnectionTimeout,
			ServerName:       w.serverName,
			Rewrite: func(res *http1.Response) {
				w.rewrite.Rewrite(req, res)
			},
			Closing: func() bool {
				return last || w.closing(ctx, cfg)
			},
			Logger: w.log,
		})

		if req.Status == http1.StatusBad {
			res.SetSimple(req.RejectCode, false, rejectMessages[req.RejectCode])
		} else {
			w.handle(cfg, req, res)
		}
		if !res.Flushed() {
			if err := res.Flush(); err != nil {
				w.log.Debug("Failed to write response", zap.Error(err))
			}
		}

		w.reg.ConnResponse(w.slot, res.Code)
		w.logAccess(req, res)

		if res.Failed() || !res.KeepAlive() {
			return
		}
	}
}

func (w *Worker) handle(cfg *config.Config, req *http1.Request, res *http1.Response) {
	req.DocumentRoot = cfg.DocumentRoot
	req.DirectoryIndex = cfg.DirectoryIndex

	if _, ok := w.handler.HandleRequest(req, res).(hook.Handled); !ok && !res.Flushed() {
		res.SetSimple(http1.StatusNotImplemented, false, "No handler accepted the request.")
	}
}

func requestLine(req *http1.Request) string {
	if req.Method == "" {
		return ""
	}
	return strings.Join([]string{req.Method, req.RequestURI, req.Proto}, " ")
}

func (w *Worker) logAccess(req *http1.Request, res *http1.Response) {
	var elapsed time.Duration
	if !req.Received.IsZero() {
		elapsed = time.Since(req.Received)
	}
	w.access.Info("Request",
		zap.Stringer("remote", req.RemoteAddr()),
		zap.String("host", req.Host),
		zap.String("method", req.Method),
		zap.String("uri", req.RequestURI),
		zap.String("proto", req.Proto),
		zap.Int("status", res.Code),
		zap.Int64("bytes", res.Written()),
		zap.String("referer", req.Header.Get("Referer")),
		zap.String("userAgent", req.Header.Get("User-Agent")),
		zap.Duration("duration", elapsed),
	)
}
