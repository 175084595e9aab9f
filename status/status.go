// Package status renders the worker slot table as an HTML page or as JSON.
package status

import (
	"bytes"
	"net/url"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-json-experiment/json"

	"go.pact.im/x/qhttpd/config"
	"go.pact.im/x/qhttpd/hook"
	"go.pact.im/x/qhttpd/http1"
	"go.pact.im/x/qhttpd/registry"
)

// Worker states.
const (
	StateWorking   = "W"
	StateKeepAlive = "K"
	StateIdle      = "-"
)

// Options are the options for a Handler.
type Options struct {
	Registry *registry.Registry
	Config   *config.Store

	// ServerName is shown in the page title.
	ServerName string

	// Clock defaults to the system clock.
	Clock clock.Clock
}

// Handler answers GET and HEAD requests for the configured status URL when
// the status page is enabled. Other requests continue down the chain.
type Handler struct {
	reg        *registry.Registry
	store      *config.Store
	serverName string
	clock      clock.Clock
}

// New returns a new Handler.
func New(o Options) *Handler {
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	return &Handler{
		reg:        o.Registry,
		store:      o.Config,
		serverName: o.ServerName,
		clock:      o.Clock,
	}
}

// HandleRequest implements the hook.RequestHandler interface.
func (h *Handler) HandleRequest(req *http1.Request, res *http1.Response) hook.Result {
	cfg := h.store.Load()
	if !cfg.EnableStatus || req.Path != cfg.StatusURL {
		return hook.Continue{}
	}
	if req.Method != "GET" && req.Method != "HEAD" {
		return hook.Continue{}
	}

	p := h.Page(cfg)

	var (
		body        []byte
		contentType string
		err         error
	)
	if q, _ := url.ParseQuery(req.Query); q.Has("json") {
		contentType = "application/json"
		body, err = json.Marshal(p, json.Deterministic(true))
	} else {
		contentType = "text/html; charset=utf-8"
		var buf bytes.Buffer
		err = pageTemplate.Execute(&buf, p)
		body = buf.Bytes()
	}
	if err != nil {
		return hook.Handled{Code: res.SetSimple(http1.StatusInternalServerError, false,
			"Failed to render the status page.")}
	}

	res.SetStatus(http1.StatusOK, true)
	res.Header.Set("Cache-Control", "no-cache")
	res.SetContent(contentType, body)
	return hook.Handled{Code: http1.StatusOK}
}

// Page is a point-in-time view of the worker pool.
type Page struct {
	Server          string    `json:"server"`
	Now             time.Time `json:"now"`
	Started         time.Time `json:"started"`
	Launched        uint64    `json:"launched"`
	Running         int       `json:"running"`
	Active          int       `json:"active"`
	Conns           uint64    `json:"conns"`
	Requests        uint64    `json:"requests"`
	StartServers    int       `json:"startServers"`
	MinSpareServers int       `json:"minSpareServers"`
	MaxSpareServers int       `json:"maxSpareServers"`
	MaxClients      int       `json:"maxClients"`
	Workers         []Worker  `json:"workers"`
}

// Worker is a row of the status table.
type Worker struct {
	Slot     int       `json:"slot"`
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	Created  time.Time `json:"created"`
	Conns    uint64    `json:"conns"`
	Requests uint64    `json:"requests"`
	State    string    `json:"state"`

	Client       string    `json:"client,omitempty"`
	ConnStart    time.Time `json:"connStart,omitzero"`
	ConnSeconds  int64     `json:"connSeconds"`
	ConnRequests int       `json:"connRequests"`

	Request   string    `json:"request,omitempty"`
	Code      int       `json:"code,omitempty"`
	Received  time.Time `json:"received,omitzero"`
	RequestMS float64   `json:"requestMs"`
}

// Page takes a snapshot of the registry.
func (h *Handler) Page(cfg *config.Config) *Page {
	c, slots := h.reg.Snapshot()
	now := h.clock.Now()

	p := &Page{
		Server:          h.serverName,
		Now:             now,
		Started:         c.Started,
		Launched:        c.Launched,
		Running:         c.Running,
		Active:          c.Active,
		Conns:           c.Conns,
		Requests:        c.Requests,
		StartServers:    cfg.StartServers,
		MinSpareServers: cfg.MinSpareServers,
		MaxSpareServers: cfg.MaxSpareServers,
		MaxClients:      cfg.MaxClients,
		Workers:         make([]Worker, 0, len(slots)),
	}
	for _, s := range slots {
		p.Workers = append(p.Workers, newWorker(s, now))
	}
	return p
}

func newWorker(s registry.Slot, now time.Time) Worker {
	conn := s.Conn
	w := Worker{
		Slot:         s.Index,
		ID:           s.ID,
		Name:         s.Name,
		Created:      s.Created,
		Conns:        s.Conns,
		Requests:     s.Requests,
		State:        state(conn),
		ConnStart:    conn.Start,
		ConnRequests: conn.Requests,
		Request:      conn.Request,
		Code:         conn.Code,
		Received:     conn.Received,
	}
	if conn.RemoteAddr != "" {
		w.Client = conn.RemoteAddr + ":" + strconv.Itoa(conn.RemotePort)
	}

	switch {
	case !conn.Start.IsZero() && !conn.Connected && !conn.End.Before(conn.Start):
		w.ConnSeconds = int64(conn.End.Sub(conn.Start) / time.Second)
	case !conn.Start.IsZero():
		w.ConnSeconds = int64(now.Sub(conn.Start) / time.Second)
	}

	if !conn.Received.IsZero() {
		end := now
		if !running(conn) {
			end = conn.Sent
		}
		if end.After(conn.Received) {
			w.RequestMS = float64(end.Sub(conn.Received).Microseconds()) / 1000
		}
	}
	return w
}

// running reports whether a request is being served on the connection.
func running(c registry.Conn) bool {
	return c.Connected && c.Requests > 0 && c.Code == 0
}

func state(c registry.Conn) string {
	switch {
	case running(c):
		return StateWorking
	case c.Connected:
		return StateKeepAlive
	default:
		return StateIdle
	}
}
