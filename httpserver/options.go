package httpserver

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"go.pact.im/x/qhttpd/config"
	"go.pact.im/x/qhttpd/hook"
)

// DefaultServerName is the default Server header value.
const DefaultServerName = "qhttpd"

// Options is a set of options for the Server constructor.
type Options struct {
	// Logger is a logger to use for server logs. If not set, logs are not
	// written.
	Logger *zap.Logger

	// Config holds the configuration snapshot. It is required.
	Config *config.Store

	// Load reads a new configuration on reload. If not set, reloads are
	// ignored.
	Load func() (*config.Config, error)

	// WatchFile, if set, is watched for changes that trigger a reload.
	WatchFile string

	// Level, if set, follows the LogLevel of reloaded configurations.
	Level *zap.AtomicLevel

	// Socket provides the listener. Defaults to TCP on the configured
	// address and port.
	Socket StreamSocket

	// ServerName is the Server header value. Defaults to
	// DefaultServerName.
	ServerName string

	// Handlers run in order after the status page and before the method
	// dispatcher.
	Handlers []hook.RequestHandler

	// ResponseHooks run right before every response is written.
	ResponseHooks hook.ResponseHooks

	// Lifecycle defaults to hook.Nop.
	Lifecycle hook.Lifecycle

	// Clock defaults to the system clock.
	Clock clock.Clock

	// Tick is the supervisor scheduling interval.
	Tick time.Duration

	// CheckpointInterval is how often idle workers check whether they
	// should exit.
	CheckpointInterval time.Duration

	// SoftStopTimeout and HardStopTimeout bound the shutdown stages.
	SoftStopTimeout time.Duration
	HardStopTimeout time.Duration
}

// setDefaults sets default values for unspecified options.
func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Socket == nil {
		o.Socket = TCP(o.Config.Load().ListenAddress())
	}
	if o.ServerName == "" {
		o.ServerName = DefaultServerName
	}
	if o.Lifecycle == nil {
		o.Lifecycle = hook.Nop{}
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
}
