package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"go.uber.org/goleak"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"go.pact.im/x/qhttpd/config"
	"go.pact.im/x/qhttpd/httpserver"
	"go.pact.im/x/qhttpd/pidfile"
	"go.pact.im/x/qhttpd/zaplog"
)

const version = "1.0.0"

var (
	configPath  = flag.String("c", "/etc/qhttpd/qhttpd.yaml", "configuration file path")
	debug       = flag.Bool("d", false, "log at debug level regardless of the configuration")
	watch       = flag.Bool("watch", false, "reload the configuration when the file changes")
	showVersion = flag.Bool("V", false, "print version and exit")
)

func main() {
	flag.Parse()
	os.Exit(main1())
}

var (
	level      = zap.NewAtomicLevel()
	rootLogger = zaplog.New(os.Stderr, level)
	logger     = rootLogger.Named("app")
)

func main1() int {
	if *showVersion {
		fmt.Println(serverName())
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Failed to load configuration", zap.Error(err))
		return 1
	}
	setLevel(cfg)

	if cfg.PidFile != "" {
		pf, err := pidfile.Acquire(cfg.PidFile)
		if err != nil {
			logger.Error("Failed to acquire pid file", zap.Error(err))
			return 1
		}
		defer func() {
			if err := pf.Release(); err != nil {
				logger.Warn("Failed to release pid file", zap.Error(err))
			}
		}()
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, unix.SIGINT, unix.SIGTERM, unix.SIGHUP, unix.SIGUSR1, unix.SIGUSR2)
	defer signal.Stop(sigc)

	var watchFile string
	if *watch {
		watchFile = *configPath
	}

	srv := httpserver.NewServer(httpserver.Options{
		Logger: rootLogger,
		Config: config.NewStore(cfg),
		Load: func() (*config.Config, error) {
			return config.Load(*configPath)
		},
		WatchFile:  watchFile,
		Level:      levelFollowingConfig(),
		ServerName: serverName(),
	})
	err = srv.Run(context.Background(), func(ctx context.Context) error {
		logger.Info("Server has successfully started",
			zap.Stringer("address", srv.Addr()),
			zap.String("root", cfg.DocumentRoot),
		)
		for {
			select {
			case <-ctx.Done():
				logger.Info("Received server callback cancellation")
				return nil
			case sig := <-sigc:
				switch sig {
				case unix.SIGHUP:
					logger.Info("Received SIGHUP, reloading configuration")
					srv.Reload()
				case unix.SIGUSR1:
					l := zaplog.Step(level, -1)
					logger.Info("Received SIGUSR1, log level changed", zap.Stringer("level", l))
				case unix.SIGUSR2:
					l := zaplog.Step(level, 1)
					logger.Warn("Received SIGUSR2, log level changed", zap.Stringer("level", l))
				default:
					logger.Info("Received signal, starting server shutdown", zap.Stringer("signal", sig))
					return nil
				}
			}
		}
	})
	logger.Info("Server has completed shutdown")

	if err := goleak.Find(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	if err != nil {
		logger.Error("Got error running the server", zap.Error(err))
		return 1
	}
	return 0
}

func serverName() string {
	return httpserver.DefaultServerName + "/" + version
}

// setLevel applies the configured log level unless debug logging was forced
// on the command line.
func setLevel(cfg *config.Config) {
	if *debug {
		level.SetLevel(zap.DebugLevel)
		return
	}
	if l, err := cfg.Level(); err == nil {
		level.SetLevel(l)
	}
}

// levelFollowingConfig returns the level that reloads should update. With
// -d the level is pinned to debug.
func levelFollowingConfig() *zap.AtomicLevel {
	if *debug {
		return nil
	}
	return &level
}
