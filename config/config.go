// Package config loads and validates the server configuration and publishes
// it as an immutable snapshot.
//
// A Config value is never modified after it is published to a Store. Reload
// builds a new Config and swaps the pointer, so readers that load the
// snapshot once per request or scheduling tick always observe a consistent
// set of values.
package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"go.pact.im/x/qhttpd/mimetype"
)

// MaxClientsLimit is the hard ceiling for MaxClients.
const MaxClientsLimit = 512

// Config holds every server tunable. Field names match the configuration
// file keys.
type Config struct {
	PidFile  string `yaml:"PidFile"`
	MimeFile string `yaml:"MimeFile"`

	// BindAddress is the local address to listen on. Empty means all
	// interfaces.
	BindAddress string `yaml:"BindAddress"`
	Port        int    `yaml:"Port"`

	StartServers    int `yaml:"StartServers"`
	MinSpareServers int `yaml:"MinSpareServers"`
	MaxSpareServers int `yaml:"MaxSpareServers"`
	MaxClients      int `yaml:"MaxClients"`

	// MaxIdleTime is how long a worker may wait for connections before it
	// exits to shed spare capacity. Zero disables idle exits.
	MaxIdleTime time.Duration `yaml:"MaxIdleTime"`

	// MaxRequestsPerChild caps the number of requests a worker serves
	// during its lifetime. Zero means no limit.
	MaxRequestsPerChild int `yaml:"MaxRequestsPerChild"`

	EnableKeepAlive bool `yaml:"EnableKeepAlive"`
	// MaxKeepAliveRequests caps the number of requests per connection. Zero
	// means no limit.
	MaxKeepAliveRequests int `yaml:"MaxKeepAliveRequests"`

	// ConnectionTimeout bounds every read and write on a connection.
	ConnectionTimeout time.Duration `yaml:"ConnectionTimeout"`

	// IgnoreOverConnection answers connections that arrive while the pool
	// is saturated with 503 instead of leaving them queued.
	IgnoreOverConnection bool `yaml:"IgnoreOverConnection"`

	// ResponseExpires sets Cache-Control max-age and Expires on GET
	// responses. Zero disables the headers.
	ResponseExpires time.Duration `yaml:"ResponseExpires"`

	DocumentRoot   string `yaml:"DocumentRoot"`
	AllowedMethods string `yaml:"AllowedMethods"`
	DirectoryIndex string `yaml:"DirectoryIndex"`

	EnableStatus bool   `yaml:"EnableStatus"`
	StatusURL    string `yaml:"StatusUrl"`

	LogLevel string `yaml:"LogLevel"`

	// Methods is the parsed AllowedMethods value.
	Methods Methods `yaml:"-"`
	// MimeTypes is the table loaded from MimeFile.
	MimeTypes mimetype.Table `yaml:"-"`
}

// Defaults returns a configuration with default values. DocumentRoot has no
// default and must be set.
func Defaults() *Config {
	return &Config{
		Port:                 8080,
		StartServers:         5,
		MinSpareServers:      5,
		MaxSpareServers:      10,
		MaxClients:           150,
		MaxIdleTime:          time.Minute,
		MaxRequestsPerChild:  3000,
		EnableKeepAlive:      true,
		MaxKeepAliveRequests: 100,
		ConnectionTimeout:    15 * time.Second,
		AllowedMethods:       "OPTIONS, HEAD, GET",
		DirectoryIndex:       "index.html",
		StatusURL:            "/server-status",
		LogLevel:             "info",
	}
}

// Load reads, completes and validates the configuration file.
func Load(name string) (*Config, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	return c, nil
}

// Parse decodes a configuration from r on top of the defaults, resolves
// derived fields and validates the result. Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	c := Defaults()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := c.Complete(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Complete resolves derived fields: the method set and the MIME table.
func (c *Config) Complete() error {
	methods, err := ParseMethods(c.AllowedMethods)
	if err != nil {
		return fmt.Errorf("AllowedMethods: %w", err)
	}
	c.Methods = methods

	if c.MimeFile != "" {
		t, err := mimetype.Load(c.MimeFile)
		if err != nil {
			return fmt.Errorf("MimeFile: %w", err)
		}
		c.MimeTypes = t
	}
	return nil
}

// Validate checks the configuration invariants and returns all violations.
func (c *Config) Validate() error {
	var err error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			err = multierr.Append(err, fmt.Errorf(format, args...))
		}
	}

	check(c.Port > 0 && c.Port <= 65535, "Port %d is out of range", c.Port)
	check(c.MaxClients > 0 && c.MaxClients <= MaxClientsLimit,
		"MaxClients %d must be between 1 and %d", c.MaxClients, MaxClientsLimit)
	check(c.StartServers > 0 && c.StartServers <= c.MaxClients,
		"StartServers %d must be between 1 and MaxClients", c.StartServers)
	check(c.MinSpareServers >= 0 && c.MinSpareServers <= c.MaxSpareServers,
		"MinSpareServers %d must be between 0 and MaxSpareServers %d", c.MinSpareServers, c.MaxSpareServers)
	check(c.MaxIdleTime >= 0, "MaxIdleTime must not be negative")
	check(c.MaxRequestsPerChild >= 0, "MaxRequestsPerChild must not be negative")
	check(c.MaxKeepAliveRequests >= 0, "MaxKeepAliveRequests must not be negative")
	check(c.ConnectionTimeout >= 0, "ConnectionTimeout must not be negative")
	check(c.ResponseExpires >= 0, "ResponseExpires must not be negative")
	check(!strings.Contains(c.DirectoryIndex, "/"), "DirectoryIndex %q must be a file name", c.DirectoryIndex)
	check(!c.EnableStatus || strings.HasPrefix(c.StatusURL, "/"), "StatusUrl %q must be an absolute path", c.StatusURL)

	if c.DocumentRoot == "" {
		check(false, "DocumentRoot is required")
	} else if fi, statErr := os.Stat(c.DocumentRoot); statErr != nil {
		check(false, "DocumentRoot: %v", statErr)
	} else {
		check(fi.IsDir(), "DocumentRoot %q is not a directory", c.DocumentRoot)
	}

	_, levelErr := c.Level()
	check(levelErr == nil, "LogLevel %q is not a valid level", c.LogLevel)

	return err
}

// Level returns the parsed LogLevel.
func (c *Config) Level() (zapcore.Level, error) {
	var l zapcore.Level
	err := l.UnmarshalText([]byte(c.LogLevel))
	return l, err
}

// ListenAddress returns the TCP address to listen on.
func (c *Config) ListenAddress() string {
	return net.JoinHostPort(c.BindAddress, strconv.Itoa(c.Port))
}
