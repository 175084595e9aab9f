package config

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/fs"
	"gotest.tools/v3/poll"
)

func TestLoad(t *testing.T) {
	dir := fs.NewDir(t, "config",
		fs.WithDir("htdocs"),
		fs.WithFile("mime.conf", "html=text/html\n"),
	)
	conf := `
Port: 8081
StartServers: 2
MinSpareServers: 1
MaxSpareServers: 4
MaxClients: 16
MaxIdleTime: 30s
ConnectionTimeout: 5s
ResponseExpires: 1h
IgnoreOverConnection: true
DocumentRoot: ` + dir.Join("htdocs") + `
MimeFile: ` + dir.Join("mime.conf") + `
AllowedMethods: GET, head,PUT UNLOCK
EnableStatus: true
StatusUrl: /status
LogLevel: debug
`
	fs.Apply(t, dir, fs.WithFile("qhttpd.yaml", conf))

	c, err := Load(dir.Join("qhttpd.yaml"))
	assert.NilError(t, err)

	assert.Equal(t, c.Port, 8081)
	assert.Equal(t, c.ListenAddress(), ":8081")
	assert.Equal(t, c.StartServers, 2)
	assert.Equal(t, c.MaxClients, 16)
	assert.Equal(t, c.MaxIdleTime, 30*time.Second)
	assert.Equal(t, c.ConnectionTimeout, 5*time.Second)
	assert.Equal(t, c.ResponseExpires, time.Hour)
	assert.Assert(t, c.IgnoreOverConnection)
	assert.Assert(t, c.EnableKeepAlive)
	assert.Equal(t, c.MaxKeepAliveRequests, 100)
	assert.Equal(t, c.DirectoryIndex, "index.html")
	assert.Equal(t, c.StatusURL, "/status")
	assert.Equal(t, c.MimeTypes.Lookup("/a.html"), "text/html")

	assert.Equal(t, c.Methods, MethodGet|MethodHead|MethodPut|MethodUnlock)
	assert.Assert(t, !c.Methods.Allows("LOCK"))

	level, err := c.Level()
	assert.NilError(t, err)
	assert.Equal(t, level, zapcore.DebugLevel)
}

func TestParseRejects(t *testing.T) {
	root := fs.NewDir(t, "root")
	file := fs.NewFile(t, "file")

	testCases := []struct {
		name string
		conf string
		msgs []string
	}{
		{
			name: "unknown key",
			conf: "DocumentRoot: " + root.Path() + "\nListen: 80\n",
			msgs: []string{"field Listen not found"},
		},
		{
			name: "missing document root",
			conf: "Port: 80\n",
			msgs: []string{"DocumentRoot is required"},
		},
		{
			name: "document root is a file",
			conf: "DocumentRoot: " + file.Path() + "\n",
			msgs: []string{"is not a directory"},
		},
		{
			name: "pool invariants",
			conf: "DocumentRoot: " + root.Path() + "\nMaxClients: 600\nStartServers: 0\nMinSpareServers: 9\nMaxSpareServers: 3\n",
			msgs: []string{"MaxClients 600", "StartServers 0", "MinSpareServers 9"},
		},
		{
			name: "unknown method",
			conf: "DocumentRoot: " + root.Path() + "\nAllowedMethods: GET, POST\n",
			msgs: []string{`unknown method "POST"`},
		},
		{
			name: "bad level",
			conf: "DocumentRoot: " + root.Path() + "\nLogLevel: chatty\n",
			msgs: []string{"LogLevel"},
		},
		{
			name: "integer duration",
			conf: "DocumentRoot: " + root.Path() + "\nMaxIdleTime: 60\n",
			msgs: []string{"time.Duration"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.conf))
			assert.Assert(t, err != nil)
			for _, msg := range tc.msgs {
				assert.Check(t, is.ErrorContains(err, msg))
			}
		})
	}
}

func TestParseMethods(t *testing.T) {
	m, err := ParseMethods("all")
	assert.NilError(t, err)
	assert.Equal(t, m, AllMethods)
	assert.Equal(t, m.String(), "OPTIONS, HEAD, GET, PUT, PROPFIND, PROPPATCH, MKCOL, MOVE, DELETE, LOCK, UNLOCK")

	m, err = ParseMethods("")
	assert.NilError(t, err)
	assert.Equal(t, m.String(), "")
	assert.Assert(t, !m.Allows("GET"))
	assert.Assert(t, !AllMethods.Allows("POST"))
}

func TestStore(t *testing.T) {
	a, b := Defaults(), Defaults()
	s := NewStore(a)
	assert.Equal(t, s.Load(), a)
	assert.Equal(t, s.Swap(b), a)
	assert.Equal(t, s.Load(), b)
}

func TestWatcher(t *testing.T) {
	dir := fs.NewDir(t, "watch", fs.WithFile("qhttpd.yaml", "Port: 80\n"), fs.WithFile("other", ""))

	w, err := NewWatcher(dir.Join("qhttpd.yaml"))
	assert.NilError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan struct{}, 16)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func() {
			select {
			case changes <- struct{}{}:
			default:
			}
		})
	}()

	assert.NilError(t, os.WriteFile(dir.Join("other"), []byte("x"), 0o644))
	assert.NilError(t, os.WriteFile(dir.Join("qhttpd.yaml"), []byte("Port: 81\n"), 0o644))

	poll.WaitOn(t, func(poll.LogT) poll.Result {
		if len(changes) > 0 {
			return poll.Success()
		}
		return poll.Continue("no change events yet")
	}, poll.WithTimeout(5*time.Second))

	cancel()
	assert.NilError(t, <-done)
}
