package hook

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"go.pact.im/x/qhttpd/http1"
	"go.pact.im/x/qhttpd/stream"
	"go.pact.im/x/qhttpd/stream/streamtest"
)

func newExchange(raw string) (*http1.Request, *http1.Response) {
	conn := stream.New(streamtest.NewConn(raw), time.Second)
	req := http1.ReadRequest(conn)
	return req, http1.NewResponse(conn, req, nil)
}

func TestChain(t *testing.T) {
	var calls []string
	record := func(name string, r Result) RequestHandler {
		return RequestHandlerFunc(func(*http1.Request, *http1.Response) Result {
			calls = append(calls, name)
			return r
		})
	}

	req, res := newExchange("GET / HTTP/1.1\r\nHost: x\r\n\r\n")

	c := Chain{record("a", Continue{}), record("b", Handled{Code: 204}), record("c", Handled{Code: 200})}
	assert.Equal(t, c.HandleRequest(req, res), Result(Handled{Code: 204}))
	assert.DeepEqual(t, calls, []string{"a", "b"})

	calls = nil
	c = Chain{record("a", Continue{})}
	assert.Equal(t, c.HandleRequest(req, res), Result(Continue{}))
	assert.DeepEqual(t, calls, []string{"a"})

	assert.Equal(t, Chain(nil).HandleRequest(req, res), Result(Continue{}))
}

func TestResponseHooks(t *testing.T) {
	req, res := newExchange("GET / HTTP/1.1\r\nHost: x\r\n\r\n")
	hs := ResponseHooks{
		func(_ *http1.Request, res *http1.Response) { res.Header.Set("X-A", "1") },
		func(_ *http1.Request, res *http1.Response) { res.Header.Set("X-A", res.Header.Get("X-A")+"2") },
	}
	hs.Rewrite(req, res)
	assert.Equal(t, res.Header.Get("X-A"), "12")
}

func TestRequireBasicAuth(t *testing.T) {
	h := RequireBasicAuth("/private/", "files", func(u *http1.User) bool {
		return u.Username == "user" && u.Password == "secret"
	})

	testCases := []struct {
		name string
		raw  string
		want Result
	}{
		{
			name: "outside prefix",
			raw:  "GET /public HTTP/1.1\r\nHost: x\r\n\r\n",
			want: Continue{},
		},
		{
			name: "prefix sibling",
			raw:  "GET /privateer HTTP/1.1\r\nHost: x\r\n\r\n",
			want: Continue{},
		},
		{
			name: "no credentials",
			raw:  "GET /private/a HTTP/1.1\r\nHost: x\r\n\r\n",
			want: Handled{Code: http1.StatusUnauthorized},
		},
		{
			name: "wrong password",
			raw:  "GET /private HTTP/1.1\r\nHost: x\r\nAuthorization: Basic dXNlcjp3cm9uZw==\r\n\r\n",
			want: Handled{Code: http1.StatusUnauthorized},
		},
		{
			name: "accepted",
			raw:  "GET /private/a HTTP/1.1\r\nHost: x\r\nAuthorization: Basic dXNlcjpzZWNyZXQ=\r\n\r\n",
			want: Continue{},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, res := newExchange(tc.raw)
			assert.Equal(t, h.HandleRequest(req, res), tc.want)
			if _, ok := tc.want.(Handled); ok {
				assert.Equal(t, res.Header.Get("WWW-Authenticate"), `Basic realm="files"`)
			}
		})
	}
}
