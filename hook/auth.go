package hook

import (
	"strings"

	"go.pact.im/x/qhttpd/http1"
)

// RequireBasicAuth returns a handler that answers 401 for requests under the
// path prefix unless verify accepts their Basic credentials. Accepted
// requests continue down the chain.
func RequireBasicAuth(prefix, realm string, verify func(u *http1.User) bool) RequestHandler {
	return RequestHandlerFunc(func(req *http1.Request, res *http1.Response) Result {
		if !underPrefix(req.Path, prefix) {
			return Continue{}
		}
		u, err := http1.ParseUser(req)
		if err == nil && verify(u) {
			return Continue{}
		}
		return Handled{Code: res.SetAuthRequired(realm)}
	})
}

func underPrefix(p, prefix string) bool {
	if prefix == "" || prefix == "/" {
		return true
	}
	prefix = strings.TrimSuffix(prefix, "/")
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}
