package httpx

import (
	"net/http"
	"path"
	"strings"

	"github.com/aussiebroadwan/hwidgate/pkg/slogx"
)

// DenyBasenames refuses any request whose final path segment matches one of
// names (case-insensitive). It sits in front of routing so data and secret
// files can never be served, whatever routes exist.
func DenyBasenames(names ...string) Middleware {
	deny := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" || n == "." || n == "/" {
			continue
		}
		deny[n] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			base := strings.ToLower(path.Base(r.URL.Path))
			if _, blocked := deny[base]; blocked {
				slogx.FromContext(r.Context()).Warn("blocked request for protected file", "file", base)
				WriteText(w, http.StatusForbidden, []byte("forbidden"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
