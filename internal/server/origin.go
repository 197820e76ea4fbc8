package server

import (
	"net/http"
	"strings"

	"github.com/gaspardpetit/mcpd/internal/logx"
)

// allowedOriginPrefixes lists the origins a browser page may present. The
// bridge runs next to its caller, so only loopback origins are accepted.
var allowedOriginPrefixes = []string{
	"http://localhost",
	"https://localhost",
	"http://127.0.0.1",
	"https://127.0.0.1",
}

const originErrorBody = `{"jsonrpc":"2.0","error":{"code":-32603,"message":"Invalid Origin header"}}`

func allowOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	for _, p := range allowedOriginPrefixes {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}

// checkOrigin guards the MCP endpoints against cross-site requests from
// non-local pages. Requests without an Origin header pass.
func checkOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if !allowOrigin(origin) {
			logx.Log.Warn().Str("origin", origin).Str("path", r.URL.Path).Msg("rejected origin")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(originErrorBody))
			return
		}
		next.ServeHTTP(w, r)
	})
}
