package server

import (
	"encoding/json"
	"net/http"

	"github.com/gaspardpetit/mcpd/internal/bridge"
	"github.com/gaspardpetit/mcpd/internal/logx"
	"github.com/gaspardpetit/mcpd/internal/session"
)

// healthBody merges liveness with the subprocess details.
type healthBody struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	bridge.Health
}

// HealthHandler reports whether the wrapped MCP server is usable. A dead
// subprocess degrades the status code so orchestrators can see it.
func HealthHandler(provider bridge.Provider, sessions *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := provider.Health()
		status := "healthy"
		code := http.StatusOK
		if !h.Healthy {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		body := healthBody{Status: status, Sessions: sessions.Len(), Health: h}
		if err := json.NewEncoder(w).Encode(body); err != nil {
			logx.Log.Error().Err(err).Msg("encode health response")
		}
	}
}
