package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gaspardpetit/mcpd/internal/api"
	"github.com/gaspardpetit/mcpd/internal/bridge"
	"github.com/gaspardpetit/mcpd/internal/config"
	"github.com/gaspardpetit/mcpd/internal/gateway"
	"github.com/gaspardpetit/mcpd/internal/session"
)

// New constructs the HTTP handler for the bridge.
func New(cfg config.Config, version string, provider bridge.Provider, gw *gateway.Gateway, sessions *session.Registry) http.Handler {
	r := chi.NewRouter()
	for _, m := range api.MiddlewareChain() {
		r.Use(m)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Get("/health", HealthHandler(provider, sessions))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(g chi.Router) {
		g.Use(checkOrigin)
		g.Post("/mcp", PostMCPHandler(gw, sessions, cfg.MaxBodyBytes))
		g.Get("/mcp", GetMCPStreamHandler(sessions, cfg.KeepAlive))
		g.Get("/mcp/ws", WSHandler(gw, sessions, cfg.KeepAlive))
	})

	r.Get("/", api.DocHandler(gw, version))
	r.Mount("/api", api.NewRouter(gw))

	return r
}
