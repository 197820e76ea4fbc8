package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/gaspardpetit/mcpd/internal/gateway"
)

// NewRouter builds the REST facade router. CORS is wide open here: unlike
// the MCP endpoint this surface is meant for hosted agent platforms calling
// from arbitrary origins.
func NewRouter(gw *gateway.Gateway) chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))
	r.Get("/tools", ListToolsHandler(gw))
	r.Post("/tools/{name}", CallToolHandler(gw))
	return r
}
