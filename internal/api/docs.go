package api

import (
	"encoding/json"
	"net/http"

	"github.com/gaspardpetit/mcpd/internal/gateway"
	"github.com/gaspardpetit/mcpd/internal/logx"
)

type serviceDoc struct {
	Name           string            `json:"name"`
	Version        string            `json:"version"`
	Description    string            `json:"description"`
	Endpoints      map[string]string `json:"endpoints"`
	ToolsAvailable int               `json:"tools_available"`
}

// DocHandler describes the service surface for first-time callers.
func DocHandler(gw *gateway.Gateway, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count := 0
		if tools, err := gw.Tools(r.Context()); err == nil {
			count = len(tools)
		}
		doc := serviceDoc{
			Name:        "mcpd",
			Version:     version,
			Description: "HTTP bridge exposing a stdio MCP server",
			Endpoints: map[string]string{
				"POST /mcp":              "JSON-RPC endpoint (MCP)",
				"GET /mcp":               "SSE delivery stream for the session",
				"GET /mcp/ws":            "WebSocket transport",
				"GET /api/tools":         "List all available tools",
				"POST /api/tools/{name}": "Call any tool by name",
				"GET /health":            "Health check",
				"GET /metrics":           "Prometheus metrics",
			},
			ToolsAvailable: count,
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(doc); err != nil {
			logx.Log.Error().Err(err).Msg("encode service doc")
		}
	}
}
