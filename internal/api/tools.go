package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gaspardpetit/mcpd/internal/gateway"
	"github.com/gaspardpetit/mcpd/internal/jsonrpc"
	"github.com/gaspardpetit/mcpd/internal/logx"
)

// ToolDescriptor is one entry of the tool listing.
type ToolDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Endpoint    string `json:"endpoint"`
}

// CallResult is the REST envelope around a tool invocation.
type CallResult struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   any             `json:"error,omitempty"`
}

// ListToolsHandler lists the wrapped server's tools with their REST routes.
func ListToolsHandler(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tools, err := gw.Tools(r.Context())
		if err != nil {
			writeCallError(w, err)
			return
		}
		out := make([]ToolDescriptor, 0, len(tools))
		for _, t := range tools {
			out = append(out, ToolDescriptor{
				Name:        t.Name,
				Description: t.Description,
				Endpoint:    "/api/tools/" + t.Name,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string][]ToolDescriptor{"tools": out}); err != nil {
			logx.Log.Error().Err(err).Msg("encode tools response")
		}
	}
}

// CallToolHandler invokes one tool by name; the request body carries the
// tool arguments as a JSON object.
func CallToolHandler(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		var args map[string]any
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil && !errors.Is(err, io.EOF) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(CallResult{Error: "request body must be a JSON object"})
			return
		}
		raw, err := gw.CallTool(r.Context(), name, args)
		if err != nil {
			writeCallError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(CallResult{Success: true, Data: raw}); err != nil {
			logx.Log.Error().Err(err).Msg("encode tool response")
		}
	}
}

// writeCallError mirrors upstream tool errors as a 400 carrying the error
// object, and everything else as a 500 carrying the error text.
func writeCallError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	var rpcErr *jsonrpc.Error
	if errors.As(err, &rpcErr) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(CallResult{Error: rpcErr})
		return
	}
	logx.Log.Error().Err(err).Msg("tool call failed")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(CallResult{Error: err.Error()})
}
