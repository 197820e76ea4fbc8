// Package gateway turns raw JSON-RPC frames from any transport into calls
// against the wrapped MCP server and builds the response envelopes.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gaspardpetit/mcpd/internal/bridge"
	"github.com/gaspardpetit/mcpd/internal/jsonrpc"
	"github.com/gaspardpetit/mcpd/internal/logx"
	"github.com/gaspardpetit/mcpd/internal/metrics"
	"github.com/gaspardpetit/mcpd/internal/proc"
	"github.com/gaspardpetit/mcpd/internal/session"
)

// serverName identifies the bridge itself in initialize results.
const serverName = "mcpd"

// Gateway executes validated frames against whatever subprocess the
// provider hands out.
type Gateway struct {
	provider bridge.Provider
	version  string
}

func New(provider bridge.Provider, version string) *Gateway {
	return &Gateway{provider: provider, version: version}
}

// Reply is the outcome of one handled frame. Response is nil for
// notifications, which need only a transport-level acknowledgment.
// BadRequest marks bodies that never parsed into a JSON-RPC request; HTTP
// transports report those with a 400 status.
type Reply struct {
	Response   *jsonrpc.Envelope
	BadRequest bool
}

// Handle validates one frame and executes it. Validation short-circuits in
// a fixed order: JSON object, then protocol version, then method, then
// method-specific parameters. sess may be nil for transports that do not
// track sessions.
func (g *Gateway) Handle(ctx context.Context, body []byte, sess *session.Session) Reply {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return Reply{
			Response:   jsonrpc.NewError(nil, jsonrpc.CodeInvalidRequest, "Invalid Request", "Empty request body"),
			BadRequest: true,
		}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		if json.Valid(body) {
			return Reply{Response: jsonrpc.NewError(nil, jsonrpc.CodeInvalidRequest, "Invalid Request", "Request must be JSON object")}
		}
		return Reply{
			Response:   jsonrpc.NewError(nil, jsonrpc.CodeParseError, "Parse error", err.Error()),
			BadRequest: true,
		}
	}
	var version string
	if raw, ok := fields["jsonrpc"]; !ok || json.Unmarshal(raw, &version) != nil || version != jsonrpc.Version {
		return Reply{Response: jsonrpc.NewError(nil, jsonrpc.CodeInvalidRequest, "Invalid Request", "Missing or invalid jsonrpc version")}
	}
	var method string
	if raw, ok := fields["method"]; !ok || json.Unmarshal(raw, &method) != nil || method == "" {
		return Reply{Response: jsonrpc.NewError(nil, jsonrpc.CodeInvalidRequest, "Invalid Request", "Missing or invalid method")}
	}
	id := fields["id"]
	if strings.HasPrefix(method, "notifications/") || len(id) == 0 || bytes.Equal(id, []byte("null")) {
		logx.Log.Debug().Str("method", method).Msg("acknowledged notification")
		return Reply{}
	}

	start := time.Now()
	resp := g.dispatch(ctx, id, method, fields["params"], sess)
	metrics.ObserveRPCDuration(method, time.Since(start))
	metrics.RecordRPC(method, resp.Error == nil)
	return Reply{Response: resp}
}

func (g *Gateway) dispatch(ctx context.Context, id json.RawMessage, method string, params json.RawMessage, sess *session.Session) *jsonrpc.Envelope {
	switch method {
	case string(mcp.MethodInitialize):
		return g.initialize(id, params, sess)
	case string(mcp.MethodToolsList), string(mcp.MethodPromptsList), string(mcp.MethodResourcesList):
		return g.listFromCache(ctx, id, method)
	case string(mcp.MethodToolsCall), string(mcp.MethodPromptsGet):
		return g.passThrough(ctx, id, method, "name", params)
	case string(mcp.MethodResourcesRead):
		return g.passThrough(ctx, id, method, "uri", params)
	default:
		return jsonrpc.NewError(id, jsonrpc.CodeMethodNotFound, "Method not found", "Unknown method: "+method)
	}
}

// capabilities is the fixed advertisement. The wrapped server's own
// capability object is reported by the health endpoint.
type capabilities struct {
	Tools     struct{} `json:"tools"`
	Prompts   struct{} `json:"prompts"`
	Resources struct{} `json:"resources"`
}

// initialize answers locally. The subprocess completed its handshake when it
// was spawned, so a second initialize must not reach it.
func (g *Gateway) initialize(id, params json.RawMessage, sess *session.Session) *jsonrpc.Envelope {
	if len(params) > 0 && !bytes.Equal(params, []byte("null")) {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(params, &obj); err != nil {
			return jsonrpc.NewError(id, jsonrpc.CodeInvalidParams, "Invalid params", "Params must be object")
		}
		if sess != nil {
			if ci, ok := obj["clientInfo"]; ok {
				sess.SetClientInfo(ci)
			}
		}
	}
	result := struct {
		ProtocolVersion string             `json:"protocolVersion"`
		Capabilities    capabilities       `json:"capabilities"`
		ServerInfo      mcp.Implementation `json:"serverInfo"`
	}{
		ProtocolVersion: bridge.ProtocolVersion,
		ServerInfo:      mcp.Implementation{Name: serverName, Version: g.version},
	}
	resp, err := jsonrpc.NewResponse(id, result)
	if err != nil {
		return jsonrpc.NewError(id, jsonrpc.CodeInternalError, "Internal error", err.Error())
	}
	return resp
}

// listFromCache serves list methods from the handshake cache without a
// subprocess round trip.
func (g *Gateway) listFromCache(ctx context.Context, id json.RawMessage, method string) *jsonrpc.Envelope {
	c, release, err := g.provider.Acquire(ctx)
	if err != nil {
		return jsonrpc.NewError(id, jsonrpc.CodeProcessNotReady, "MCP server not running", err.Error())
	}
	defer release()
	var key string
	var list json.RawMessage
	switch method {
	case string(mcp.MethodToolsList):
		key, list = "tools", c.ToolsRaw()
	case string(mcp.MethodPromptsList):
		key, list = "prompts", c.PromptsRaw()
	default:
		key, list = "resources", c.ResourcesRaw()
	}
	if list == nil {
		list = json.RawMessage(`[]`)
	}
	resp, err := jsonrpc.NewResponse(id, map[string]json.RawMessage{key: list})
	if err != nil {
		return jsonrpc.NewError(id, jsonrpc.CodeInternalError, "Internal error", err.Error())
	}
	return resp
}

// passThrough forwards a call to the subprocess after checking the one
// parameter the method cannot do without.
func (g *Gateway) passThrough(ctx context.Context, id json.RawMessage, method, required string, params json.RawMessage) *jsonrpc.Envelope {
	var obj map[string]json.RawMessage
	if len(params) == 0 || json.Unmarshal(params, &obj) != nil {
		return jsonrpc.NewError(id, jsonrpc.CodeInvalidParams, "Invalid params", "Missing '"+required+"' parameter")
	}
	if _, ok := obj[required]; !ok {
		return jsonrpc.NewError(id, jsonrpc.CodeInvalidParams, "Invalid params", "Missing '"+required+"' parameter")
	}
	c, release, err := g.provider.Acquire(ctx)
	if err != nil {
		return jsonrpc.NewError(id, jsonrpc.CodeProcessNotReady, "MCP server not running", err.Error())
	}
	defer release()
	raw, err := c.Call(ctx, method, params)
	if err != nil {
		return g.callError(id, method, err)
	}
	resp, rerr := jsonrpc.NewResponse(id, raw)
	if rerr != nil {
		return jsonrpc.NewError(id, jsonrpc.CodeInternalError, "Internal error", rerr.Error())
	}
	return resp
}

// callError maps bridge failures onto protocol errors. Upstream error
// objects ride along as data so the caller sees what the server reported.
func (g *Gateway) callError(id json.RawMessage, method string, err error) *jsonrpc.Envelope {
	var rpcErr *jsonrpc.Error
	var startErr *proc.StartupError
	switch {
	case errors.As(err, &rpcErr):
		return jsonrpc.NewError(id, jsonrpc.CodeInternalError, "Internal error", rpcErr)
	case errors.Is(err, bridge.ErrTimeout):
		return jsonrpc.NewError(id, jsonrpc.CodeTimeout, "Request timeout", nil)
	case errors.Is(err, bridge.ErrProcessTerminated):
		return jsonrpc.NewError(id, jsonrpc.CodeProcessClosed, "MCP process closed", nil)
	case errors.Is(err, proc.ErrNotRunning), errors.As(err, &startErr):
		return jsonrpc.NewError(id, jsonrpc.CodeProcessNotReady, "MCP server not running", err.Error())
	default:
		logx.Log.Error().Err(err).Str("method", method).Msg("mcp request failed")
		return jsonrpc.NewError(id, jsonrpc.CodeInternalError, "Internal error", err.Error())
	}
}

// Tools exposes the cached tool descriptors for the REST facade.
func (g *Gateway) Tools(ctx context.Context) ([]mcp.Tool, error) {
	c, release, err := g.provider.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return c.Tools(), nil
}

// CallTool invokes one tool by name and returns the raw MCP call result.
func (g *Gateway) CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	c, release, err := g.provider.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return c.Call(ctx, string(mcp.MethodToolsCall), mcp.CallToolParams{Name: name, Arguments: args})
}
