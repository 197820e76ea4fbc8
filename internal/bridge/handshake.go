package bridge

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gaspardpetit/mcpd/internal/logx"
)

// ProtocolVersion is the MCP revision the bridge negotiates with the
// subprocess and advertises to clients.
const ProtocolVersion = "2024-11-05"

const clientName = "mcpd"

// init drives the one-time handshake: initialize, the initialized
// notification, then the capability loads. The capability lists are cached
// for the lifetime of this subprocess; a restart reloads them.
func (c *Client) init(ctx context.Context) error {
	params := struct {
		ProtocolVersion string                 `json:"protocolVersion"`
		ClientInfo      mcp.Implementation     `json:"clientInfo"`
		Capabilities    mcp.ClientCapabilities `json:"capabilities"`
	}{
		ProtocolVersion: ProtocolVersion,
		ClientInfo:      mcp.Implementation{Name: clientName, Version: c.version},
		Capabilities:    mcp.ClientCapabilities{},
	}
	res, err := c.Call(ctx, string(mcp.MethodInitialize), params)
	if err != nil {
		return err
	}
	c.initRaw = res
	if err := json.Unmarshal(res, &c.initRes); err != nil {
		logx.Log.Warn().Err(err).Msg("unparseable initialize result")
	}
	logx.Log.Info().Str("server", c.initRes.ServerInfo.Name).Str("protocol", c.initRes.ProtocolVersion).Msg("mcp server initialized")

	if err := c.Notify("notifications/initialized", nil); err != nil {
		return err
	}

	c.loadCapabilities(ctx)
	return nil
}

// loadCapabilities fills the tool, prompt and resource caches. Servers that
// do not implement a list method just leave that cache empty.
func (c *Client) loadCapabilities(ctx context.Context) {
	if raw, err := c.Call(ctx, string(mcp.MethodToolsList), nil); err == nil {
		var res mcp.ListToolsResult
		if json.Unmarshal(raw, &res) == nil {
			c.tools = res.Tools
		}
		c.toolsRaw = extractList(raw, "tools")
	} else {
		logx.Log.Debug().Err(err).Msg("tools/list unavailable")
	}
	if raw, err := c.Call(ctx, string(mcp.MethodPromptsList), nil); err == nil {
		var res mcp.ListPromptsResult
		if json.Unmarshal(raw, &res) == nil {
			c.prompts = res.Prompts
		}
		c.promptsRaw = extractList(raw, "prompts")
	} else {
		logx.Log.Debug().Err(err).Msg("prompts/list unavailable")
	}
	if raw, err := c.Call(ctx, string(mcp.MethodResourcesList), nil); err == nil {
		var res mcp.ListResourcesResult
		if json.Unmarshal(raw, &res) == nil {
			c.resources = res.Resources
		}
		c.resourcesRaw = extractList(raw, "resources")
	} else {
		logx.Log.Debug().Err(err).Msg("resources/list unavailable")
	}
}

// extractList pulls the named array out of a list result so the cached
// wire form is exactly what the subprocess reported.
func extractList(raw json.RawMessage, key string) json.RawMessage {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m[key]
}

// Tools returns the cached tool descriptors.
func (c *Client) Tools() []mcp.Tool { return c.tools }

// Prompts returns the cached prompt descriptors.
func (c *Client) Prompts() []mcp.Prompt { return c.prompts }

// Resources returns the cached resource descriptors.
func (c *Client) Resources() []mcp.Resource { return c.resources }

// ToolsRaw returns the cached tool list exactly as the subprocess reported
// it, nil when the server offers none.
func (c *Client) ToolsRaw() json.RawMessage { return c.toolsRaw }

// PromptsRaw returns the cached prompt list in wire form.
func (c *Client) PromptsRaw() json.RawMessage { return c.promptsRaw }

// ResourcesRaw returns the cached resource list in wire form.
func (c *Client) ResourcesRaw() json.RawMessage { return c.resourcesRaw }

// ServerInfo returns the raw initialize result reported by the subprocess.
func (c *Client) ServerInfo() json.RawMessage { return c.initRaw }

// ServerName returns the subprocess's advertised implementation name.
func (c *Client) ServerName() string { return c.initRes.ServerInfo.Name }
