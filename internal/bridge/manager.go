package bridge

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gaspardpetit/mcpd/internal/logx"
	"github.com/gaspardpetit/mcpd/internal/metrics"
	"github.com/gaspardpetit/mcpd/internal/proc"
)

// Conn is the per-call view of a running MCP server client.
type Conn interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
	Tools() []mcp.Tool
	Prompts() []mcp.Prompt
	Resources() []mcp.Resource
	ToolsRaw() json.RawMessage
	PromptsRaw() json.RawMessage
	ResourcesRaw() json.RawMessage
}

// Provider hands a live client to each call, hiding the lifecycle policy.
// The release func must be called once the call is done with the client.
type Provider interface {
	Acquire(ctx context.Context) (Conn, func(), error)
	Health() Health
	Shutdown()
}

// Health describes the supervised subprocess for the health endpoint.
type Health struct {
	Healthy   bool            `json:"-"`
	Policy    string          `json:"policy"`
	Server    json.RawMessage `json:"server,omitempty"`
	PID       int             `json:"pid,omitempty"`
	UptimeSec float64         `json:"uptime_seconds,omitempty"`
	Stats     *proc.Stats     `json:"stats,omitempty"`
	Tools     int             `json:"tools"`
	Restarts  uint64          `json:"restarts"`
	Err       string          `json:"error,omitempty"`
}

// Persistent keeps one shared subprocess alive across calls, respawning it
// on the first call after a detected death. Callers that were blocked when
// the process died are released by the dying client's reader; the next
// Acquire triggers the restart.
type Persistent struct {
	opts Options

	mu     sync.Mutex
	cur    *Client
	starts uint64
}

// NewPersistent builds the persistent-policy provider. The subprocess is
// spawned lazily on first Acquire.
func NewPersistent(opts Options) *Persistent {
	return &Persistent{opts: opts}
}

// Acquire returns the shared client, restarting the subprocess when the
// previous incarnation died. Restart rebuilds the correlation state and the
// capability cache from a fresh handshake.
func (m *Persistent) Acquire(ctx context.Context) (Conn, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur != nil && m.cur.Alive() {
		return m.cur, func() {}, nil
	}
	if m.cur != nil {
		m.cur.Close()
		m.cur = nil
		metrics.SetProcessUp(false)
		logx.Log.Warn().Msg("mcp server is not running, restarting")
	}
	c, err := Start(ctx, m.opts)
	if err != nil {
		return nil, nil, err
	}
	m.cur = c
	m.starts++
	if m.starts > 1 {
		metrics.IncProcessRestart()
	}
	metrics.SetProcessUp(true)
	go func() {
		<-c.Done()
		metrics.SetProcessUp(false)
	}()
	return m.cur, func() {}, nil
}

// Health reports the live subprocess state.
func (m *Persistent) Health() Health {
	m.mu.Lock()
	cur := m.cur
	starts := m.starts
	m.mu.Unlock()
	h := Health{Policy: "persistent"}
	if starts > 0 {
		h.Restarts = starts - 1
	}
	if cur == nil || !cur.Alive() {
		h.Err = "MCP server not running"
		return h
	}
	h.Healthy = true
	h.Server = cur.ServerInfo()
	h.PID = cur.Process().PID()
	h.UptimeSec = cur.Process().Uptime().Seconds()
	h.Tools = len(cur.Tools())
	if st, err := cur.Process().Stats(); err == nil {
		h.Stats = st
	}
	return h
}

// Shutdown stops the shared subprocess.
func (m *Persistent) Shutdown() {
	m.mu.Lock()
	cur := m.cur
	m.cur = nil
	m.mu.Unlock()
	if cur != nil {
		cur.Close()
		metrics.SetProcessUp(false)
	}
}

// PerRequest spawns a fresh subprocess for every call and tears it down
// when the call releases it. The handshake still runs per spawn, so list
// methods serve that incarnation's cache.
type PerRequest struct {
	opts Options
}

// NewPerRequest builds the spawn-per-call provider.
func NewPerRequest(opts Options) *PerRequest {
	return &PerRequest{opts: opts}
}

// Acquire spawns and handshakes a fresh subprocess; release stops it.
func (m *PerRequest) Acquire(ctx context.Context) (Conn, func(), error) {
	c, err := Start(ctx, m.opts)
	if err != nil {
		return nil, nil, err
	}
	return c, c.Close, nil
}

// Health always reports healthy: there is no long-lived subprocess to
// probe, each request gets its own.
func (m *PerRequest) Health() Health {
	return Health{Healthy: true, Policy: "per-request"}
}

// Shutdown is a no-op; per-request clients die with their call.
func (m *PerRequest) Shutdown() {}
