// Package bridge correlates JSON-RPC calls from many concurrent callers
// onto one line-delimited stdio subprocess: a single reader goroutine owns
// the subprocess stdout, a pending table routes each response to exactly
// the caller whose id matches.
package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gaspardpetit/mcpd/internal/jsonrpc"
	"github.com/gaspardpetit/mcpd/internal/logx"
	"github.com/gaspardpetit/mcpd/internal/proc"
)

// maxLineSize bounds one stdout line from the subprocess.
const maxLineSize = 1024 * 1024

var (
	// ErrTimeout means no matching response arrived within the bound.
	ErrTimeout = errors.New("timeout waiting for response")
	// ErrProcessTerminated means the subprocess died while the call was in
	// flight; every waiter blocked at that moment receives it.
	ErrProcessTerminated = errors.New("process terminated before response")
)

// Options configure one bridge client.
type Options struct {
	Proc    proc.Options
	Timeout time.Duration
	Version string
}

// Client is one subprocess incarnation plus its correlation state. Request
// ids are a strictly increasing counter scoped to this incarnation; a
// restart builds a fresh Client, resetting the counter and pending table.
type Client struct {
	p       *proc.Process
	timeout time.Duration
	version string

	pmu     sync.Mutex
	nextID  uint64
	pending map[string]chan *jsonrpc.Envelope

	// populated once by init before the client is published, read-only after
	initRaw      json.RawMessage
	initRes      mcp.InitializeResult
	toolsRaw     json.RawMessage
	promptsRaw   json.RawMessage
	resourcesRaw json.RawMessage
	tools        []mcp.Tool
	prompts      []mcp.Prompt
	resources    []mcp.Resource

	readerDone chan struct{}
}

// Start spawns the subprocess, starts the reader and performs the MCP
// handshake. On handshake failure the subprocess is stopped before
// returning.
func Start(ctx context.Context, opts Options) (*Client, error) {
	p, err := proc.Start(opts.Proc)
	if err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		p:          p,
		timeout:    timeout,
		version:    opts.Version,
		pending:    map[string]chan *jsonrpc.Envelope{},
		readerDone: make(chan struct{}),
	}
	go c.readLoop()
	if err := c.init(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return c, nil
}

// register allocates the next request id and its response channel.
func (c *Client) register() (string, chan *jsonrpc.Envelope) {
	ch := make(chan *jsonrpc.Envelope, 1)
	c.pmu.Lock()
	c.nextID++
	key := string(jsonrpc.StringID(strconv.FormatUint(c.nextID, 10)))
	c.pending[key] = ch
	c.pmu.Unlock()
	return key, ch
}

// unregister removes a pending entry if still present and closes its
// channel. Exactly one of unregister and the reader takes any entry.
func (c *Client) unregister(key string) {
	c.pmu.Lock()
	ch := c.pending[key]
	delete(c.pending, key)
	c.pmu.Unlock()
	if ch != nil {
		close(ch)
	}
}

// Call sends one request and blocks until the matching response arrives,
// the per-call bound elapses, the subprocess dies, or ctx is cancelled.
// An error envelope from the subprocess comes back as *jsonrpc.Error.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !c.p.Alive() {
		return nil, proc.ErrNotRunning
	}
	env := jsonrpc.Envelope{JSONRPC: jsonrpc.Version, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		env.Params = raw
	}
	key, ch := c.register()
	env.ID = json.RawMessage(key)
	data, err := json.Marshal(env)
	if err != nil {
		c.unregister(key)
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	if err := c.p.WriteLine(data); err != nil {
		c.unregister(key)
		return nil, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrProcessTerminated
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-timer.C:
		c.unregister(key)
		return nil, ErrTimeout
	case <-ctx.Done():
		c.unregister(key)
		return nil, ctx.Err()
	}
}

// Notify sends a one-way notification; nothing is correlated and no
// response is expected.
func (c *Client) Notify(method string, params any) error {
	env := jsonrpc.Envelope{JSONRPC: jsonrpc.Version, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		env.Params = raw
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return c.p.WriteLine(data)
}

// readLoop is the only consumer of the subprocess stdout. It routes each
// response line to its pending caller; on stream closure it releases every
// remaining waiter before exiting.
func (c *Client) readLoop() {
	defer func() {
		c.pmu.Lock()
		for key, ch := range c.pending {
			close(ch)
			delete(c.pending, key)
		}
		c.pmu.Unlock()
		close(c.readerDone)
	}()

	sc := bufio.NewScanner(c.p.Stdout())
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var env jsonrpc.Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			logx.Log.Warn().Err(err).Msg("discarding unparseable line from process")
			continue
		}
		if env.IsNotification() || env.Method != "" {
			logx.Log.Debug().Str("method", env.Method).Msg("discarding unsolicited message from process")
			continue
		}
		key := string(env.ID)
		c.pmu.Lock()
		ch := c.pending[key]
		delete(c.pending, key)
		c.pmu.Unlock()
		if ch == nil {
			logx.Log.Debug().Str("id", key).Msg("discarding response with no pending request")
			continue
		}
		ch <- &env
	}
	if err := sc.Err(); err != nil {
		logx.Log.Debug().Err(err).Msg("process stdout closed")
	}
}

// Alive reports whether the subprocess is still running.
func (c *Client) Alive() bool { return c.p.Alive() }

// Done closes when the subprocess has exited.
func (c *Client) Done() <-chan struct{} { return c.p.Done() }

// Process exposes the supervised subprocess for health reporting.
func (c *Client) Process() *proc.Process { return c.p }

// Close stops the subprocess and waits briefly for the reader to finish
// releasing waiters. Safe to call multiple times.
func (c *Client) Close() {
	c.p.Stop()
	timer := time.NewTimer(2 * time.Second)
	defer timer.Stop()
	select {
	case <-c.readerDone:
	case <-timer.C:
	}
}
