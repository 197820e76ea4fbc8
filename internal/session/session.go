// Package session tracks HTTP clients of the bridge and the per-client
// delivery queues drained by their SSE or WebSocket streams.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gaspardpetit/mcpd/internal/logx"
	"github.com/gaspardpetit/mcpd/internal/metrics"
)

// Session is one logical client, identified by the Mcp-Session-Id header.
// It owns at most one delivery queue at a time.
type Session struct {
	ID string

	mu         sync.Mutex
	queue      chan json.RawMessage
	attached   bool
	lastSeen   time.Time
	size       int
	clientInfo json.RawMessage
}

// Touch marks the session as recently used.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// SetClientInfo records the clientInfo the session presented on initialize.
func (s *Session) SetClientInfo(info json.RawMessage) {
	s.mu.Lock()
	s.clientInfo = info
	s.mu.Unlock()
}

// ClientInfo returns the recorded initialize clientInfo, nil when the
// session never sent one.
func (s *Session) ClientInfo() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientInfo
}

// EnsureQueue creates the delivery queue if the session has none yet.
// Messages delivered before a stream attaches sit in the queue buffer.
func (s *Session) EnsureQueue() {
	s.mu.Lock()
	if s.queue == nil {
		s.queue = make(chan json.RawMessage, s.size)
	}
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// HasQueue reports whether the session currently owns a delivery queue.
func (s *Session) HasQueue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue != nil
}

// Deliver hands a message to the session's queue. It reports false when the
// session has no queue or the queue is full; the caller responds inline
// instead.
func (s *Session) Deliver(msg json.RawMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
	if s.queue == nil {
		return false
	}
	select {
	case s.queue <- msg:
		return true
	default:
		return false
	}
}

// Attach claims the delivery queue for a stream. A queue no stream holds yet
// is adopted as-is, so messages queued before the stream connected are not
// lost. When another stream already holds the queue it is closed and
// replaced; the previous stream ends once it drains.
func (s *Session) Attach() <-chan json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
	switch {
	case s.queue == nil:
		s.queue = make(chan json.RawMessage, s.size)
	case s.attached:
		close(s.queue)
		s.queue = make(chan json.RawMessage, s.size)
	}
	s.attached = true
	return s.queue
}

// Detach releases the queue held by a stream. It is a no-op when a newer
// stream already replaced the queue.
func (s *Session) Detach(q <-chan json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue == nil || (<-chan json.RawMessage)(s.queue) != q {
		return
	}
	close(s.queue)
	s.queue = nil
	s.attached = false
}

func (s *Session) expired(now time.Time, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen) > ttl
}

func (s *Session) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil {
		close(s.queue)
		s.queue = nil
	}
	s.attached = false
}

// Registry hands out sessions and expires the ones that go quiet.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	size     int
}

// NewRegistry builds a registry whose sessions expire after ttl of
// inactivity and whose queues buffer up to queueSize messages.
func NewRegistry(ttl time.Duration, queueSize int) *Registry {
	return &Registry{
		sessions: map[string]*Session{},
		ttl:      ttl,
		size:     queueSize,
	}
}

// Ensure returns the session for id, creating it when unknown. An empty id
// mints a fresh one.
func (r *Registry) Ensure(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == "" {
		id = uuid.NewString()
	}
	s, ok := r.sessions[id]
	if !ok {
		s = &Session{ID: id, size: r.size}
		r.sessions[id] = s
		metrics.SetActiveSessions(len(r.sessions))
	}
	s.Touch()
	return s
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// PruneExpired drops sessions idle longer than the TTL and closes their
// queues so attached streams terminate.
func (r *Registry) PruneExpired(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pruned := 0
	for id, s := range r.sessions {
		if !s.expired(now, r.ttl) {
			continue
		}
		s.shutdown()
		delete(r.sessions, id)
		pruned++
	}
	if pruned > 0 {
		metrics.SetActiveSessions(len(r.sessions))
		logx.Log.Debug().Int("pruned", pruned).Int("remaining", len(r.sessions)).Msg("expired idle sessions")
	}
}

// Janitor prunes expired sessions on a fixed cadence until ctx is done.
func (r *Registry) Janitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.PruneExpired(time.Now())
		}
	}
}
