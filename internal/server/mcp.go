package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gaspardpetit/mcpd/internal/gateway"
	"github.com/gaspardpetit/mcpd/internal/jsonrpc"
	"github.com/gaspardpetit/mcpd/internal/logx"
	"github.com/gaspardpetit/mcpd/internal/metrics"
	"github.com/gaspardpetit/mcpd/internal/session"
)

const sessionHeader = "Mcp-Session-Id"

// queuedAck tells the caller its response was diverted to the session
// stream.
type queuedAck struct {
	Status string          `json:"status"`
	ID     json.RawMessage `json:"id,omitempty"`
}

// PostMCPHandler handles JSON-RPC over plain POST. Responses go inline
// unless the caller accepts push delivery or the session already has a
// delivery queue.
func PostMCPHandler(gw *gateway.Gateway, sessions *session.Registry, maxBody int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := sessions.Ensure(r.Header.Get(sessionHeader))
		w.Header().Set(sessionHeader, sess.ID)

		r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeEnvelope(w, http.StatusRequestEntityTooLarge,
					jsonrpc.NewError(nil, jsonrpc.CodeInvalidRequest, "Invalid Request", fmt.Sprintf("Request body exceeds %d bytes", maxErr.Limit)))
				return
			}
			writeEnvelope(w, http.StatusBadRequest, jsonrpc.NewError(nil, jsonrpc.CodeParseError, "Parse error", err.Error()))
			return
		}

		reply := gw.Handle(r.Context(), body, sess)
		if reply.Response == nil {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		if reply.BadRequest {
			writeEnvelope(w, http.StatusBadRequest, reply.Response)
			return
		}

		wantsStream := strings.Contains(r.Header.Get("Accept"), "text/event-stream")
		if wantsStream {
			sess.EnsureQueue()
		}
		if wantsStream || sess.HasQueue() {
			if raw, merr := json.Marshal(reply.Response); merr == nil && sess.Deliver(raw) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusAccepted)
				if err := json.NewEncoder(w).Encode(queuedAck{Status: "queued", ID: reply.Response.ID}); err != nil {
					logx.Log.Error().Err(err).Msg("encode queued ack")
				}
				return
			}
			// Queue full or gone; answer inline instead of dropping.
		}
		writeEnvelope(w, http.StatusOK, reply.Response)
	}
}

func writeEnvelope(w http.ResponseWriter, status int, env *jsonrpc.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		logx.Log.Error().Err(err).Msg("encode jsonrpc response")
	}
}

// GetMCPStreamHandler opens the SSE delivery stream for a session. Queued
// responses are written as SSE data frames; a heartbeat frame goes out
// whenever the queue stays quiet for a keep-alive interval.
func GetMCPStreamHandler(sessions *session.Registry, keepAlive time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := sessions.Ensure(r.Header.Get(sessionHeader))

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set(sessionHeader, sess.ID)
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "stream unsupported", http.StatusInternalServerError)
			return
		}

		q := sess.Attach()
		defer sess.Detach(q)
		flusher.Flush()
		logx.Log.Debug().Str("session_id", sess.ID).Msg("sse stream attached")

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case msg, open := <-q:
				if !open {
					// Replaced by a newer stream or pruned.
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", msg); err != nil {
					return
				}
				flusher.Flush()
				metrics.RecordStreamDelivery("sse")
			case <-ticker.C:
				sess.Touch()
				if _, err := fmt.Fprintf(w, "data: {\"type\":\"heartbeat\",\"timestamp\":%d}\n\n", time.Now().Unix()); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}
