package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/gaspardpetit/mcpd/internal/gateway"
	"github.com/gaspardpetit/mcpd/internal/logx"
	"github.com/gaspardpetit/mcpd/internal/metrics"
	"github.com/gaspardpetit/mcpd/internal/session"
)

// WSHandler serves the bidirectional WebSocket transport. Incoming frames
// are handled like POST bodies; queued deliveries for the session ride the
// same socket.
func WSHandler(gw *gateway.Gateway, sessions *session.Registry, keepAlive time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := sessions.Ensure(r.Header.Get(sessionHeader))
		w.Header().Set(sessionHeader, sess.ID)
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// checkOrigin already vetted the Origin header; the patterns
			// mirror its loopback allow-list for ports it cannot express.
			OriginPatterns: []string{"localhost", "localhost:*", "127.0.0.1", "127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer func() {
			_ = c.Close(websocket.StatusInternalError, "server error")
		}()
		ctx := r.Context()

		var wmu sync.Mutex
		write := func(msg []byte) error {
			wmu.Lock()
			defer wmu.Unlock()
			return c.Write(ctx, websocket.MessageText, msg)
		}

		q := sess.Attach()
		defer sess.Detach(q)
		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(keepAlive)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ctx.Done():
					return
				case msg, open := <-q:
					if !open {
						_ = c.Close(websocket.StatusGoingAway, "stream replaced")
						return
					}
					if err := write(msg); err != nil {
						return
					}
					metrics.RecordStreamDelivery("ws")
				case <-ticker.C:
					sess.Touch()
					wmu.Lock()
					err := c.Ping(ctx)
					wmu.Unlock()
					if err != nil {
						return
					}
				}
			}
		}()

		for {
			_, data, err := c.Read(ctx)
			if err != nil {
				var ce websocket.CloseError
				if errors.As(err, &ce) && ce.Code == websocket.StatusNormalClosure {
					logx.Log.Debug().Str("session_id", sess.ID).Msg("websocket closed")
				} else {
					logx.Log.Debug().Err(err).Str("session_id", sess.ID).Msg("websocket disconnected")
				}
				return
			}
			reply := gw.Handle(ctx, data, sess)
			if reply.Response == nil {
				continue
			}
			msg, merr := json.Marshal(reply.Response)
			if merr != nil {
				logx.Log.Error().Err(merr).Msg("encode websocket response")
				continue
			}
			if err := write(msg); err != nil {
				return
			}
		}
	}
}
