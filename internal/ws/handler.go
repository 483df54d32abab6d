package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/rps-match-backend/internal/engine"
	"github.com/DoyleJ11/rps-match-backend/internal/hub"
	"github.com/DoyleJ11/rps-match-backend/internal/types"
	pubtypes "github.com/DoyleJ11/rps-match-backend/pkg/types"
)

const writeTimeout = 3 * time.Second

// Options tunes the socket. A quiet client is never dropped for silence; it is
// dropped only when a ping goes unanswered for PongTimeout.
type Options struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	OriginPatterns []string
}

// Handler upgrades to a websocket, enters the connection into matchmaking and
// routes its moves until it goes away.
func Handler(h *hub.Hub, t *Transport, log *zap.Logger, opts Options) http.HandlerFunc {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 54 * time.Second
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = 60 * time.Second
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		connID := uuid.NewString()
		clog := log.With(zap.String("conn", connID))
		out := t.Register(connID)
		defer t.Unregister(connID)
		t.EmitToConnection(connID, pubtypes.EventHello, pubtypes.Hello{ID: connID})

		if !h.Send(hub.Arrive{ConnID: connID}) {
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}
		defer h.Send(hub.Depart{ConnID: connID})
		clog.Info("connection opened")

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for msg := range out {
				payload, err := json.Marshal(msg)
				if err != nil {
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				err = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
				if err != nil {
					return
				}
			}
			// Outbox closed while the reader is still running: the client was too slow.
			if writeCtx.Err() == nil {
				conn.Close(websocket.StatusPolicyViolation, "too slow")
			}
		}()

		// Heartbeat. Ping needs the reader loop below running to see the pong.
		go func() {
			ticker := time.NewTicker(opts.PingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-writeCtx.Done():
					return
				case <-ticker.C:
					ctx, cancel := context.WithTimeout(writeCtx, opts.PongTimeout)
					err := conn.Ping(ctx)
					cancel()
					if err != nil {
						if writeCtx.Err() == nil {
							clog.Info("ping timeout", zap.Error(err))
							conn.CloseNow()
						}
						return
					}
				}
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					clog.Info("connection closed")
				default:
					if !errors.Is(err, context.Canceled) {
						clog.Debug("connection read failed", zap.Error(err))
					}
				}
				return
			}

			move, ok := parseMove(data)
			if !ok {
				clog.Debug("dropping client message", zap.ByteString("data", data))
				continue
			}
			h.Send(hub.Move{ConnID: connID, Move: move})
		}
	}
}

func parseMove(data []byte) (engine.Move, bool) {
	var cm types.ClientMessage
	if err := json.Unmarshal(data, &cm); err != nil {
		return "", false
	}
	if cm.Type != pubtypes.ClientMakeMove {
		return "", false
	}
	m, err := engine.ParseMove(cm.Move)
	if err != nil {
		return "", false
	}
	return m, true
}
