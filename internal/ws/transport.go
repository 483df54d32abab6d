package ws

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/rps-match-backend/internal/types"
)

const outboxSize = 32

// Transport fans named events out to connection outboxes, grouped by room id.
type Transport struct {
	mu     sync.RWMutex
	conns  map[string]chan types.ServerMessage
	groups map[string]map[string]struct{}
	roomOf map[string]string
	log    *zap.Logger
}

func NewTransport(log *zap.Logger) *Transport {
	if log == nil {
		log = zap.NewNop()
	}
	return &Transport{
		conns:  make(map[string]chan types.ServerMessage),
		groups: make(map[string]map[string]struct{}),
		roomOf: make(map[string]string),
		log:    log,
	}
}

// Register opens an outbox for connID. The channel is closed by Unregister, or
// earlier if the client falls too far behind.
func (t *Transport) Register(connID string) <-chan types.ServerMessage {
	ch := make(chan types.ServerMessage, outboxSize)
	t.mu.Lock()
	t.conns[connID] = ch
	t.mu.Unlock()
	return ch
}

func (t *Transport) Unregister(connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dropLocked(connID)
}

// JoinGroup is a no-op for a connection that has already gone away.
func (t *Transport) JoinGroup(connID, roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.conns[connID]; !ok {
		return
	}
	if prev, ok := t.roomOf[connID]; ok {
		t.leaveLocked(connID, prev)
	}
	g, ok := t.groups[roomID]
	if !ok {
		g = make(map[string]struct{}, 2)
		t.groups[roomID] = g
	}
	g[connID] = struct{}{}
	t.roomOf[connID] = roomID
}

func (t *Transport) EmitToRoom(roomID, event string, payload any) {
	msg, ok := t.encode(event, payload)
	if !ok {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for id := range t.groups[roomID] {
		t.deliverLocked(id, msg)
	}
}

func (t *Transport) EmitToConnection(connID, event string, payload any) {
	msg, ok := t.encode(event, payload)
	if !ok {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deliverLocked(connID, msg)
}

// GroupSize reports how many live connections are in roomID.
func (t *Transport) GroupSize(roomID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.groups[roomID])
}

func (t *Transport) encode(event string, payload any) (types.ServerMessage, bool) {
	raw, err := json.Marshal(payload)
	if err != nil {
		t.log.Error("encode event", zap.String("event", event), zap.Error(err))
		return types.ServerMessage{}, false
	}
	return types.ServerMessage{Event: event, Payload: raw}, true
}

func (t *Transport) deliverLocked(connID string, msg types.ServerMessage) {
	ch, ok := t.conns[connID]
	if !ok {
		return
	}
	select {
	case ch <- msg:
	default:
		// Client is slow/full - drop them.
		t.log.Warn("dropping slow connection", zap.String("conn", connID))
		t.dropLocked(connID)
	}
}

func (t *Transport) dropLocked(connID string) {
	if ch, ok := t.conns[connID]; ok {
		close(ch)
		delete(t.conns, connID)
	}
	if roomID, ok := t.roomOf[connID]; ok {
		t.leaveLocked(connID, roomID)
	}
}

func (t *Transport) leaveLocked(connID, roomID string) {
	delete(t.roomOf, connID)
	g := t.groups[roomID]
	delete(g, connID)
	if len(g) == 0 {
		delete(t.groups, roomID)
	}
}
