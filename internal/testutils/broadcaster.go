package testutils

import (
	"sync"
	"testing"
	"time"
)

type Emitted struct {
	Conn    string
	Room    string // empty for private emits
	Event   string
	Payload any
}

// Recorder is an in-memory Broadcaster that fans events out to per-connection channels.
type Recorder struct {
	mu     sync.Mutex
	groups map[string][]string
	conns  map[string]chan Emitted
}

func NewRecorder() *Recorder {
	return &Recorder{
		groups: make(map[string][]string),
		conns:  make(map[string]chan Emitted),
	}
}

func (r *Recorder) JoinGroup(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[roomID] = append(r.groups[roomID], connID)
}

func (r *Recorder) EmitToRoom(roomID, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.groups[roomID] {
		r.chanLocked(c) <- Emitted{Conn: c, Room: roomID, Event: event, Payload: payload}
	}
}

func (r *Recorder) EmitToConnection(connID, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chanLocked(connID) <- Emitted{Conn: connID, Event: event, Payload: payload}
}

// Conn returns the event stream for one connection.
func (r *Recorder) Conn(id string) <-chan Emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chanLocked(id)
}

func (r *Recorder) Members(roomID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.groups[roomID]...)
}

func (r *Recorder) chanLocked(id string) chan Emitted {
	ch, ok := r.conns[id]
	if !ok {
		ch = make(chan Emitted, 512)
		r.conns[id] = ch
	}
	return ch
}

// Next receives one event or fails the test.
func Next(t *testing.T, ch <-chan Emitted, within time.Duration) Emitted {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(within):
		t.Fatalf("timed out waiting for event")
		return Emitted{}
	}
}

// Await skips events until one named event arrives.
func Await(t *testing.T, ch <-chan Emitted, event string, within time.Duration) Emitted {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case e := <-ch:
			if e.Event == event {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", event)
			return Emitted{}
		}
	}
}

// None asserts that no event named event arrives within the window.
func None(t *testing.T, ch <-chan Emitted, event string, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case e := <-ch:
			if e.Event == event {
				t.Fatalf("expected no %q within %v, got %+v", event, within, e)
			}
		case <-deadline:
			return
		}
	}
}
