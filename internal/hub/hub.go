package hub

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/rps-match-backend/internal/engine"
	"github.com/DoyleJ11/rps-match-backend/internal/matchmaking"
	"github.com/DoyleJ11/rps-match-backend/internal/room"
	"github.com/DoyleJ11/rps-match-backend/pkg/types"
)

type HubMsg interface{ isHubMsg() }

type Arrive struct{ ConnID string }

type Depart struct{ ConnID string }

type Move struct {
	ConnID string
	Move   engine.Move
}

// RoomClosed is posted by a room once it has terminated.
type RoomClosed struct{ RoomID string }

type GetStats struct {
	Reply chan Stats
}

type GetRoom struct {
	ConnID string
	Reply  chan *room.Room
}

type ShutdownHub struct{}

func (Arrive) isHubMsg()      {}
func (Depart) isHubMsg()      {}
func (Move) isHubMsg()        {}
func (RoomClosed) isHubMsg()  {}
func (GetStats) isHubMsg()    {}
func (GetRoom) isHubMsg()     {}
func (ShutdownHub) isHubMsg() {}

type Stats struct {
	Rooms       int  `json:"rooms"`
	Connections int  `json:"connections"`
	Waiting     bool `json:"waiting"`
}

type Config struct {
	Rules       engine.Rules
	Broadcaster room.Broadcaster
	Logger      *zap.Logger
	// NewID defaults to uuid.NewString.
	NewID       func() string
}

type Hub struct {
	inbox   chan HubMsg
	rooms   map[string]*room.Room
	members map[string]string // conn -> room id
	queue   *matchmaking.Queue

	rules engine.Rules
	bc    room.Broadcaster
	log   *zap.Logger
	newID func() string

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, cfg Config) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		rooms:   make(map[string]*room.Room),
		members: make(map[string]string),
		rules:   cfg.Rules,
		bc:      cfg.Broadcaster,
		log:     cfg.Logger,
		newID:   cfg.NewID,
		ctx:     ctx,
		cancel:  cancel,
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	if h.newID == nil {
		h.newID = uuid.NewString
	}
	h.queue = matchmaking.NewQueue(h.createRoom)

	go h.loop()
	return h
}

// Send posts m to the hub; it returns false after shutdown.
func (h *Hub) Send(m HubMsg) bool {
	if h.ctx.Err() != nil {
		return false
	}
	select {
	case h.inbox <- m:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Done is closed once the hub has stopped.
func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Arrive:
				h.arrive(msg.ConnID)

			case Depart:
				h.depart(msg.ConnID)

			case Move:
				rm := h.roomOf(msg.ConnID)
				if rm == nil {
					continue
				}
				if !rm.Send(room.SubmitMove{ConnID: msg.ConnID, Move: msg.Move}) {
					delete(h.members, msg.ConnID)
				}

			case RoomClosed:
				h.removeRoom(msg.RoomID)

			case GetRoom:
				msg.Reply <- h.roomOf(msg.ConnID) // May be nil

			case GetStats:
				_, waiting := h.queue.Waiting()
				msg.Reply <- Stats{
					Rooms:       len(h.rooms),
					Connections: len(h.members),
					Waiting:     waiting,
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) arrive(conn string) {
	if _, ok := h.members[conn]; ok {
		return
	}
	if _, paired := h.queue.Arrive(conn); paired {
		return
	}
	h.log.Debug("connection waiting", zap.String("conn", conn))
	h.bc.EmitToConnection(conn, types.EventStatus, "Waiting for an opponent...")
	h.bc.EmitToConnection(conn, types.EventScores, nil)
}

func (h *Hub) depart(conn string) {
	if h.queue.Depart(conn) {
		h.log.Debug("waiting connection left", zap.String("conn", conn))
		return
	}
	rm := h.roomOf(conn)
	delete(h.members, conn)
	if rm == nil {
		return
	}
	rm.Send(room.Disconnect{ConnID: conn})
}

// createRoom is the queue's pairing hook; it runs on the hub goroutine.
func (h *Hub) createRoom(waiting, arriving string) *room.Room {
	rm := room.New(h.ctx, room.Config{
		ID:          h.newID(),
		Conns:       [2]string{waiting, arriving},
		Rules:       h.rules,
		Broadcaster: h.bc,
		Logger:      h.log,
		OnClose:     h.roomClosed,
	})
	h.rooms[rm.ID()] = rm
	h.members[waiting] = rm.ID()
	h.members[arriving] = rm.ID()
	return rm
}

// roomClosed runs on the room goroutine and must not block it.
func (h *Hub) roomClosed(id string) {
	go h.Send(RoomClosed{RoomID: id})
}

func (h *Hub) removeRoom(id string) {
	rm, ok := h.rooms[id]
	if !ok {
		return
	}
	delete(h.rooms, id)
	for conn, rid := range h.members {
		if rid == id {
			delete(h.members, conn)
		}
	}
	rm.Send(room.Shutdown{})
}

// roomOf returns nil once the room has ended, even before RoomClosed arrives.
func (h *Hub) roomOf(conn string) *room.Room {
	id, ok := h.members[conn]
	if !ok {
		return nil
	}
	rm := h.rooms[id]
	if rm == nil || rm.Closed() {
		return nil
	}
	return rm
}

func (h *Hub) shutdown() {
	for _, rm := range h.rooms {
		rm.Send(room.Shutdown{})
	}
	clear(h.rooms)
	clear(h.members)
	h.cancel()
}
