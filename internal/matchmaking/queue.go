package matchmaking

import "github.com/DoyleJ11/rps-match-backend/internal/room"

// PairFunc builds and registers the room for two matched connections.
type PairFunc func(waiting, arriving string) *room.Room

// Queue is a depth-one waiting slot. It is not safe for concurrent use; the
// hub goroutine owns it.
type Queue struct {
	waiting string
	held    bool
	pair    PairFunc
}

func NewQueue(pair PairFunc) *Queue {
	return &Queue{pair: pair}
}

// Arrive pairs conn with the waiting connection, or holds it if nobody is waiting.
func (q *Queue) Arrive(conn string) (*room.Room, bool) {
	if q.held && q.waiting != conn {
		partner := q.waiting
		q.waiting, q.held = "", false
		return q.pair(partner, conn), true
	}
	q.waiting, q.held = conn, true
	return nil, false
}

// Depart clears the slot if conn is the one waiting.
func (q *Queue) Depart(conn string) bool {
	if !q.held || q.waiting != conn {
		return false
	}
	q.waiting, q.held = "", false
	return true
}

func (q *Queue) Waiting() (string, bool) {
	return q.waiting, q.held
}
