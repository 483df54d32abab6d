package hub

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/rps-match-backend/internal/engine"
	"github.com/DoyleJ11/rps-match-backend/internal/room"
	"github.com/DoyleJ11/rps-match-backend/internal/testutils"
	"github.com/DoyleJ11/rps-match-backend/pkg/types"
)

const wait = time.Second

func newTestHub(t *testing.T, rules engine.Rules) (*Hub, *testutils.Recorder) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var mu sync.Mutex
	n := 0
	rec := testutils.NewRecorder()
	h := NewHub(ctx, Config{
		Rules:       rules,
		Broadcaster: rec,
		Logger:      zap.NewNop(),
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("room-%d", n)
		},
	})
	return h, rec
}

func stats(t *testing.T, h *Hub) Stats {
	t.Helper()
	reply := make(chan Stats, 1)
	require.True(t, h.Send(GetStats{Reply: reply}))
	select {
	case s := <-reply:
		return s
	case <-time.After(wait):
		t.Fatalf("timed out waiting for stats")
		return Stats{}
	}
}

func roomOf(t *testing.T, h *Hub, conn string) *room.Room {
	t.Helper()
	reply := make(chan *room.Room, 1)
	require.True(t, h.Send(GetRoom{ConnID: conn, Reply: reply}))
	return <-reply
}

// eventually polls the hub until cond holds; room teardown reaches the hub asynchronously.
func eventually(t *testing.T, h *Hub, cond func(Stats) bool) {
	t.Helper()
	deadline := time.Now().Add(wait)
	for {
		s := stats(t, h)
		if cond(s) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met, last stats %+v", s)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_Scenario_PairPlayTimeoutDisconnect(t *testing.T) {
	rules := engine.Rules{RoundTimeout: 150 * time.Millisecond, Cooldown: 30 * time.Millisecond, WinScore: 10}
	h, rec := newTestHub(t, rules)
	a, b := rec.Conn("a"), rec.Conn("b")

	// A waits alone.
	h.Send(Arrive{ConnID: "a"})
	waiting := testutils.Next(t, a, wait)
	assert.Equal(t, types.EventStatus, waiting.Event)
	assert.Equal(t, "Waiting for an opponent...", waiting.Payload)
	nullScores := testutils.Next(t, a, wait)
	assert.Equal(t, types.EventScores, nullScores.Event)
	assert.Nil(t, nullScores.Payload)

	s := stats(t, h)
	assert.Equal(t, Stats{Rooms: 0, Connections: 0, Waiting: true}, s)

	// B pairs with A.
	h.Send(Arrive{ConnID: "b"})
	for _, ch := range []<-chan testutils.Emitted{a, b} {
		st := testutils.Await(t, ch, types.EventStatus, wait)
		assert.Contains(t, st.Payload, "room-1")
		sc := testutils.Await(t, ch, types.EventScores, wait).Payload.(types.Scores)
		assert.Zero(t, sc["a"].Score)
		assert.Zero(t, sc["b"].Score)
	}
	assert.Equal(t, Stats{Rooms: 1, Connections: 2, Waiting: false}, stats(t, h))

	// A: rock, B: scissors.
	h.Send(Move{ConnID: "a", Move: engine.MoveRock})
	h.Send(Move{ConnID: "b", Move: engine.MoveScissors})
	for _, ch := range []<-chan testutils.Emitted{a, b} {
		res := testutils.Await(t, ch, types.EventResult, wait).Payload.(types.Result)
		assert.Equal(t, "a", res.Winner)
	}

	// Next round starts after the cooldown, with A at 1.
	sc := testutils.Await(t, a, types.EventScores, wait).Payload.(types.Scores)
	assert.Equal(t, 1, sc["a"].Score)

	// Nobody moves: timeout draw, score unchanged.
	res := testutils.Await(t, b, types.EventResult, wait).Payload.(types.Result)
	assert.Equal(t, types.OutcomeTimeoutDraw, res.Outcome)
	sc = testutils.Await(t, b, types.EventScores, wait).Payload.(types.Scores)
	assert.Equal(t, 1, sc["a"].Score)
	assert.Equal(t, 0, sc["b"].Score)

	// A leaves mid-round.
	h.Send(Depart{ConnID: "a"})
	over := testutils.Await(t, b, types.EventGameOver, wait).Payload.(types.GameOver)
	assert.Equal(t, "b", over.Winner)
	assert.Equal(t, types.ReasonDisconnect, over.Reason)

	eventually(t, h, func(s Stats) bool { return s.Rooms == 0 && s.Connections == 0 })
	assert.Nil(t, roomOf(t, h, "b"))

	// B's late departure and move are dropped.
	h.Send(Move{ConnID: "b", Move: engine.MovePaper})
	h.Send(Depart{ConnID: "b"})
	testutils.None(t, b, types.EventGameOver, 100*time.Millisecond)
}

func TestHub_WaitingDeparture_ClearsSlot(t *testing.T) {
	h, rec := newTestHub(t, engine.DefaultRules())

	h.Send(Arrive{ConnID: "a"})
	h.Send(Depart{ConnID: "a"})
	assert.False(t, stats(t, h).Waiting)

	h.Send(Arrive{ConnID: "b"})
	assert.Equal(t, Stats{Waiting: true}, stats(t, h))
	testutils.None(t, rec.Conn("a"), types.EventResult, 50*time.Millisecond)
}

func TestHub_MoveFromUnpairedConn_Dropped(t *testing.T) {
	h, rec := newTestHub(t, engine.DefaultRules())

	h.Send(Arrive{ConnID: "a"})
	h.Send(Move{ConnID: "a", Move: engine.MoveRock})
	h.Send(Move{ConnID: "ghost", Move: engine.MoveRock})

	assert.Equal(t, Stats{Waiting: true}, stats(t, h))
	testutils.None(t, rec.Conn("ghost"), types.EventStatus, 50*time.Millisecond)
}

func TestHub_GameOver_RemovesRoomFromRegistry(t *testing.T) {
	rules := engine.Rules{RoundTimeout: time.Minute, Cooldown: time.Millisecond, WinScore: 1}
	h, rec := newTestHub(t, rules)

	h.Send(Arrive{ConnID: "a"})
	h.Send(Arrive{ConnID: "b"})
	h.Send(Move{ConnID: "a", Move: engine.MovePaper})
	h.Send(Move{ConnID: "b", Move: engine.MoveScissors})

	over := testutils.Await(t, rec.Conn("a"), types.EventGameOver, wait).Payload.(types.GameOver)
	assert.Equal(t, "b", over.Winner)
	assert.Equal(t, types.ReasonScore, over.Reason)

	// The ended room is unroutable as soon as game-over is out, before RoomClosed lands.
	assert.Nil(t, roomOf(t, h, "a"))
	assert.Nil(t, roomOf(t, h, "b"))
	h.Send(Move{ConnID: "a", Move: engine.MoveRock})
	testutils.None(t, rec.Conn("a"), types.EventStatus, 50*time.Millisecond)

	eventually(t, h, func(s Stats) bool { return s.Rooms == 0 && s.Connections == 0 })

	// Disconnect after game over must not produce a second game-over.
	h.Send(Depart{ConnID: "a"})
	testutils.None(t, rec.Conn("b"), types.EventGameOver, 100*time.Millisecond)
}

func TestHub_ConcurrentArrivals_PairEveryone(t *testing.T) {
	h, _ := newTestHub(t, engine.Rules{RoundTimeout: time.Minute, Cooldown: time.Minute, WinScore: 10})

	const n = 40
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Send(Arrive{ConnID: fmt.Sprintf("c%d", i)})
		}()
	}
	wg.Wait()

	assert.Equal(t, Stats{Rooms: n / 2, Connections: n, Waiting: false}, stats(t, h))
}

func TestHub_Shutdown_StopsAcceptingMessages(t *testing.T) {
	h, _ := newTestHub(t, engine.DefaultRules())

	h.Send(Arrive{ConnID: "a"})
	h.Send(Arrive{ConnID: "b"})
	require.True(t, h.Send(ShutdownHub{}))

	select {
	case <-h.Done():
	case <-time.After(wait):
		t.Fatalf("hub did not stop")
	}
	assert.False(t, h.Send(Arrive{ConnID: "c"}))
}
