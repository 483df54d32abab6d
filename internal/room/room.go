package room

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/rps-match-backend/internal/engine"
	"github.com/DoyleJ11/rps-match-backend/pkg/types"
)

// Broadcaster is the transport the room talks through. Implementations must not block.
type Broadcaster interface {
	EmitToRoom(roomID, event string, payload any)
	EmitToConnection(connID, event string, payload any)
	JoinGroup(connID, roomID string)
}

type Phase string

const (
	PhaseAwaitingMoves Phase = "awaiting_moves"
	PhaseResolved      Phase = "resolved"
	PhaseGameOver      Phase = "game_over"
	PhaseAbandoned     Phase = "abandoned"
)

type Msg interface{ isRoomMsg() }

type SubmitMove struct {
	ConnID string
	Move   engine.Move
}

func (SubmitMove) isRoomMsg() {}

type Disconnect struct{ ConnID string }

func (Disconnect) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type timerKind int

const (
	timerRound timerKind = iota
	timerCooldown
)

type timerFired struct {
	kind timerKind
	gen  uint64
}

func (timerFired) isRoomMsg() {}

type PlayerView struct {
	ConnID string
	Name   string
	Score  int
	Move   engine.Move // empty when no move is pending
}

type View struct {
	ID         string
	Phase      Phase
	Round      int
	Active     bool
	TimerArmed bool
	Players    [2]PlayerView
}

type Config struct {
	ID          string
	Conns       [2]string
	Rules       engine.Rules
	Broadcaster Broadcaster
	Logger      *zap.Logger
	// OnClose is called once, from the room goroutine, when the room terminates.
	OnClose     func(id string)
}

type slot struct {
	conn  string
	name  string
	score int
	move  *engine.Move
}

type Room struct {
	id      string
	slots   [2]*slot
	rules   engine.Rules
	bc      Broadcaster
	log     *zap.Logger
	onClose func(string)

	inbox  chan Msg
	active bool
	closed atomic.Bool // set once by terminate, read by routers
	phase  Phase
	round  int

	timer    *time.Timer
	timerGen uint64

	ctx    context.Context
	cancel context.CancelFunc
}

// New seats both connections, announces the match and starts the first round.
func New(parent context.Context, cfg Config) *Room {
	ctx, cancel := context.WithCancel(parent)

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	onClose := cfg.OnClose
	if onClose == nil {
		onClose = func(string) {}
	}

	r := &Room{
		id:      cfg.ID,
		rules:   cfg.Rules,
		bc:      cfg.Broadcaster,
		log:     log.With(zap.String("room", cfg.ID)),
		onClose: onClose,
		inbox:   make(chan Msg, 64),
		active:  true,
		ctx:     ctx,
		cancel:  cancel,
	}
	for i, conn := range cfg.Conns {
		r.slots[i] = &slot{conn: conn, name: fmt.Sprintf("Player %d", i+1)}
		r.bc.JoinGroup(conn, r.id)
	}

	r.log.Info("room created", zap.String("player1", cfg.Conns[0]), zap.String("player2", cfg.Conns[1]))
	r.bc.EmitToRoom(r.id, types.EventStatus, fmt.Sprintf("New game! Opponent found. Game ID: %s", r.id))
	r.broadcastScores()
	r.startRound()

	go r.loop()
	return r
}

func (r *Room) ID() string { return r.id }

// Closed reports whether the game has ended. It is safe to call from any goroutine.
func (r *Room) Closed() bool { return r.closed.Load() }

// Send delivers m to the room. It returns false once the room goroutine has
// stopped, and refuses moves once the game has ended.
func (r *Room) Send(m Msg) bool {
	if r.ctx.Err() != nil {
		return false
	}
	if _, ok := m.(SubmitMove); ok && r.closed.Load() {
		return false
	}
	select {
	case r.inbox <- m:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case SubmitMove:
				r.submitMove(msg.ConnID, msg.Move)

			case timerFired:
				r.onTimer(msg)

			case Disconnect:
				r.handleDisconnect(msg.ConnID)

			case GetState:
				msg.Reply <- r.view()

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) shutdown() {
	r.stopTimer()
	r.active = false
	r.cancel()
}

func (r *Room) startRound() {
	if !r.active {
		return
	}
	for _, s := range r.slots {
		s.move = nil
	}
	r.round++
	r.phase = PhaseAwaitingMoves

	r.bc.EmitToRoom(r.id, types.EventStatus,
		fmt.Sprintf("New round started! Choose your move within %s.", r.rules.RoundTimeout))
	r.broadcastScores()
	r.armTimer(timerRound, r.rules.RoundTimeout)
	r.log.Debug("round started", zap.Int("round", r.round))
}

func (r *Room) submitMove(conn string, move engine.Move) {
	if !r.active || r.phase != PhaseAwaitingMoves || !move.Valid() {
		return
	}
	s := r.slotFor(conn)
	if s == nil || s.move != nil {
		return
	}

	s.move = &move
	r.bc.EmitToConnection(conn, types.EventStatus, fmt.Sprintf("You chose %s. Waiting for opponent...", move))
	r.attemptResolution()
}

func (r *Room) attemptResolution() {
	a, b := r.slots[0], r.slots[1]
	if a.move == nil || b.move == nil {
		return
	}
	r.stopTimer()

	res := types.Result{
		Outcome: types.OutcomeDraw,
		Moves:   map[string]string{a.conn: string(*a.move), b.conn: string(*b.move)},
	}
	switch engine.Resolve(*a.move, *b.move) {
	case engine.AWins:
		r.award(&res, a, b)
	case engine.BWins:
		r.award(&res, b, a)
	default:
		res.Message = fmt.Sprintf("Round over: Draw! Both chose %s.", *a.move)
	}

	r.finishRound(res)
}

func (r *Room) award(res *types.Result, winner, loser *slot) {
	winner.score++
	res.Outcome = types.OutcomeWin
	res.Winner = winner.conn
	res.Message = fmt.Sprintf("Round over: %s won! (%s beats %s)", winner.name, *winner.move, *loser.move)
}

func (r *Room) onTimer(msg timerFired) {
	// A stale generation means the timer was cancelled after it had already fired.
	if !r.active || msg.gen != r.timerGen || r.timer == nil {
		return
	}
	r.timer = nil

	switch msg.kind {
	case timerRound:
		r.onTimeout()
	case timerCooldown:
		if r.phase == PhaseResolved {
			r.startRound()
		}
	}
}

func (r *Room) onTimeout() {
	if r.phase != PhaseAwaitingMoves {
		return
	}
	a, b := r.slots[0], r.slots[1]

	var res types.Result
	switch {
	case a.move == nil && b.move == nil:
		res = types.Result{Outcome: types.OutcomeTimeoutDraw, Message: "Both players ran out of time! Draw."}
	case a.move == nil:
		res = r.timeoutWin(b, a)
	case b.move == nil:
		res = r.timeoutWin(a, b)
	default:
		return
	}

	r.finishRound(res)
}

// timeoutWin awards the round to the only player who moved in time.
func (r *Room) timeoutWin(mover, idle *slot) types.Result {
	mover.score++
	return types.Result{
		Outcome: types.OutcomeTimeoutWin,
		Winner:  mover.conn,
		Moves:   map[string]string{mover.conn: string(*mover.move)},
		Message: fmt.Sprintf("%s ran out of time. Point to %s!", idle.name, mover.name),
	}
}

func (r *Room) finishRound(res types.Result) {
	r.phase = PhaseResolved
	r.bc.EmitToRoom(r.id, types.EventResult, res)
	r.log.Debug("round resolved",
		zap.Int("round", r.round),
		zap.String("outcome", res.Outcome),
		zap.String("winner", res.Winner))

	r.checkGameOver()
	if r.active {
		r.armTimer(timerCooldown, r.rules.Cooldown)
	}
}

func (r *Room) checkGameOver() {
	var winner *slot
	for _, s := range r.slots {
		if s.score >= r.rules.WinScore {
			winner = s
			break
		}
	}
	if winner == nil {
		return
	}

	r.terminate(PhaseGameOver, types.GameOver{
		Message: fmt.Sprintf("%s has won the game with %d points! Reload the page to play a new game.", winner.name, r.rules.WinScore),
		Winner:  winner.conn,
		Reason:  types.ReasonScore,
	})
}

func (r *Room) handleDisconnect(conn string) {
	if !r.active {
		return
	}
	leaver := r.slotFor(conn)
	if leaver == nil {
		return
	}
	stayer := r.opponentOf(leaver)

	r.terminate(PhaseAbandoned, types.GameOver{
		Message: fmt.Sprintf("%s left the game. You win.", leaver.name),
		Winner:  stayer.conn,
		Reason:  types.ReasonDisconnect,
	})
}

// terminate is the single exit from the active state; OnClose runs at most once.
func (r *Room) terminate(phase Phase, over types.GameOver) {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}
	r.active = false
	r.phase = phase
	r.stopTimer()

	r.bc.EmitToRoom(r.id, types.EventGameOver, over)
	r.log.Info("room terminated",
		zap.String("phase", string(phase)),
		zap.String("winner", over.Winner),
		zap.Int("rounds", r.round))
	r.onClose(r.id)
}

func (r *Room) armTimer(kind timerKind, d time.Duration) {
	r.stopTimer()
	gen := r.timerGen
	r.timer = time.AfterFunc(d, func() {
		r.Send(timerFired{kind: kind, gen: gen})
	})
}

func (r *Room) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.timerGen++
}

func (r *Room) broadcastScores() {
	scores := make(types.Scores, len(r.slots))
	for _, s := range r.slots {
		scores[s.conn] = types.ScoreEntry{Name: s.name, Score: s.score, Room: r.id}
	}
	r.bc.EmitToRoom(r.id, types.EventScores, scores)
}

func (r *Room) slotFor(conn string) *slot {
	for _, s := range r.slots {
		if s.conn == conn {
			return s
		}
	}
	return nil
}

func (r *Room) opponentOf(s *slot) *slot {
	if r.slots[0] == s {
		return r.slots[1]
	}
	return r.slots[0]
}

func (r *Room) view() View {
	v := View{
		ID:         r.id,
		Phase:      r.phase,
		Round:      r.round,
		Active:     r.active,
		TimerArmed: r.timer != nil,
	}
	for i, s := range r.slots {
		pv := PlayerView{ConnID: s.conn, Name: s.name, Score: s.score}
		if s.move != nil {
			pv.Move = *s.move
		}
		v.Players[i] = pv
	}
	return v
}
