package types

// Server -> Client events
//
// hello:     Hello, sent once when the socket opens
// status:    string, free-text progress message
// scores:    Scores, or null while waiting for an opponent
// result:    Result
// game-over: GameOver, the room is gone after this
//
// Client -> Server
//
// make-move: { "type": "make-move", "move": "rock" | "paper" | "scissors" }

const (
	EventHello    = "hello"
	EventStatus   = "status"
	EventScores   = "scores"
	EventResult   = "result"
	EventGameOver = "game-over"

	ClientMakeMove = "make-move"
)

type Hello struct {
	ID string `json:"id"`
}

type Result struct {
	Message string            `json:"message"`
	Winner  string            `json:"winner,omitempty"` // connection id, empty on a draw
	Outcome string            `json:"outcome"`          // "win" | "draw" | "timeout_win" | "timeout_draw"
	Moves   map[string]string `json:"moves,omitempty"`
}

const (
	OutcomeWin         = "win"
	OutcomeDraw        = "draw"
	OutcomeTimeoutWin  = "timeout_win"
	OutcomeTimeoutDraw = "timeout_draw"
)

type GameOver struct {
	Message string `json:"message"`
	Winner  string `json:"winner"`
	Reason  string `json:"reason"` // "score" | "disconnect"
}

const (
	ReasonScore      = "score"
	ReasonDisconnect = "disconnect"
)
