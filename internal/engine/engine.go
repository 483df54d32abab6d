package engine

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidMove = errors.New("invalid move")
var ErrInvalidRules = errors.New("invalid rules")

type Move string

const (
	MoveRock     Move = "rock"
	MovePaper    Move = "paper"
	MoveScissors Move = "scissors"
)

// Outcome is reported from the point of view of the first argument to Resolve.
type Outcome int

const (
	Draw Outcome = iota
	AWins
	BWins
)

func (o Outcome) String() string {
	switch o {
	case Draw:
		return "draw"
	case AWins:
		return "a_wins"
	case BWins:
		return "b_wins"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

func ParseMove(s string) (Move, error) {
	m := Move(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMove, s)
	}
	return m, nil
}

func (m Move) Valid() bool {
	_, ok := beats[m]
	return ok
}

// Beats reports whether m defeats other. Invalid moves never beat anything.
func (m Move) Beats(other Move) bool {
	victim, ok := beats[m]
	return ok && victim == other
}

func Resolve(a, b Move) Outcome {
	if a == b {
		return Draw
	}
	if a.Beats(b) {
		return AWins
	}
	return BWins
}
