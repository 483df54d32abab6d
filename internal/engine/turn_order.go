package engine

// beats maps each move to the single move it defeats.
var beats = map[Move]Move{
	MoveRock:     MoveScissors,
	MoveScissors: MovePaper,
	MovePaper:    MoveRock,
}

var Moves = []Move{MoveRock, MovePaper, MoveScissors}
