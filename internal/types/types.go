package types

import "encoding/json"

type ClientMessage struct {
	Type string `json:"type"`
	Move string `json:"move,omitempty"`
}

type ServerMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}
