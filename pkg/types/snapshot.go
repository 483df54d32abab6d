package types

// Scores is the "scores" payload, keyed by connection id.
type Scores map[string]ScoreEntry

type ScoreEntry struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
	Room  string `json:"room"`
}
