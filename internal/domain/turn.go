package domain

import "time"

// Turn is one completed question/answer exchange. The conversation log
// appends it once per successful answer and never mutates it.
type Turn struct {
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	AnsweredAt time.Time `json:"answered_at"`
}

// TurnLogger is the outward logging collaborator. Implementations own
// their write-concurrency safety (serialized appends).
type TurnLogger interface {
	Append(userID string, turn Turn)
}

// TurnLoggerFunc adapts a function to TurnLogger.
type TurnLoggerFunc func(userID string, turn Turn)

// Append implements TurnLogger.
func (f TurnLoggerFunc) Append(userID string, turn Turn) { f(userID, turn) }
