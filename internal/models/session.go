// internal/models/session.go
package models

import "github.com/google/uuid"

// GameSessionRecord is the historical record of one participant's finished
// (or abandoned) match. It is written fire-and-forget: once to postgres and
// once onto the redis results queue for downstream statistics.
type GameSessionRecord struct {
	UserID      uuid.UUID   `json:"user_id"`
	GameType    string      `json:"game_type"`
	Topic       string      `json:"topic"`
	Score       int         `json:"score"`
	GoodAnswers int         `json:"good_answers"`
	Accuracy    float64     `json:"accuracy"`
	DurationSec int         `json:"duration_sec"`
	Opponents   []uuid.UUID `json:"opponents"`
	Timestamp   int64       `json:"timestamp"`
}
