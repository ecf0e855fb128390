// internal/models/participant.go
package models

import (
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Participant is one player inside an ActiveGame. It is created when a
// waitroom converts and lives until the match is torn down; the historical
// record persisted at that point is GameSessionRecord.
type Participant struct {
	UserID    uuid.UUID       `json:"id"`
	Username  string          `json:"username"`
	Connected bool            `json:"connected"`
	Conn      *websocket.Conn `json:"-"`

	Score       int `json:"score"`
	GoodAnswers int `json:"goodAnswers"`

	// LastAnsweredRound latches the round index this participant last answered
	// in, so a second submission for the same round never touches the counters.
	// -1 until the first answer.
	LastAnsweredRound int    `json:"-"`
	LastAnswer        string `json:"-"`
	LastPoints        int    `json:"-"`
}
