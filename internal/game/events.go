// internal/game/events.go
package game

// EventType is an enum-like type for broadcasting match progression events.
type EventType string

const (
	EventGameStarting EventType = "game_starting"
	EventNewQuestion  EventType = "new_question"
	EventRoundResult  EventType = "round_result"
	EventFinalResult  EventType = "final_result"
	EventGameEnded    EventType = "game_ended" // benign early-teardown notice
)

// ScoreboardEntry is one line of the final ranking. Participants with equal
// scores share a place.
type ScoreboardEntry struct {
	Username string `json:"username"`
	Score    int    `json:"score"`
	Place    int    `json:"place"`
}

// Event is the wire shape for every scheduler broadcast. Fields are populated
// per type and omitted otherwise, so one struct covers the whole protocol.
type Event struct {
	Type EventType `json:"type"`

	// game_starting
	Players []string `json:"players,omitempty"`

	// new_question
	Question   string   `json:"question,omitempty"`
	Options    []string `json:"options,omitempty"`
	Letters    []string `json:"letters,omitempty"`
	Round      *int     `json:"round,omitempty"`
	TimeoutSec int      `json:"timeout,omitempty"`

	// round_result (sent per participant)
	Correct string `json:"correct,omitempty"`
	Your    string `json:"your,omitempty"`
	Points  *int   `json:"points,omitempty"`
	Score   *int   `json:"score,omitempty"`

	// final_result
	Scoreboard []ScoreboardEntry `json:"scoreboard,omitempty"`
}

func intPtr(v int) *int { return &v }
