// internal/models/user.go
package models

import "github.com/google/uuid"

type User struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Password string    `json:"password,omitempty"`
	Username string    `json:"username"`

	IsEphemeral bool `json:"is_ephemeral"`

	// Score is the lifetime score across all game types; Level is derived from
	// it by the persistence layer when session records are inserted.
	Score int `json:"score"`
	Level int `json:"level"`
}
