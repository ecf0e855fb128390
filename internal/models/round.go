// internal/models/round.go
package models

// Round is a single question/challenge instance inside a match. Rounds are
// generated up front when a waitroom converts and are never mutated afterwards.
//
// The race variant fills Prompt + Options, the finding-words variant fills
// Letters. Answer always holds the ground-truth word.
type Round struct {
	Prompt  string   `json:"question,omitempty"`
	Options []string `json:"options,omitempty"`
	Letters []string `json:"letters,omitempty"`
	Answer  string   `json:"answer"`
}
