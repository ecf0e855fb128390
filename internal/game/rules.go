// internal/game/rules.go
package game

import (
	"context"

	"github.com/pzielinski/wordrace/internal/models"
)

// Rules is the per-variant capability a match is parameterized over: round
// generation at conversion time and the correctness predicate at answer time.
// One implementation exists per game type (see internal/words); the state
// machine itself is variant-agnostic.
type Rules interface {
	GenerateRounds(ctx context.Context, topic string, count int) ([]models.Round, error)
	IsAnswerCorrect(round models.Round, answer string) bool
}

// pointsPerPosition rewards answer speed: the Nth distinct participant to
// answer a round correctly earns pointsPerPosition[N], everyone past the
// table's end earns the last entry.
var pointsPerPosition = []int{25, 20, 15, 10, 5}

// PointsForPosition returns the award for the given 0-based correct-answer
// arrival position.
func PointsForPosition(position int) int {
	if position < 0 {
		return 0
	}
	if position < len(pointsPerPosition) {
		return pointsPerPosition[position]
	}
	return pointsPerPosition[len(pointsPerPosition)-1]
}
