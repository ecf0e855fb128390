// internal/words/race.go
package words

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/pzielinski/wordrace/internal/models"
)

// raceOptionCount is how many translations are shown per question, the correct
// one included.
const raceOptionCount = 4

// RaceRules generates translation-race rounds: one term, four candidate
// translations, answer by picking the right one.
type RaceRules struct {
	provider Provider
	rng      *rand.Rand
}

// NewRaceRules builds the race variant. rng is injected so tests can seed it;
// pass rand.New(rand.NewSource(time.Now().UnixNano())) in production.
func NewRaceRules(provider Provider, rng *rand.Rand) *RaceRules {
	return &RaceRules{provider: provider, rng: rng}
}

func (r *RaceRules) GenerateRounds(ctx context.Context, topic string, count int) ([]models.Round, error) {
	pool, err := r.provider.Words(ctx, topic)
	if err != nil {
		return nil, err
	}
	if len(pool) < count {
		return nil, fmt.Errorf("%w: topic %q has %d words, need %d", ErrPoolTooSmall, topic, len(pool), count)
	}
	if len(pool) < raceOptionCount {
		return nil, fmt.Errorf("%w: topic %q has %d words, need %d for distractors", ErrPoolTooSmall, topic, len(pool), raceOptionCount)
	}

	r.rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	rounds := make([]models.Round, 0, count)
	for i := 0; i < count; i++ {
		// pool was shuffled and each round consumes a distinct entry, so a
		// correct answer never repeats within one generated list.
		word := pool[i]

		distractors := make([]string, 0, raceOptionCount-1)
		for _, j := range r.rng.Perm(len(pool)) {
			if j == i {
				continue
			}
			distractors = append(distractors, pool[j].Translation)
			if len(distractors) == raceOptionCount-1 {
				break
			}
		}

		options := append(distractors, word.Translation)
		r.rng.Shuffle(len(options), func(a, b int) {
			options[a], options[b] = options[b], options[a]
		})

		rounds = append(rounds, models.Round{
			Prompt:  word.Term,
			Options: options,
			Answer:  word.Translation,
		})
	}
	return rounds, nil
}

// IsAnswerCorrect checks the picked translation against the round's answer.
func (r *RaceRules) IsAnswerCorrect(round models.Round, answer string) bool {
	return answer != "" && answer == round.Answer
}
