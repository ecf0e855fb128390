// internal/words/findingwords.go
package words

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/pzielinski/wordrace/internal/models"
)

// FindingWordsRules generates letter-pool rounds: players see a shuffled set
// of letters and must build a recognized word of the topic from them.
//
// A FindingWordsRules value is scoped to one match: GenerateRounds memoizes
// the topic's vocabulary so IsAnswerCorrect can recognize any valid word of
// the set, not only the round's target.
type FindingWordsRules struct {
	provider Provider
	rng      *rand.Rand
	known    map[string]struct{}
}

func NewFindingWordsRules(provider Provider, rng *rand.Rand) *FindingWordsRules {
	return &FindingWordsRules{
		provider: provider,
		rng:      rng,
		known:    make(map[string]struct{}),
	}
}

func (f *FindingWordsRules) GenerateRounds(ctx context.Context, topic string, count int) ([]models.Round, error) {
	pool, err := f.provider.Words(ctx, topic)
	if err != nil {
		return nil, err
	}
	if len(pool) < count {
		return nil, fmt.Errorf("%w: topic %q has %d words, need %d", ErrPoolTooSmall, topic, len(pool), count)
	}

	for _, w := range pool {
		f.known[strings.ToLower(w.Term)] = struct{}{}
	}

	f.rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	rounds := make([]models.Round, 0, count)
	for i := 0; i < count; i++ {
		word := strings.ToLower(pool[i].Term)
		letters := strings.Split(word, "")
		f.rng.Shuffle(len(letters), func(a, b int) {
			letters[a], letters[b] = letters[b], letters[a]
		})
		rounds = append(rounds, models.Round{
			Letters: letters,
			Answer:  word,
		})
	}
	return rounds, nil
}

// IsAnswerCorrect accepts any recognized word of the set whose letters all
// appear in the round's pool.
func (f *FindingWordsRules) IsAnswerCorrect(round models.Round, answer string) bool {
	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer == "" {
		return false
	}
	inPool := make(map[string]bool, len(round.Letters))
	for _, l := range round.Letters {
		inPool[l] = true
	}
	for _, r := range answer {
		if !inPool[string(r)] {
			return false
		}
	}
	_, recognized := f.known[answer]
	return recognized
}
