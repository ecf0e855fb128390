// internal/words/words_test.go
package words

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProvider() *StaticProvider {
	return NewStaticProvider(SampleSets())
}

func TestRaceRoundsHaveDistinctAnswersAndFourOptions(t *testing.T) {
	rules := NewRaceRules(testProvider(), rand.New(rand.NewSource(1)))

	rounds, err := rules.GenerateRounds(context.Background(), "animals", 5)
	require.NoError(t, err)
	require.Len(t, rounds, 5)

	seen := make(map[string]bool)
	for _, round := range rounds {
		assert.NotEmpty(t, round.Prompt)
		assert.Len(t, round.Options, 4)
		assert.Contains(t, round.Options, round.Answer)
		assert.False(t, seen[round.Answer], "correct answer %q repeated", round.Answer)
		seen[round.Answer] = true

		optSeen := make(map[string]bool)
		for _, opt := range round.Options {
			assert.False(t, optSeen[opt], "option %q repeated in one round", opt)
			optSeen[opt] = true
		}
	}
}

func TestRaceUnknownTopic(t *testing.T) {
	rules := NewRaceRules(testProvider(), rand.New(rand.NewSource(1)))

	_, err := rules.GenerateRounds(context.Background(), "astronomy", 5)
	assert.ErrorIs(t, err, ErrUnknownTopic)
}

func TestRacePoolTooSmall(t *testing.T) {
	small := NewStaticProvider(map[string][]Word{
		"tiny": {
			{ID: 1, Term: "cat", Translation: "kot"},
			{ID: 2, Term: "dog", Translation: "pies"},
		},
	})
	rules := NewRaceRules(small, rand.New(rand.NewSource(1)))

	_, err := rules.GenerateRounds(context.Background(), "tiny", 5)
	assert.ErrorIs(t, err, ErrPoolTooSmall)
}

func TestRaceAnswerCheck(t *testing.T) {
	rules := NewRaceRules(testProvider(), rand.New(rand.NewSource(7)))
	rounds, err := rules.GenerateRounds(context.Background(), "food", 3)
	require.NoError(t, err)

	round := rounds[0]
	assert.True(t, rules.IsAnswerCorrect(round, round.Answer))
	assert.False(t, rules.IsAnswerCorrect(round, ""))
	for _, opt := range round.Options {
		if opt != round.Answer {
			assert.False(t, rules.IsAnswerCorrect(round, opt))
		}
	}
}

func TestFindingWordsLettersSpellTheAnswer(t *testing.T) {
	rules := NewFindingWordsRules(testProvider(), rand.New(rand.NewSource(3)))

	rounds, err := rules.GenerateRounds(context.Background(), "animals", 3)
	require.NoError(t, err)
	require.Len(t, rounds, 3)

	for _, round := range rounds {
		assert.Len(t, round.Letters, len(round.Answer))

		counts := make(map[string]int)
		for _, l := range round.Letters {
			counts[l]++
		}
		for _, r := range round.Answer {
			counts[string(r)]--
		}
		for l, n := range counts {
			assert.Zero(t, n, "letter %q count mismatch", l)
		}
	}
}

func TestFindingWordsAcceptsAnyRecognizedWordFromPool(t *testing.T) {
	provider := NewStaticProvider(map[string][]Word{
		"letters": {
			{ID: 1, Term: "stream", Translation: "strumień"},
			{ID: 2, Term: "mast", Translation: "maszt"},
			{ID: 3, Term: "tame", Translation: "oswojony"},
			{ID: 4, Term: "xyz", Translation: "xyz"},
		},
	})
	rules := NewFindingWordsRules(provider, rand.New(rand.NewSource(5)))

	rounds, err := rules.GenerateRounds(context.Background(), "letters", 4)
	require.NoError(t, err)

	var streamRound *int
	for i, round := range rounds {
		if round.Answer == "stream" {
			streamRound = &i
			break
		}
	}
	require.NotNil(t, streamRound, "stream round must be generated")
	round := rounds[*streamRound]

	// target word and other known words buildable from the letters both count
	assert.True(t, rules.IsAnswerCorrect(round, "stream"))
	assert.True(t, rules.IsAnswerCorrect(round, "MAST"), "case insensitive")
	assert.True(t, rules.IsAnswerCorrect(round, "  tame "), "whitespace trimmed")

	// letters outside the pool fail even for known words
	assert.False(t, rules.IsAnswerCorrect(round, "xyz"))
	// buildable but unknown strings fail
	assert.False(t, rules.IsAnswerCorrect(round, "mates"))
	assert.False(t, rules.IsAnswerCorrect(round, ""))
}

func TestStaticProviderCopiesPool(t *testing.T) {
	provider := testProvider()
	first, err := provider.Words(context.Background(), "animals")
	require.NoError(t, err)

	first[0].Term = "mutated"

	second, err := provider.Words(context.Background(), "animals")
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", second[0].Term, "callers must not share backing arrays")
}

func TestStaticProviderTopics(t *testing.T) {
	assert.Equal(t, []string{"animals", "food"}, testProvider().Topics())
}
