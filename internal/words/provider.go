// internal/words/provider.go
package words

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Word is one dictionary entry of a topic's word set: the term players see and
// its translation.
type Word struct {
	ID          int
	Term        string
	Translation string
}

// Provider supplies the word pool for a topic. The production implementation
// is backed by postgres (internal/database); StaticProvider covers tests and
// database-less runs.
type Provider interface {
	Words(ctx context.Context, topic string) ([]Word, error)
}

// ErrUnknownTopic is returned when a topic has no word set at all.
var ErrUnknownTopic = errors.New("unknown topic")

// ErrPoolTooSmall is returned when a topic's pool cannot fill the requested
// round count without repeating a correct answer. Callers are expected to
// guarantee pool size; this is a configuration error, not a gameplay one.
var ErrPoolTooSmall = errors.New("word pool too small for requested round count")

// StaticProvider serves word sets from an in-memory map.
type StaticProvider struct {
	mu   sync.RWMutex
	sets map[string][]Word
}

func NewStaticProvider(sets map[string][]Word) *StaticProvider {
	if sets == nil {
		sets = make(map[string][]Word)
	}
	return &StaticProvider{sets: sets}
}

func (p *StaticProvider) Words(_ context.Context, topic string) ([]Word, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	set, ok := p.sets[topic]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
	out := make([]Word, len(set))
	copy(out, set)
	return out, nil
}

// Topics lists the known topics, sorted. Used by the sample-data serve path.
func (p *StaticProvider) Topics() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	topics := make([]string, 0, len(p.sets))
	for t := range p.sets {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// SampleSets is a small built-in dictionary so the server can run without
// postgres. Swap in the database-backed provider in production.
func SampleSets() map[string][]Word {
	return map[string][]Word{
		"animals": {
			{ID: 1, Term: "cat", Translation: "kot"},
			{ID: 2, Term: "dog", Translation: "pies"},
			{ID: 3, Term: "horse", Translation: "koń"},
			{ID: 4, Term: "cow", Translation: "krowa"},
			{ID: 5, Term: "duck", Translation: "kaczka"},
			{ID: 6, Term: "sheep", Translation: "owca"},
			{ID: 7, Term: "goat", Translation: "koza"},
			{ID: 8, Term: "rabbit", Translation: "królik"},
		},
		"food": {
			{ID: 9, Term: "bread", Translation: "chleb"},
			{ID: 10, Term: "milk", Translation: "mleko"},
			{ID: 11, Term: "cheese", Translation: "ser"},
			{ID: 12, Term: "apple", Translation: "jabłko"},
			{ID: 13, Term: "soup", Translation: "zupa"},
			{ID: 14, Term: "butter", Translation: "masło"},
			{ID: 15, Term: "egg", Translation: "jajko"},
			{ID: 16, Term: "rice", Translation: "ryż"},
		},
	}
}
