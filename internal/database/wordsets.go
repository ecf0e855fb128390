package database

import (
	"context"
	"fmt"

	"github.com/pzielinski/wordrace/internal/words"
)

// WordSetProvider serves vocabulary pools from the word_sets table. It
// satisfies words.Provider so round generation can run off the database
// instead of the built-in sample sets.
type WordSetProvider struct{}

func NewWordSetProvider() *WordSetProvider {
	return &WordSetProvider{}
}

func (p *WordSetProvider) Words(ctx context.Context, topic string) ([]words.Word, error) {
	q := `
	SELECT id, term, translation
	FROM word_sets
	WHERE topic=$1
	ORDER BY id
	`
	rows, err := DB.Query(ctx, q, topic)
	if err != nil {
		return nil, fmt.Errorf("failed to query word set %q: %w", topic, err)
	}
	defer rows.Close()

	var pool []words.Word
	for rows.Next() {
		var w words.Word
		if err := rows.Scan(&w.ID, &w.Term, &w.Translation); err != nil {
			return nil, err
		}
		pool = append(pool, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, words.ErrUnknownTopic
	}
	return pool, nil
}

// Topics lists the distinct topics available in the word_sets table.
func (p *WordSetProvider) Topics(ctx context.Context) ([]string, error) {
	rows, err := DB.Query(ctx, `SELECT DISTINCT topic FROM word_sets ORDER BY topic`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var topics []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}
