package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pzielinski/wordrace/internal/models"
)

// InsertGameSession persists one participant's finished-match record and
// folds the earned score into the user's lifetime total in the same
// transaction, recomputing level from the new total.
func InsertGameSession(ctx context.Context, rec models.GameSessionRecord) error {
	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Errorf("failed to generate session id: %w", err)
	}

	insertQ := `
	INSERT INTO game_sessions
		(id, user_id, game_type, topic, score, good_answers, accuracy, duration_sec, opponents, recorded_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, to_timestamp($10 / 1000.0))
	`
	updateQ := `
	UPDATE users
	SET score = score + $1,
	    level = (score + $1) / $2 + 1
	WHERE id = $3
	`

	err = pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, e := tx.Exec(ctx, insertQ,
			id, rec.UserID, rec.GameType, rec.Topic,
			rec.Score, rec.GoodAnswers, rec.Accuracy, rec.DurationSec,
			rec.Opponents, rec.Timestamp,
		); e != nil {
			return e
		}
		_, e := tx.Exec(ctx, updateQ, rec.Score, scorePerLevel, rec.UserID)
		return e
	})
	if err != nil {
		return fmt.Errorf("failed to insert game session: %w", err)
	}
	return nil
}

// GetUserSessions returns a user's most recent session records, newest first.
func GetUserSessions(ctx context.Context, userID uuid.UUID, limit int) ([]models.GameSessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `
	SELECT user_id, game_type, topic, score, good_answers, accuracy, duration_sec, opponents,
	       (extract(epoch FROM recorded_at) * 1000)::bigint
	FROM game_sessions
	WHERE user_id=$1
	ORDER BY recorded_at DESC
	LIMIT $2
	`
	rows, err := DB.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []models.GameSessionRecord
	for rows.Next() {
		var rec models.GameSessionRecord
		if err := rows.Scan(
			&rec.UserID, &rec.GameType, &rec.Topic, &rec.Score, &rec.GoodAnswers,
			&rec.Accuracy, &rec.DurationSec, &rec.Opponents, &rec.Timestamp,
		); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
