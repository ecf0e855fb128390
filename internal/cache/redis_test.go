package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pzielinski/wordrace/internal/models"
)

func TestConnectAndPublishSessionRecord(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, ConnectRedisAddr(mr.Addr(), 0))
	t.Cleanup(func() { _ = Rdb.Close() })

	rec := models.GameSessionRecord{
		UserID:      uuid.New(),
		GameType:    "race",
		Topic:       "animals",
		Score:       65,
		GoodAnswers: 3,
		Accuracy:    0.6,
		DurationSec: 58,
		Timestamp:   time.Now().UnixMilli(),
	}
	require.NoError(t, PublishSessionRecord(context.Background(), rec))

	vals, err := mr.List(DefaultQueueName)
	require.NoError(t, err)
	require.Len(t, vals, 1)

	var got models.GameSessionRecord
	require.NoError(t, json.Unmarshal([]byte(vals[0]), &got))
	assert.Equal(t, rec.UserID, got.UserID)
	assert.Equal(t, "animals", got.Topic)
	assert.Equal(t, 65, got.Score)
}

func TestPublishHonorsQueueNameOverride(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, ConnectRedisAddr(mr.Addr(), 0))
	t.Cleanup(func() { _ = Rdb.Close() })

	t.Setenv("SESSION_QUEUE_NAME", "custom_queue")
	rec := models.GameSessionRecord{UserID: uuid.New(), GameType: "finding_words", Topic: "food"}
	require.NoError(t, PublishSessionRecord(context.Background(), rec))

	vals, err := mr.List("custom_queue")
	require.NoError(t, err)
	assert.Len(t, vals, 1)
}

func TestConnectRedisAddrFailsFast(t *testing.T) {
	err := ConnectRedisAddr("127.0.0.1:1", 0)
	assert.Error(t, err)
}
