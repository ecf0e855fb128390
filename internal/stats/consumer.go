// Package stats consumes finished-session records from the Redis queue and
// maintains per-topic aggregate statistics in postgres. It runs as its own
// process so heavy write bursts never touch the match coordinator.
package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/pzielinski/wordrace/internal/database"
	"github.com/pzielinski/wordrace/internal/models"
)

// Consumer pops session records off the Redis results queue, accumulates them
// in a batch, and flushes aggregates to the database.
type Consumer struct {
	redisClient *redis.Client
	queueName   string
	batchSize   int
	flushDelay  time.Duration

	batchMu sync.Mutex
	batch   []models.GameSessionRecord

	// flushFn defaults to the database flush; tests substitute it.
	flushFn func([]models.GameSessionRecord) error

	ctx      context.Context
	cancelFn context.CancelFunc
}

// NewConsumer constructs a Consumer from environment variables or defaults.
func NewConsumer() *Consumer {
	batchSize := getEnvInt("STATS_BATCH_SIZE", 20)
	flushMs := getEnvInt("STATS_FLUSH_MS", 500)

	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	return NewConsumerWith(rdb, getEnv("SESSION_QUEUE_NAME", "wordrace_sessions"), batchSize, time.Duration(flushMs)*time.Millisecond)
}

// NewConsumerWith wires a Consumer over an existing Redis client.
func NewConsumerWith(rdb *redis.Client, queueName string, batchSize int, flushDelay time.Duration) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		redisClient: rdb,
		queueName:   queueName,
		batchSize:   batchSize,
		flushDelay:  flushDelay,
		batch:       make([]models.GameSessionRecord, 0, batchSize),
		ctx:         ctx,
		cancelFn:    cancel,
	}
	c.flushFn = c.flushBatchToDB
	return c
}

// Run blocks reading the queue until Stop is called.
func (c *Consumer) Run() {
	go c.readRedisLoop()
	log.Println("wordrace-stats consumer started.")
	<-c.ctx.Done()
	c.flush()
	log.Println("wordrace-stats consumer shutting down.")
}

// Stop cancels the consumer's loops.
func (c *Consumer) Stop() {
	c.cancelFn()
}

// readRedisLoop continuously uses BLPop to retrieve records from the queue,
// flushing the batch on size or on the flush ticker.
func (c *Consumer) readRedisLoop() {
	ticker := time.NewTicker(c.flushDelay)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.flush()
		default:
			// 3-second BLPop timeout so context cancellation is handled
			res, err := c.redisClient.BLPop(c.ctx, 3*time.Second, c.queueName).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				if c.ctx.Err() != nil {
					return
				}
				log.Printf("[ERROR] BLPop: %v\n", err)
				continue
			}
			if len(res) < 2 {
				continue
			}

			var rec models.GameSessionRecord
			if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
				log.Printf("invalid session record: %v\n", err)
				continue
			}
			c.appendToBatch(rec)
		}
	}
}

// appendToBatch adds a record and flushes if the threshold is reached.
func (c *Consumer) appendToBatch(rec models.GameSessionRecord) {
	c.batchMu.Lock()
	full := false
	c.batch = append(c.batch, rec)
	if len(c.batch) >= c.batchSize {
		full = true
	}
	c.batchMu.Unlock()
	if full {
		c.flush()
	}
}

// flush drains the batch through flushFn.
func (c *Consumer) flush() {
	c.batchMu.Lock()
	if len(c.batch) == 0 {
		c.batchMu.Unlock()
		return
	}
	batchCopy := make([]models.GameSessionRecord, len(c.batch))
	copy(batchCopy, c.batch)
	c.batch = c.batch[:0]
	c.batchMu.Unlock()

	if err := c.flushFn(batchCopy); err != nil {
		log.Printf("[ERROR] flush: %v\n", err)
	} else {
		log.Printf("Flushed %d session records.\n", len(batchCopy))
	}
}

// flushBatchToDB folds the batch into the topic_stats aggregates in a single
// transaction.
func (c *Consumer) flushBatchToDB(batch []models.GameSessionRecord) error {
	ctx := context.Background()
	return pgx.BeginTxFunc(ctx, database.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range batch {
			if err := upsertTopicStatsTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("upsertTopicStatsTx: %w", err)
			}
		}
		return nil
	})
}

func upsertTopicStatsTx(ctx context.Context, tx pgx.Tx, rec models.GameSessionRecord) error {
	q := `
		INSERT INTO topic_stats (game_type, topic, plays, total_score, total_good_answers, total_accuracy)
		VALUES ($1, $2, 1, $3, $4, $5)
		ON CONFLICT (game_type, topic)
		DO UPDATE SET
			plays = topic_stats.plays + 1,
			total_score = topic_stats.total_score + EXCLUDED.total_score,
			total_good_answers = topic_stats.total_good_answers + EXCLUDED.total_good_answers,
			total_accuracy = topic_stats.total_accuracy + EXCLUDED.total_accuracy
	`
	_, err := tx.Exec(ctx, q, rec.GameType, rec.Topic, rec.Score, rec.GoodAnswers, rec.Accuracy)
	return err
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
