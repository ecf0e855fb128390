// cmd/stats runs the asynchronous statistics consumer: it pops finished
// session records from the Redis queue and folds them into per-topic
// aggregates in postgres.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"github.com/pzielinski/wordrace/internal/database"
	"github.com/pzielinski/wordrace/internal/stats"
)

func main() {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		if err := database.ConnectURL(url); err != nil {
			log.Fatalf("%v", err)
		}
	} else {
		database.ConnectDB()
	}
	defer database.DB.Close()

	consumer := stats.NewConsumer()

	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
		<-sigs
		consumer.Stop()
	}()

	consumer.Run()
}
