package main

import (
	"log"

	_ "github.com/joho/godotenv/autoload"

	"github.com/pzielinski/wordrace/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Fatalf("%v", err)
	}
}
