package main

import (
	"context"
	"log"

	"lumigram/internal/app"
)

func main() {
	if err := app.Run(context.Background()); err != nil {
		log.Fatalf("lumigram: %v", err)
	}
}
