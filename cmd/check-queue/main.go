package main

import (
	"context"
	"fmt"
	"log"

	"quarters-data/internal/config"
	"quarters-data/internal/database"
	"quarters-data/internal/repository"
)

// Verifies the dense-sequence invariant of the queue ledger: sequences must
// be exactly [1..N] with no gaps or duplicates.
func main() {
	cfg := config.Load()
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Cannot connect to database: %v", err)
	}
	defer db.Close()

	queueRepo := repository.NewPostgresQueueRepository(db)
	seqs, err := queueRepo.Sequences(context.Background())
	if err != nil {
		log.Fatalf("Failed to read sequences: %v", err)
	}

	fmt.Printf("Queue entries: %d\n", len(seqs))

	seen := map[int]bool{}
	var duplicates, gaps []int
	for _, v := range seqs {
		if seen[v] {
			duplicates = append(duplicates, v)
		}
		seen[v] = true
	}
	for want := 1; want <= len(seqs); want++ {
		if !seen[want] {
			gaps = append(gaps, want)
		}
	}

	if len(gaps) == 0 && len(duplicates) == 0 {
		fmt.Println("✅ Sequence is dense [1..N]")
		return
	}
	if len(gaps) > 0 {
		fmt.Printf("❌ Missing sequences: %v\n", gaps)
	}
	if len(duplicates) > 0 {
		fmt.Printf("❌ Duplicate sequences: %v\n", duplicates)
	}
	log.Fatal("queue sequence invariant violated")
}
