// Command sweep expires stale pending payment transactions once and
// exits. Useful as a cron job when the API server is not running.
package main

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/casino-escolar/api/internal/config"
	"github.com/casino-escolar/api/internal/database"
	"github.com/casino-escolar/api/internal/service"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer pool.Close()

	sweeper := service.NewSweeper(database.New(pool))
	expired, err := sweeper.SweepOnce(ctx)
	if err != nil {
		log.Fatalf("sweep: %v", err)
	}
	log.Printf("Expired %d stale payment transactions", len(expired))
}
