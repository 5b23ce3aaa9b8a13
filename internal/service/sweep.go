package service

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// SweepStore defines the DB methods the expiry sweep needs.
// Satisfied by *database.Queries.
type SweepStore interface {
	ExpirePaymentTransactions(ctx context.Context, before pgtype.Timestamptz) ([]string, error)
}

// Sweeper marks stale PENDING payment transactions EXPIRED. It is the
// only writer of that transition; the orchestrator just stamps
// expires_at. Order lines under an expired transaction stay PENDING:
// payment expired, not fulfillment.
type Sweeper struct {
	store SweepStore
	now   func() time.Time
}

// NewSweeper creates a Sweeper.
func NewSweeper(store SweepStore) *Sweeper {
	return &Sweeper{store: store, now: time.Now}
}

// SweepOnce expires everything past its deadline and returns the
// affected transaction ids.
func (s *Sweeper) SweepOnce(ctx context.Context) ([]string, error) {
	ids, err := s.store.ExpirePaymentTransactions(ctx, pgtype.Timestamptz{Time: s.now(), Valid: true})
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		log.Printf("expired %d stale payment transactions: %v", len(ids), ids)
	}
	return ids, nil
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				log.Printf("ERROR: expiry sweep: %v", err)
			}
		}
	}
}
