package tasks

import (
	"context"
	"log"
	"time"

	"greendrake/trueque/internal/services"
)

// RunLocalSweeper sweeps expired auctions every interval until ctx is done.
// It stands in for the asynq scheduler when Redis is not configured.
func RunLocalSweeper(ctx context.Context, negotiation services.INegotiationService, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("Local auction sweeper running every %s", interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("Local auction sweeper stopped.")
			return
		case <-ticker.C:
			if _, err := negotiation.SweepExpiredAuctions(ctx); err != nil && ctx.Err() == nil {
				log.Printf("Auction sweep failed: %v", err)
			}
		}
	}
}
