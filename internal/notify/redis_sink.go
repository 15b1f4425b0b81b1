package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"greendrake/trueque/internal/models"
)

// EventsChannel carries every event; ListingChannel carries one listing's events.
const EventsChannel = "market:events"

// ListingChannel returns the pub/sub channel for one listing.
func ListingChannel(listingID string) string {
	return "market:listing:" + listingID
}

// RedisSink publishes events on Redis pub/sub for live subscribers.
type RedisSink struct {
	client redis.UniversalClient
}

// NewRedisSink creates a new RedisSink.
func NewRedisSink(client redis.UniversalClient) *RedisSink {
	return &RedisSink{client: client}
}

func (s *RedisSink) Publish(ctx context.Context, event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Publish(ctx, EventsChannel, payload)
	pipe.Publish(ctx, ListingChannel(event.ListingID), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish %s for listing %s: %w", event.Type, event.ListingID, err)
	}
	return nil
}
