package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"greendrake/trueque/internal/models"
)

// DefaultInboxSize is how many messages are kept per user.
const DefaultInboxSize = 100

// InboxMessage is a short notice shown to a user. It carries ids, never amounts.
type InboxMessage struct {
	Type      models.EventType `json:"type"`
	ListingID string           `json:"listing_id"`
	OfferID   string           `json:"offer_id,omitempty"`
	Text      string           `json:"text"`
	At        time.Time        `json:"at"`
}

// IInbox stores per-user notices, newest first. Deliver writes one message per
// user id in the batch, all or none.
type IInbox interface {
	Deliver(ctx context.Context, batch map[string]InboxMessage) error
	Recent(ctx context.Context, userID string, limit int64) ([]InboxMessage, error)
}

// InboxKey is the Redis list holding a user's notices.
func InboxKey(userID string) string {
	return "market:inbox:" + userID
}

// RedisInbox keeps each inbox as a capped Redis list.
type RedisInbox struct {
	rdb  redis.UniversalClient
	size int64
}

// NewRedisInbox creates a new RedisInbox. size <= 0 means DefaultInboxSize.
func NewRedisInbox(rdb redis.UniversalClient, size int64) *RedisInbox {
	if size <= 0 {
		size = DefaultInboxSize
	}
	return &RedisInbox{rdb: rdb, size: size}
}

func (b *RedisInbox) Deliver(ctx context.Context, batch map[string]InboxMessage) error {
	if len(batch) == 0 {
		return nil
	}
	userIDs := make([]string, 0, len(batch))
	for userID := range batch {
		userIDs = append(userIDs, userID)
	}
	sort.Strings(userIDs)

	pipe := b.rdb.TxPipeline()
	for _, userID := range userIDs {
		payload, err := json.Marshal(batch[userID])
		if err != nil {
			return fmt.Errorf("failed to marshal inbox message for %s: %w", userID, err)
		}
		key := InboxKey(userID)
		pipe.LPush(ctx, key, payload)
		pipe.LTrim(ctx, key, 0, b.size-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to deliver to %d inboxes: %w", len(userIDs), err)
	}
	return nil
}

func (b *RedisInbox) Recent(ctx context.Context, userID string, limit int64) ([]InboxMessage, error) {
	if limit <= 0 || limit > b.size {
		limit = b.size
	}
	raw, err := b.rdb.LRange(ctx, InboxKey(userID), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read inbox of %s: %w", userID, err)
	}
	out := make([]InboxMessage, 0, len(raw))
	for _, r := range raw {
		var msg InboxMessage
		if err := json.Unmarshal([]byte(r), &msg); err != nil {
			// Skip entries written by an older format.
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}
