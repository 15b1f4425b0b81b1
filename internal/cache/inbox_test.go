package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greendrake/trueque/internal/models"
)

func testRedis(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping Redis tests")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	require.NoError(t, rdb.Ping(context.Background()).Err())
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisInbox_DeliverAndTrim(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	user := "inbox-test-" + time.Now().Format("150405.000000")
	t.Cleanup(func() { rdb.Del(context.Background(), InboxKey(user)) })

	inbox := NewRedisInbox(rdb, 3)
	for _, id := range []string{"l1", "l2", "l3", "l4"} {
		require.NoError(t, inbox.Deliver(ctx, map[string]InboxMessage{user: {
			Type:      models.EventOfferSubmitted,
			ListingID: id,
			Text:      "New offer on listing " + id,
			At:        time.Now().UTC(),
		}}))
	}

	msgs, err := inbox.Recent(ctx, user, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "l4", msgs[0].ListingID)
	assert.Equal(t, "l2", msgs[2].ListingID)

	n, err := rdb.LLen(ctx, InboxKey(user)).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestRedisInbox_DeliverBatch(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	suffix := time.Now().Format("150405.000000")
	owner, bidder := "inbox-owner-"+suffix, "inbox-bidder-"+suffix
	t.Cleanup(func() { rdb.Del(context.Background(), InboxKey(owner), InboxKey(bidder)) })

	inbox := NewRedisInbox(rdb, 10)
	require.NoError(t, inbox.Deliver(ctx, map[string]InboxMessage{
		owner:  {Type: models.EventOfferRemoved, ListingID: "l1", OfferID: "o1", Text: "Offer o1 on your listing l1 was removed"},
		bidder: {Type: models.EventOfferRemoved, ListingID: "l1", OfferID: "o1", Text: "Your offer o1 on listing l1 was removed"},
	}))
	require.NoError(t, inbox.Deliver(ctx, nil))

	for _, user := range []string{owner, bidder} {
		msgs, err := inbox.Recent(ctx, user, 10)
		require.NoError(t, err)
		require.Len(t, msgs, 1, user)
		assert.Equal(t, "o1", msgs[0].OfferID)
	}

	// A batch that cannot be written leaves every inbox untouched.
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, inbox.Deliver(cancelled, map[string]InboxMessage{owner: {ListingID: "l2"}, bidder: {ListingID: "l2"}}))
	n, err := rdb.LLen(ctx, InboxKey(bidder)).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestInboxKey(t *testing.T) {
	assert.Equal(t, "market:inbox:u1", InboxKey("u1"))
	assert.Equal(t, int64(DefaultInboxSize), NewRedisInbox(nil, 0).size)
}
