package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"greendrake/trueque/internal/config"
	"greendrake/trueque/internal/locks"
	"greendrake/trueque/internal/models"
	"greendrake/trueque/internal/store"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu     sync.Mutex
	events []models.Event
	err    error
}

func (r *recordingSink) Publish(_ context.Context, e models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingSink) types() []models.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recordingSink) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type scheduledClose struct {
	listingID string
	at        time.Time
}

type recordingScheduler struct {
	mu     sync.Mutex
	closes []scheduledClose
	err    error
}

func (r *recordingScheduler) ScheduleClose(_ context.Context, listingID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes = append(r.closes, scheduledClose{listingID: listingID, at: at})
	return r.err
}

// flakyOffers fails offer writes on demand. beforeGuardedPut runs once, just
// before the next CompareAndPutOffer reaches the store.
type flakyOffers struct {
	store.OfferStore
	failPuts         atomic.Bool
	beforeGuardedPut func(o *models.Offer)
}

func (f *flakyOffers) PutOffer(ctx context.Context, o *models.Offer) error {
	if f.failPuts.Load() {
		return errors.New("offer store unavailable")
	}
	return f.OfferStore.PutOffer(ctx, o)
}

func (f *flakyOffers) CompareAndPutOffer(ctx context.Context, o *models.Offer, expected models.OfferStatus) error {
	if f.failPuts.Load() {
		return errors.New("offer store unavailable")
	}
	if hook := f.beforeGuardedPut; hook != nil {
		f.beforeGuardedPut = nil
		hook(o)
	}
	return f.OfferStore.CompareAndPutOffer(ctx, o, expected)
}

// hookedListings runs beforeGuardedPut once, just before the next
// CompareAndPutListing reaches the store.
type hookedListings struct {
	store.ListingStore
	beforeGuardedPut func(l *models.Listing)
}

func (h *hookedListings) CompareAndPutListing(ctx context.Context, l *models.Listing, expected models.ListingStatus) error {
	if hook := h.beforeGuardedPut; hook != nil {
		h.beforeGuardedPut = nil
		hook(l)
	}
	return h.ListingStore.CompareAndPutListing(ctx, l, expected)
}

type harness struct {
	store       *store.MemoryStore
	listingsDB  *hookedListings
	offers      *flakyOffers
	sink        *recordingSink
	clock       *fakeClock
	scheduler   *recordingScheduler
	cfg         *config.Config
	negotiation INegotiationService
	listings    IListingService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := store.NewMemoryStore(
		models.User{ID: "owner", Name: "Olga"},
		models.User{ID: "alice", Name: "Alice"},
		models.User{ID: "bob", Name: "Bob"},
		models.User{ID: "carol", Name: "Carol"},
		models.User{ID: "mod", Name: "Mod", IsModerator: true},
		models.User{ID: "banned", Name: "Banned", Suspended: true},
	)
	h := &harness{
		store:      st,
		listingsDB: &hookedListings{ListingStore: st},
		offers:     &flakyOffers{OfferStore: st},
		sink:      &recordingSink{},
		clock:     &fakeClock{now: testStart},
		scheduler: &recordingScheduler{},
		cfg:       config.Defaults(),
	}
	deps := Deps{
		Listings:  h.listingsDB,
		Offers:    h.offers,
		Accounts:  NewAccountService(st, st),
		Sink:      h.sink,
		Locker:    locks.NewKeyedLocker(),
		Clock:     h.clock.Now,
		Scheduler: h.scheduler,
	}
	h.negotiation = NewNegotiationService(deps, h.cfg)
	h.listings = NewListingService(deps, h.cfg)
	return h
}

func (h *harness) auction(t *testing.T, reserve int64, runFor time.Duration) *models.Listing {
	t.Helper()
	l, err := h.listings.CreateAuction(context.Background(), CreateAuctionInput{
		ListingContent: ListingContent{OwnerID: "owner", Title: "Bicycle"},
		ReservePrice:   decimal.NewFromInt(reserve),
		ClosesAt:       h.clock.Now().Add(runFor),
	})
	require.NoError(t, err)
	return l
}

func (h *harness) barter(t *testing.T) *models.Listing {
	t.Helper()
	l, err := h.listings.CreateBarter(context.Background(), CreateBarterInput{
		ListingContent: ListingContent{OwnerID: "owner", Title: "Guitar"},
		DesiredItems:   "a keyboard",
	})
	require.NoError(t, err)
	return l
}

func (h *harness) bid(t *testing.T, listingID, bidder string, amount int64) *models.Offer {
	t.Helper()
	o, err := h.negotiation.SubmitOffer(context.Background(), SubmitOfferInput{
		ListingID: listingID,
		BidderID:  bidder,
		Amount:    decimal.NewFromInt(amount),
	})
	require.NoError(t, err)
	return o
}

func (h *harness) listing(t *testing.T, id string) *models.Listing {
	t.Helper()
	l, err := h.store.GetListing(context.Background(), id)
	require.NoError(t, err)
	return l
}

func (h *harness) offer(t *testing.T, id string) *models.Offer {
	t.Helper()
	o, err := h.store.GetOffer(context.Background(), id)
	require.NoError(t, err)
	return o
}

func strPtr(s string) *string { return &s }

// otherProcess returns a negotiation service over the same store with its own
// locker, as a separately started api or bg process would have.
func (h *harness) otherProcess() INegotiationService {
	return NewNegotiationService(Deps{
		Listings: h.store,
		Offers:   h.store,
		Accounts: NewAccountService(h.store, h.store),
		Locker:   locks.NewKeyedLocker(),
		Clock:    h.clock.Now,
	}, h.cfg)
}
