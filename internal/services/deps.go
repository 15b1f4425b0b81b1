package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"greendrake/trueque/internal/locks"
	"greendrake/trueque/internal/models"
	"greendrake/trueque/internal/notify"
	"greendrake/trueque/internal/store"
)

// Clock returns the server's current time.
type Clock func() time.Time

// SystemClock is the default Clock.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// AuctionScheduler arranges for an auction to be closed once its close time passes.
type AuctionScheduler interface {
	ScheduleClose(ctx context.Context, listingID string, at time.Time) error
}

// Deps are the collaborators shared by the listing and negotiation services.
// Both services must share one Locker so every mutation of a listing is
// serialized with every other.
type Deps struct {
	Listings  store.ListingStore
	Offers    store.OfferStore
	Accounts  IAccountService
	Sink      notify.Sink
	Locker    *locks.KeyedLocker
	Clock     Clock
	Scheduler AuctionScheduler // optional
}

func (d *Deps) withDefaults() Deps {
	c := *d
	if c.Locker == nil {
		c.Locker = locks.NewKeyedLocker()
	}
	if c.Clock == nil {
		c.Clock = SystemClock
	}
	if c.Sink == nil {
		c.Sink = notify.NewCompositeSink()
	}
	return c
}

const publishTimeout = 5 * time.Second

// lockListing enters the listing's critical section or fails with the context error.
func (d *Deps) lockListing(ctx context.Context, listingID string) (func(), error) {
	unlock, err := d.Locker.Lock(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("waiting for listing %s: %w", listingID, err)
	}
	return unlock, nil
}

func (d *Deps) loadListing(ctx context.Context, listingID string) (*models.Listing, error) {
	l, err := d.Listings.GetListing(ctx, listingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, newError(KindNotFound, CodeListingNotFound, "listing %s not found", listingID)
		}
		return nil, fmt.Errorf("error loading listing %s: %w", listingID, err)
	}
	return l, nil
}

func (d *Deps) loadOffer(ctx context.Context, offerID string) (*models.Offer, error) {
	o, err := d.Offers.GetOffer(ctx, offerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, newError(KindNotFound, CodeOfferNotFound, "offer %s not found", offerID)
		}
		return nil, fmt.Errorf("error loading offer %s: %w", offerID, err)
	}
	return o, nil
}

func (d *Deps) requireOwner(ctx context.Context, listingID, userID string) error {
	owner, err := d.Accounts.IsOwner(ctx, listingID, userID)
	if err != nil {
		return err
	}
	if !owner {
		return newError(KindPermission, CodeNotOwner, "listing %s does not belong to user %s", listingID, userID)
	}
	return nil
}

// storeListing writes l only while the stored status is still from. Losing
// to a writer in another process surfaces as a state conflict.
func (d *Deps) storeListing(ctx context.Context, l *models.Listing, from models.ListingStatus) error {
	err := d.Listings.CompareAndPutListing(ctx, l, from)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return newError(KindNotFound, CodeListingNotFound, "listing %s not found", l.ID)
	case errors.Is(err, store.ErrStale):
		code := CodeInvalidTransition
		if from == models.ListingStatusActive {
			code = CodeListingNotActive
		}
		return &Error{Kind: KindStateConflict, Code: code, Message: err.Error()}
	}
	return err
}

// storeOffer is storeListing for offers.
func (d *Deps) storeOffer(ctx context.Context, o *models.Offer, from models.OfferStatus) error {
	err := d.Offers.CompareAndPutOffer(ctx, o, from)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return newError(KindNotFound, CodeOfferNotFound, "offer %s not found", o.ID)
	case errors.Is(err, store.ErrStale):
		return &Error{Kind: KindStateConflict, Code: CodeOfferTerminal, Message: err.Error()}
	}
	return err
}

// emit publishes events once the listing lock has been released. Failures are
// logged and dropped; the caller's cancellation does not abort delivery.
func (d *Deps) emit(ctx context.Context, events ...models.Event) {
	if len(events) == 0 {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	for _, e := range events {
		if err := d.Sink.Publish(pubCtx, e); err != nil {
			log.Printf("WARNING: failed to publish %s for listing %s: %v", e.Type, e.ListingID, err)
		}
	}
}
