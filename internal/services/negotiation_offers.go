package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"greendrake/trueque/internal/models"
	"greendrake/trueque/internal/store"
)

// offerAction runs fn on an offer inside its listing's critical section.
// The listing id is read before locking; it never changes once an offer exists.
func (s *negotiationService) offerAction(ctx context.Context, offerID string, fn func(*models.Listing, *models.Offer) error) (*models.Listing, *models.Offer, error) {
	first, err := s.loadOffer(ctx, offerID)
	if err != nil {
		return nil, nil, err
	}
	unlock, err := s.lockListing(ctx, first.ListingID)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	offer, err := s.loadOffer(ctx, offerID)
	if err != nil {
		return nil, nil, err
	}
	listing, err := s.loadListing(ctx, offer.ListingID)
	if err != nil {
		return nil, nil, err
	}
	if err := fn(listing, offer); err != nil {
		return nil, nil, err
	}
	return listing, offer, nil
}

// RejectOffer lets the owner turn down a PENDING offer. The listing is unaffected.
func (s *negotiationService) RejectOffer(ctx context.Context, offerID, actingUserID string) (*models.Offer, error) {
	listing, offer, err := s.offerAction(ctx, offerID, func(l *models.Listing, o *models.Offer) error {
		if err := s.requireOwner(ctx, l.ID, actingUserID); err != nil {
			return err
		}
		if !o.Reject(s.Clock()) {
			return newError(KindStateConflict, CodeOfferTerminal, "offer %s is already %s", o.ID, o.Status)
		}
		if err := s.storeOffer(ctx, o, models.OfferStatusPending); err != nil {
			return fmt.Errorf("failed to reject offer %s: %w", o.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Offer %s rejected on listing %s", offer.ID, offer.ListingID)
	s.emit(ctx, s.offerEvent(models.EventOfferRejected, listing, offer))
	return offer, nil
}

// WithdrawOffer lets the bidder cancel their own PENDING offer.
func (s *negotiationService) WithdrawOffer(ctx context.Context, offerID, actingUserID string) (*models.Offer, error) {
	listing, offer, err := s.offerAction(ctx, offerID, func(l *models.Listing, o *models.Offer) error {
		if o.BidderID != actingUserID {
			return newError(KindPermission, CodeNotBidder, "offer %s was not made by user %s", o.ID, actingUserID)
		}
		if !o.Cancel(s.Clock()) {
			return newError(KindStateConflict, CodeOfferTerminal, "offer %s is already %s", o.ID, o.Status)
		}
		if err := s.storeOffer(ctx, o, models.OfferStatusPending); err != nil {
			return fmt.Errorf("failed to withdraw offer %s: %w", o.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Offer %s withdrawn on listing %s", offer.ID, offer.ListingID)
	s.emit(ctx, s.offerEvent(models.EventOfferWithdrawn, listing, offer))
	return offer, nil
}

// RemoveOffer deletes an offer in any status. Either the listing owner or the
// bidder may do it. Removing a winning offer leaves the listing closed.
func (s *negotiationService) RemoveOffer(ctx context.Context, offerID, actingUserID string) error {
	listing, offer, err := s.offerAction(ctx, offerID, func(l *models.Listing, o *models.Offer) error {
		if o.BidderID != actingUserID && l.OwnerID != actingUserID {
			return newError(KindPermission, CodeNotOfferParty, "user %s is neither bidder nor owner of offer %s", actingUserID, o.ID)
		}
		if err := s.Offers.DeleteOffer(ctx, o.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return newError(KindNotFound, CodeOfferNotFound, "offer %s not found", o.ID)
			}
			return fmt.Errorf("failed to remove offer %s: %w", o.ID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Printf("Offer %s removed from listing %s", offer.ID, offer.ListingID)
	s.emit(ctx, s.offerEvent(models.EventOfferRemoved, listing, offer))
	return nil
}

func (s *negotiationService) offerEvent(t models.EventType, l *models.Listing, o *models.Offer) models.Event {
	at := s.Clock()
	if o.DecidedAt != nil && t != models.EventOfferRemoved {
		at = *o.DecidedAt
	}
	return models.Event{
		Type:       t,
		ListingID:  l.ID,
		OwnerID:    l.OwnerID,
		OfferID:    o.ID,
		BidderID:   o.BidderID,
		OccurredAt: at,
	}
}
