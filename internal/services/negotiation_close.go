package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"greendrake/trueque/internal/models"
	"greendrake/trueque/internal/store"
)

// SweepReport summarizes one expiry sweep.
type SweepReport struct {
	Expired  int `json:"expired"`
	Closed   int `json:"closed"`
	Failed   int `json:"failed"`
	Repaired int `json:"repaired"`
}

// AcceptOffer lets the owner pick an offer and closes the listing with it.
// On auctions only the current best PENDING bid can be accepted.
func (s *negotiationService) AcceptOffer(ctx context.Context, offerID, actingUserID string) (*CloseResult, error) {
	first, err := s.loadOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lockListing(ctx, first.ListingID)
	if err != nil {
		return nil, err
	}
	result, err := s.acceptLocked(ctx, offerID, actingUserID)
	unlock()
	if err != nil {
		return nil, err
	}

	log.Printf("Offer %s accepted, listing %s closed", result.Winner.ID, result.Listing.ID)
	s.emit(ctx, closeEvents(result)...)
	return result, nil
}

func (s *negotiationService) acceptLocked(ctx context.Context, offerID, actingUserID string) (*CloseResult, error) {
	offer, err := s.loadOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	listing, err := s.loadListing(ctx, offer.ListingID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwner(ctx, listing.ID, actingUserID); err != nil {
		return nil, err
	}
	if listing.Status != models.ListingStatusActive {
		return nil, newError(KindStateConflict, CodeListingNotActive, "listing %s is %s", listing.ID, listing.Status)
	}
	if offer.Status.Terminal() {
		return nil, newError(KindStateConflict, CodeOfferTerminal, "offer %s is already %s", offer.ID, offer.Status)
	}

	if listing.IsAuction() {
		best, err := s.bestPendingLocked(ctx, listing.ID)
		if err != nil {
			return nil, err
		}
		if best == nil || best.ID != offer.ID {
			return nil, newError(KindStateConflict, CodeNotHighestBid, "offer %s is not the highest pending bid", offer.ID)
		}
		if !offer.Amount.GreaterThan(listing.Auction.ReservePrice) {
			return nil, bidTooLow(listing.Auction.ReservePrice)
		}
	}

	return s.closeLocked(ctx, listing, offer)
}

// CloseAuction closes an auction and accepts its best bid, if any beats the
// reserve. An empty actingUserID is the scheduler, which may only close
// auctions whose close time has passed; the owner may close at any time.
func (s *negotiationService) CloseAuction(ctx context.Context, listingID, actingUserID string) (*CloseResult, error) {
	unlock, err := s.lockListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	result, err := s.closeAuctionLocked(ctx, listingID, actingUserID)
	unlock()
	if err != nil {
		return nil, err
	}

	if result.Winner != nil {
		log.Printf("Auction %s closed, winning offer %s", listingID, result.Winner.ID)
	} else {
		log.Printf("Auction %s closed without a winner", listingID)
	}
	s.emit(ctx, closeEvents(result)...)
	return result, nil
}

func (s *negotiationService) closeAuctionLocked(ctx context.Context, listingID, actingUserID string) (*CloseResult, error) {
	listing, err := s.loadListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if !listing.IsAuction() {
		return nil, newError(KindValidation, CodeNotAuction, "listing %s is not an auction", listingID)
	}
	if actingUserID != "" {
		if err := s.requireOwner(ctx, listingID, actingUserID); err != nil {
			return nil, err
		}
	}
	if listing.Status != models.ListingStatusActive {
		return nil, newError(KindStateConflict, CodeListingNotActive, "listing %s is %s", listing.ID, listing.Status)
	}
	if actingUserID == "" && !listing.Expired(s.Clock()) {
		return nil, newError(KindStateConflict, CodeAuctionOpen, "auction %s is open until %s", listingID, listing.Auction.ClosesAt.Format(time.RFC3339))
	}

	best, err := s.bestPendingLocked(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if best != nil && !best.Amount.GreaterThan(listing.Auction.ReservePrice) {
		best = nil
	}
	return s.closeLocked(ctx, listing, best)
}

// bestPendingLocked picks the highest PENDING offer, earliest first on ties.
func (s *negotiationService) bestPendingLocked(ctx context.Context, listingID string) (*models.Offer, error) {
	offers, err := s.Offers.OffersForListing(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load offers for listing %s: %w", listingID, err)
	}
	var best *models.Offer
	for _, o := range offers {
		if o.Status != models.OfferStatusPending {
			continue
		}
		if best == nil || o.RanksAbove(best) {
			best = o
		}
	}
	return best, nil
}

// closeLocked writes the listing first so a crash between the two writes can
// never leave the listing open next to an accepted offer. If the offer write
// fails the listing is restored.
func (s *negotiationService) closeLocked(ctx context.Context, listing *models.Listing, winner *models.Offer) (*CloseResult, error) {
	now := s.Clock()
	previous := listing.Clone()

	listing.Status = models.ListingStatusClosed
	listing.ClosedAt = &now
	listing.UpdatedAt = now
	if winner != nil {
		id := winner.ID
		listing.WinningOfferID = &id
	}
	if err := s.storeListing(ctx, listing, previous.Status); err != nil {
		return nil, fmt.Errorf("failed to close listing %s: %w", listing.ID, err)
	}

	if winner != nil {
		was := winner.Status
		winner.Accept(now)
		if err := s.storeOffer(ctx, winner, was); err != nil {
			rbErr := s.Listings.CompareAndPutListing(context.WithoutCancel(ctx), previous, models.ListingStatusClosed)
			if rbErr != nil {
				log.Printf("ERROR: listing %s closed but winning offer %s not stored, rollback failed: %v", listing.ID, winner.ID, rbErr)
			}
			return nil, fmt.Errorf("failed to accept offer %s: %w", winner.ID, err)
		}
	}
	return &CloseResult{Listing: listing, Winner: winner}, nil
}

func closeEvents(r *CloseResult) []models.Event {
	at := time.Now().UTC()
	if r.Listing.ClosedAt != nil {
		at = *r.Listing.ClosedAt
	}
	var events []models.Event
	if r.Winner != nil {
		events = append(events, models.Event{
			Type:       models.EventOfferAccepted,
			ListingID:  r.Listing.ID,
			OwnerID:    r.Listing.OwnerID,
			OfferID:    r.Winner.ID,
			BidderID:   r.Winner.BidderID,
			OccurredAt: at,
		})
	}
	closed := models.Event{
		Type:           models.EventListingClosed,
		ListingID:      r.Listing.ID,
		OwnerID:        r.Listing.OwnerID,
		WinningOfferID: r.Listing.WinningOfferID,
		OccurredAt:     at,
	}
	if r.Winner != nil {
		closed.BidderID = r.Winner.BidderID
	}
	return append(events, closed)
}

// SweepExpiredAuctions closes every ACTIVE auction past its close time and
// repairs half-finished closes. Listings are closed in parallel, each under
// its own lock; one failure does not stop the rest.
func (s *negotiationService) SweepExpiredAuctions(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{}

	repaired, err := s.ReconcileClosedListings(ctx)
	if err != nil {
		log.Printf("WARNING: reconcile before sweep failed: %v", err)
	}
	report.Repaired = repaired

	now := s.Clock()
	expired, err := s.Listings.ScanListings(ctx, store.ListingQuery{
		Kind:     models.ListingKindAuction,
		Statuses: []models.ListingStatus{models.ListingStatusActive},
		ClosesBy: &now,
	}, func(l *models.Listing) bool { return l.Expired(now) })
	if err != nil {
		return report, fmt.Errorf("failed to scan for expired auctions: %w", err)
	}
	report.Expired = len(expired)

	var closed, failed int64
	g := new(errgroup.Group)
	g.SetLimit(max(1, s.cfg.SweepParallelism))
	for _, l := range expired {
		listingID := l.ID
		g.Go(func() error {
			_, err := s.CloseAuction(ctx, listingID, "")
			switch {
			case err == nil:
				atomic.AddInt64(&closed, 1)
			case errors.Is(err, ErrListingNotActive):
				// Closed by its owner or another sweep in the meantime.
			default:
				atomic.AddInt64(&failed, 1)
				log.Printf("ERROR: failed to close expired auction %s: %v", listingID, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Closed = int(closed)
	report.Failed = int(failed)
	if report.Expired > 0 || report.Repaired > 0 {
		log.Printf("Auction sweep: %d expired, %d closed, %d failed, %d repaired", report.Expired, report.Closed, report.Failed, report.Repaired)
	}
	return report, ctx.Err()
}

// ReconcileClosedListings marks the recorded winner of a closed listing as
// ACCEPTED when a crash interrupted the close between its two writes.
func (s *negotiationService) ReconcileClosedListings(ctx context.Context) (int, error) {
	closed, err := s.Listings.ScanListings(ctx, store.ListingQuery{
		Statuses: []models.ListingStatus{models.ListingStatusClosed, models.ListingStatusFinalized},
	}, func(l *models.Listing) bool { return l.WinningOfferID != nil })
	if err != nil {
		return 0, fmt.Errorf("failed to scan closed listings: %w", err)
	}

	repaired := 0
	for _, l := range closed {
		ok, err := s.reconcileOne(ctx, l.ID)
		if err != nil {
			log.Printf("ERROR: failed to reconcile listing %s: %v", l.ID, err)
			continue
		}
		if ok {
			repaired++
		}
	}
	return repaired, nil
}

func (s *negotiationService) reconcileOne(ctx context.Context, listingID string) (bool, error) {
	unlock, err := s.lockListing(ctx, listingID)
	if err != nil {
		return false, err
	}
	defer unlock()

	listing, err := s.loadListing(ctx, listingID)
	if err != nil || listing.WinningOfferID == nil {
		return false, err
	}
	offer, err := s.loadOffer(ctx, *listing.WinningOfferID)
	if err != nil {
		if errors.Is(err, ErrOfferNotFound) {
			return false, nil
		}
		return false, err
	}
	if offer.Status != models.OfferStatusPending {
		return false, nil
	}

	decidedAt := s.Clock()
	if listing.ClosedAt != nil {
		decidedAt = *listing.ClosedAt
	}
	offer.Accept(decidedAt)
	if err := s.storeOffer(ctx, offer, models.OfferStatusPending); err != nil {
		if errors.Is(err, ErrOfferTerminal) || errors.Is(err, ErrOfferNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to repair offer %s: %w", offer.ID, err)
	}
	log.Printf("Repaired winning offer %s on listing %s", offer.ID, listing.ID)
	return true, nil
}
