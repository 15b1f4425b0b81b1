package services

import (
	"context"
	"fmt"
	"log"

	"greendrake/trueque/internal/models"
)

// PauseListing takes an ACTIVE listing off the market. Pending offers stay as they are.
func (s *negotiationService) PauseListing(ctx context.Context, listingID, actingUserID string) (*models.Listing, error) {
	return s.transition(ctx, listingID, actingUserID, models.ListingStatusPaused, false, models.EventListingPaused)
}

// DeleteListing soft-deletes a listing. Moderators may delete any listing.
func (s *negotiationService) DeleteListing(ctx context.Context, listingID, actingUserID string) (*models.Listing, error) {
	return s.transition(ctx, listingID, actingUserID, models.ListingStatusDeleted, true, models.EventListingDeleted)
}

// FinalizeListing confirms a closed deal.
func (s *negotiationService) FinalizeListing(ctx context.Context, listingID, actingUserID string) (*models.Listing, error) {
	return s.transition(ctx, listingID, actingUserID, models.ListingStatusFinalized, false, models.EventListingFinalized)
}

func (s *negotiationService) transition(ctx context.Context, listingID, actingUserID string, target models.ListingStatus, moderatorAllowed bool, eventType models.EventType) (*models.Listing, error) {
	unlock, err := s.lockListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	listing, err := s.transitionLocked(ctx, listingID, actingUserID, target, moderatorAllowed)
	unlock()
	if err != nil {
		return nil, err
	}

	log.Printf("Listing %s moved to %s by %s", listingID, target, actingUserID)
	s.emit(ctx, models.Event{
		Type:           eventType,
		ListingID:      listing.ID,
		OwnerID:        listing.OwnerID,
		WinningOfferID: listing.WinningOfferID,
		OccurredAt:     listing.UpdatedAt,
	})
	return listing, nil
}

func (s *negotiationService) transitionLocked(ctx context.Context, listingID, actingUserID string, target models.ListingStatus, moderatorAllowed bool) (*models.Listing, error) {
	listing, err := s.loadListing(ctx, listingID)
	if err != nil {
		return nil, err
	}

	if listing.OwnerID != actingUserID {
		allowed := false
		if moderatorAllowed {
			allowed, err = s.Accounts.IsModerator(ctx, actingUserID)
			if err != nil {
				return nil, err
			}
		}
		if !allowed {
			return nil, newError(KindPermission, CodeNotOwner, "listing %s does not belong to user %s", listingID, actingUserID)
		}
	}

	if !listing.Status.CanTransitionTo(target) {
		if listing.Status != models.ListingStatusActive && target == models.ListingStatusPaused {
			return nil, newError(KindStateConflict, CodeListingNotActive, "listing %s is %s", listingID, listing.Status)
		}
		return nil, newError(KindStateConflict, CodeInvalidTransition, "listing %s cannot move from %s to %s", listingID, listing.Status, target)
	}

	from := listing.Status
	listing.Status = target
	listing.UpdatedAt = s.Clock()
	if err := s.storeListing(ctx, listing, from); err != nil {
		return nil, fmt.Errorf("failed to update listing %s: %w", listingID, err)
	}
	return listing, nil
}
