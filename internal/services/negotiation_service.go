package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"greendrake/trueque/internal/config"
	"greendrake/trueque/internal/models"
	"greendrake/trueque/internal/utils"
)

// INegotiationService is the only component that changes offer and listing status.
// Every operation on a listing runs inside that listing's critical section.
type INegotiationService interface {
	SubmitOffer(ctx context.Context, in SubmitOfferInput) (*models.Offer, error)
	AcceptOffer(ctx context.Context, offerID, actingUserID string) (*CloseResult, error)
	RejectOffer(ctx context.Context, offerID, actingUserID string) (*models.Offer, error)
	WithdrawOffer(ctx context.Context, offerID, actingUserID string) (*models.Offer, error)
	RemoveOffer(ctx context.Context, offerID, actingUserID string) error
	CloseAuction(ctx context.Context, listingID, actingUserID string) (*CloseResult, error)
	PauseListing(ctx context.Context, listingID, actingUserID string) (*models.Listing, error)
	DeleteListing(ctx context.Context, listingID, actingUserID string) (*models.Listing, error)
	FinalizeListing(ctx context.Context, listingID, actingUserID string) (*models.Listing, error)
	SweepExpiredAuctions(ctx context.Context) (*SweepReport, error)
	ReconcileClosedListings(ctx context.Context) (int, error)
	OffersForListing(ctx context.Context, listingID string) ([]*models.Offer, error)
	CurrentFloor(ctx context.Context, listingID string) (decimal.Decimal, error)
}

// SubmitOfferInput carries a bid or trade proposal.
// BarterDescription is required for barter listings and ignored for auctions.
type SubmitOfferInput struct {
	ListingID         string
	BidderID          string
	Amount            decimal.Decimal
	BarterDescription *string
	Images            []string
}

// CloseResult is the outcome of closing a listing. Winner is nil when nothing
// qualified.
type CloseResult struct {
	Listing *models.Listing
	Winner  *models.Offer
}

// negotiationService implements INegotiationService.
type negotiationService struct {
	Deps
	cfg *config.Config
}

// NewNegotiationService creates a new NegotiationService.
func NewNegotiationService(deps Deps, cfg *config.Config) INegotiationService {
	if cfg == nil {
		cfg = config.Defaults()
	}
	return &negotiationService{Deps: deps.withDefaults(), cfg: cfg}
}

// SubmitOffer records a new PENDING offer after checking it against the listing.
func (s *negotiationService) SubmitOffer(ctx context.Context, in SubmitOfferInput) (*models.Offer, error) {
	unlock, err := s.lockListing(ctx, in.ListingID)
	if err != nil {
		return nil, err
	}
	offer, listing, err := s.submitLocked(ctx, in)
	unlock()
	if err != nil {
		return nil, err
	}

	log.Printf("Offer %s submitted on listing %s", offer.ID, offer.ListingID)
	s.emit(ctx, models.Event{
		Type:       models.EventOfferSubmitted,
		ListingID:  offer.ListingID,
		OwnerID:    listing.OwnerID,
		OfferID:    offer.ID,
		BidderID:   offer.BidderID,
		OccurredAt: offer.SubmittedAt,
	})
	return offer, nil
}

func (s *negotiationService) submitLocked(ctx context.Context, in SubmitOfferInput) (*models.Offer, *models.Listing, error) {
	listing, err := s.loadListing(ctx, in.ListingID)
	if err != nil {
		return nil, nil, err
	}
	if listing.Status != models.ListingStatusActive {
		return nil, nil, newError(KindStateConflict, CodeListingNotActive, "listing %s is %s", listing.ID, listing.Status)
	}
	if _, err := s.Accounts.ResolveUser(ctx, in.BidderID); err != nil {
		return nil, nil, err
	}
	if in.BidderID == listing.OwnerID {
		return nil, nil, newError(KindPermission, CodeSelfOffer, "owners cannot make offers on their own listing")
	}
	images, err := s.checkImages(in.Images)
	if err != nil {
		return nil, nil, err
	}

	now := s.Clock()
	offer := &models.Offer{
		ID:          utils.NewID(),
		ListingID:   listing.ID,
		BidderID:    in.BidderID,
		Amount:      in.Amount,
		Images:      images,
		Status:      models.OfferStatusPending,
		SubmittedAt: now,
	}

	if !models.ValidMoney(in.Amount) {
		return nil, nil, newError(KindValidation, CodeInvalidAmount, "amount %s exceeds %d decimal places or %d digits", in.Amount, models.MoneyScale, models.MoneyPrecision)
	}

	switch listing.Kind {
	case models.ListingKindAuction:
		if !in.Amount.IsPositive() {
			return nil, nil, newError(KindValidation, CodeInvalidAmount, "bid amount must be greater than zero")
		}
		if listing.Expired(now) {
			return nil, nil, newError(KindStateConflict, CodeAuctionExpired, "auction %s closed at %s", listing.ID, listing.Auction.ClosesAt.Format(time.RFC3339))
		}
		floor, err := s.floorLocked(ctx, listing)
		if err != nil {
			return nil, nil, err
		}
		if in.Amount.LessThanOrEqual(floor) {
			return nil, nil, bidTooLow(floor)
		}
	case models.ListingKindBarter:
		if in.BarterDescription == nil || strings.TrimSpace(*in.BarterDescription) == "" {
			return nil, nil, newError(KindValidation, CodeMissingBarterDescription, "barter offers must describe what is offered")
		}
		if in.Amount.IsNegative() {
			return nil, nil, newError(KindValidation, CodeInvalidAmount, "amount cannot be negative")
		}
		desc := strings.TrimSpace(*in.BarterDescription)
		offer.BarterDescription = &desc
	default:
		return nil, nil, newError(KindValidation, CodeInvalidListing, "listing %s has unknown kind %q", listing.ID, listing.Kind)
	}

	if err := s.Offers.PutOffer(ctx, offer); err != nil {
		return nil, nil, fmt.Errorf("failed to store offer on listing %s: %w", listing.ID, err)
	}
	return offer, listing, nil
}

func (s *negotiationService) checkImages(images []string) ([]string, error) {
	if len(images) > s.cfg.MaxOfferImages {
		return nil, newError(KindValidation, CodeInvalidImages, "at most %d images per offer", s.cfg.MaxOfferImages)
	}
	out := make([]string, 0, len(images))
	for _, img := range images {
		img = strings.TrimSpace(img)
		if img == "" {
			return nil, newError(KindValidation, CodeInvalidImages, "image references cannot be blank")
		}
		out = append(out, img)
	}
	return out, nil
}

// floorLocked is the amount a new bid must exceed: the reserve price or the
// highest amount among every offer recorded on the listing, whichever is larger.
func (s *negotiationService) floorLocked(ctx context.Context, listing *models.Listing) (decimal.Decimal, error) {
	offers, err := s.Offers.OffersForListing(ctx, listing.ID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load offers for listing %s: %w", listing.ID, err)
	}
	floor := listing.Auction.ReservePrice
	for _, o := range offers {
		if o.Amount.GreaterThan(floor) {
			floor = o.Amount
		}
	}
	return floor, nil
}

// CurrentFloor reports the amount the next bid on an auction has to exceed.
func (s *negotiationService) CurrentFloor(ctx context.Context, listingID string) (decimal.Decimal, error) {
	unlock, err := s.lockListing(ctx, listingID)
	if err != nil {
		return decimal.Zero, err
	}
	defer unlock()

	listing, err := s.loadListing(ctx, listingID)
	if err != nil {
		return decimal.Zero, err
	}
	if !listing.IsAuction() {
		return decimal.Zero, newError(KindValidation, CodeNotAuction, "listing %s is not an auction", listingID)
	}
	return s.floorLocked(ctx, listing)
}

// OffersForListing returns the listing's offers in submission order.
func (s *negotiationService) OffersForListing(ctx context.Context, listingID string) ([]*models.Offer, error) {
	if _, err := s.loadListing(ctx, listingID); err != nil {
		return nil, err
	}
	offers, err := s.Offers.OffersForListing(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load offers for listing %s: %w", listingID, err)
	}
	return offers, nil
}
