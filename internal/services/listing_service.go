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
	"greendrake/trueque/internal/store"
	"greendrake/trueque/internal/utils"
	"greendrake/trueque/internal/validator"
)

// IListingService defines the interface for listing-related operations.
// Status changes go through INegotiationService; this service only creates,
// edits and reads listings.
type IListingService interface {
	CreateAuction(ctx context.Context, in CreateAuctionInput) (*models.Listing, error)
	CreateBarter(ctx context.Context, in CreateBarterInput) (*models.Listing, error)
	FindListingByID(ctx context.Context, listingID, viewerID string) (*models.Listing, error)
	UpdateListing(ctx context.Context, listingID, actingUserID string, in UpdateListingInput) (*models.Listing, error)
	SearchListings(ctx context.Context, filter ListingFilter) ([]*models.Listing, error)
}

// ListingContent is the part of a listing its owner controls.
type ListingContent struct {
	OwnerID     string   `validate:"required"`
	Title       string   `validate:"notblank,max=140"`
	Description string   `validate:"max=5000"`
	Photos      []string `validate:"dive,notblank"`
}

type CreateAuctionInput struct {
	ListingContent
	ReservePrice decimal.Decimal
	ClosesAt     time.Time `validate:"required"`
}

type CreateBarterInput struct {
	ListingContent
	DesiredItems string `validate:"max=2000"`
}

// UpdateListingInput holds content edits. Nil fields are left unchanged.
// Auction terms are fixed at creation and cannot be edited.
type UpdateListingInput struct {
	Title        *string  `validate:"omitempty,notblank,max=140"`
	Description  *string  `validate:"omitempty,max=5000"`
	Photos       []string `validate:"omitempty,dive,notblank"`
	DesiredItems *string  `validate:"omitempty,max=2000"`
}

// ListingFilter narrows SearchListings. Empty fields match everything.
// Without a Status, DELETED listings are left out.
type ListingFilter struct {
	Kind     models.ListingKind
	OwnerID  string
	Status   models.ListingStatus
	ViewerID string
	Limit    int
}

const defaultSearchLimit = 50

// visibleStatuses is what a search without a status filter returns.
var visibleStatuses = []models.ListingStatus{
	models.ListingStatusActive,
	models.ListingStatusClosed,
	models.ListingStatusFinalized,
	models.ListingStatusPaused,
}

// listingService implements IListingService.
type listingService struct {
	Deps
	cfg      *config.Config
	validate *validator.Validator
}

// NewListingService creates a new ListingService. deps must share its Locker
// with the negotiation service.
func NewListingService(deps Deps, cfg *config.Config) IListingService {
	if cfg == nil {
		cfg = config.Defaults()
	}
	return &listingService{Deps: deps.withDefaults(), cfg: cfg, validate: validator.New()}
}

func (s *listingService) checkContent(ctx context.Context, c *ListingContent) error {
	if _, err := s.Accounts.ResolveUser(ctx, c.OwnerID); err != nil {
		return err
	}
	if len(c.Photos) > s.cfg.MaxListingPhotos {
		return newError(KindValidation, CodeInvalidImages, "at most %d photos per listing", s.cfg.MaxListingPhotos)
	}
	c.Title = strings.TrimSpace(c.Title)
	c.Description = strings.TrimSpace(c.Description)
	return nil
}

func (s *listingService) validationError(err error) error {
	fields := validator.FieldErrors(err)
	if len(fields) == 0 {
		return newError(KindValidation, CodeInvalidListing, "%v", err)
	}
	return newError(KindValidation, CodeInvalidListing, "invalid listing: %s", strings.Join(fields, ", "))
}

func (s *listingService) newListing(c ListingContent, kind models.ListingKind) *models.Listing {
	now := s.Clock()
	photos := c.Photos
	if photos == nil {
		photos = []string{}
	}
	return &models.Listing{
		ID:          utils.NewID(),
		Kind:        kind,
		OwnerID:     c.OwnerID,
		Title:       c.Title,
		Description: c.Description,
		Photos:      photos,
		Status:      models.ListingStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// CreateAuction opens a new auction and schedules its close.
func (s *listingService) CreateAuction(ctx context.Context, in CreateAuctionInput) (*models.Listing, error) {
	if err := s.validate.ValidateStruct(in); err != nil {
		return nil, s.validationError(err)
	}
	if err := s.checkContent(ctx, &in.ListingContent); err != nil {
		return nil, err
	}
	if in.ReservePrice.IsNegative() {
		return nil, newError(KindValidation, CodeInvalidAmount, "reserve price cannot be negative")
	}
	if !models.ValidMoney(in.ReservePrice) {
		return nil, newError(KindValidation, CodeInvalidAmount, "reserve price %s exceeds %d decimal places or %d digits", in.ReservePrice, models.MoneyScale, models.MoneyPrecision)
	}

	now := s.Clock()
	closesAt := in.ClosesAt.UTC()
	if closesAt.Before(now.Add(s.cfg.AuctionMinDuration)) {
		return nil, newError(KindValidation, CodeInvalidListing, "auction must run for at least %s", s.cfg.AuctionMinDuration)
	}
	if closesAt.After(now.Add(s.cfg.AuctionMaxDuration)) {
		return nil, newError(KindValidation, CodeInvalidListing, "auction cannot run longer than %s", s.cfg.AuctionMaxDuration)
	}

	listing := s.newListing(in.ListingContent, models.ListingKindAuction)
	listing.Auction = &models.AuctionTerms{ReservePrice: in.ReservePrice, ClosesAt: closesAt}
	if err := s.Listings.PutListing(ctx, listing); err != nil {
		return nil, fmt.Errorf("failed to create auction: %w", err)
	}
	log.Printf("Auction %s created by %s, closes at %s", listing.ID, listing.OwnerID, closesAt.Format(time.RFC3339))

	if s.Scheduler != nil {
		if err := s.Scheduler.ScheduleClose(ctx, listing.ID, closesAt); err != nil {
			// The periodic sweep still closes it.
			log.Printf("WARNING: failed to schedule close of auction %s: %v", listing.ID, err)
		}
	}
	return listing, nil
}

// CreateBarter opens a new barter listing.
func (s *listingService) CreateBarter(ctx context.Context, in CreateBarterInput) (*models.Listing, error) {
	if err := s.validate.ValidateStruct(in); err != nil {
		return nil, s.validationError(err)
	}
	if err := s.checkContent(ctx, &in.ListingContent); err != nil {
		return nil, err
	}

	listing := s.newListing(in.ListingContent, models.ListingKindBarter)
	listing.Barter = &models.BarterTerms{DesiredItems: strings.TrimSpace(in.DesiredItems)}
	if err := s.Listings.PutListing(ctx, listing); err != nil {
		return nil, fmt.Errorf("failed to create barter listing: %w", err)
	}
	log.Printf("Barter listing %s created by %s", listing.ID, listing.OwnerID)
	return listing, nil
}

// FindListingByID returns a listing. DELETED listings are only visible to moderators.
func (s *listingService) FindListingByID(ctx context.Context, listingID, viewerID string) (*models.Listing, error) {
	listing, err := s.loadListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.Status == models.ListingStatusDeleted {
		ok, err := s.canSeeDeleted(ctx, viewerID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, newError(KindNotFound, CodeListingNotFound, "listing %s not found", listingID)
		}
	}
	return listing, nil
}

func (s *listingService) canSeeDeleted(ctx context.Context, viewerID string) (bool, error) {
	if viewerID == "" {
		return false, nil
	}
	return s.Accounts.IsModerator(ctx, viewerID)
}

// UpdateListing edits the content of an ACTIVE listing owned by actingUserID.
func (s *listingService) UpdateListing(ctx context.Context, listingID, actingUserID string, in UpdateListingInput) (*models.Listing, error) {
	if err := s.validate.ValidateStruct(in); err != nil {
		return nil, s.validationError(err)
	}
	if in.Photos != nil && len(in.Photos) > s.cfg.MaxListingPhotos {
		return nil, newError(KindValidation, CodeInvalidImages, "at most %d photos per listing", s.cfg.MaxListingPhotos)
	}

	unlock, err := s.lockListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	listing, err := s.loadListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwner(ctx, listingID, actingUserID); err != nil {
		return nil, err
	}
	if listing.Status != models.ListingStatusActive {
		return nil, newError(KindStateConflict, CodeListingNotActive, "listing %s is %s", listingID, listing.Status)
	}

	if in.Title != nil {
		listing.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		listing.Description = strings.TrimSpace(*in.Description)
	}
	if in.Photos != nil {
		listing.Photos = append([]string(nil), in.Photos...)
	}
	if in.DesiredItems != nil {
		if listing.Kind != models.ListingKindBarter {
			return nil, newError(KindValidation, CodeInvalidListing, "desired items only apply to barter listings")
		}
		listing.Barter.DesiredItems = strings.TrimSpace(*in.DesiredItems)
	}
	listing.UpdatedAt = s.Clock()

	if err := s.storeListing(ctx, listing, models.ListingStatusActive); err != nil {
		return nil, fmt.Errorf("failed to update listing %s: %w", listingID, err)
	}
	log.Printf("Listing %s updated by %s", listingID, actingUserID)
	return listing, nil
}

// SearchListings returns matching listings, newest first.
func (s *listingService) SearchListings(ctx context.Context, filter ListingFilter) ([]*models.Listing, error) {
	if filter.Status == models.ListingStatusDeleted {
		ok, err := s.canSeeDeleted(ctx, filter.ViewerID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return []*models.Listing{}, nil
		}
	}
	limit := filter.Limit
	if limit <= 0 || limit > defaultSearchLimit {
		limit = defaultSearchLimit
	}

	q := store.ListingQuery{Kind: filter.Kind, OwnerID: filter.OwnerID, Limit: limit}
	if filter.Status != "" {
		q.Statuses = []models.ListingStatus{filter.Status}
	} else {
		q.Statuses = visibleStatuses
	}
	listings, err := s.Listings.ScanListings(ctx, q, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to search listings: %w", err)
	}
	if listings == nil {
		listings = []*models.Listing{}
	}
	return listings, nil
}
