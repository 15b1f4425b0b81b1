package handlers_test

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"greendrake/trueque/internal/cache"
	"greendrake/trueque/internal/models"
	"greendrake/trueque/internal/services"
	"greendrake/trueque/internal/storage"
)

// --- Mocks ---

// MockListingService
type MockListingService struct {
	mock.Mock
}

func (m *MockListingService) CreateAuction(ctx context.Context, in services.CreateAuctionInput) (*models.Listing, error) {
	args := m.Called(ctx, in)
	return listingOrNil(args.Get(0)), args.Error(1)
}

func (m *MockListingService) CreateBarter(ctx context.Context, in services.CreateBarterInput) (*models.Listing, error) {
	args := m.Called(ctx, in)
	return listingOrNil(args.Get(0)), args.Error(1)
}

func (m *MockListingService) FindListingByID(ctx context.Context, listingID, viewerID string) (*models.Listing, error) {
	args := m.Called(ctx, listingID, viewerID)
	return listingOrNil(args.Get(0)), args.Error(1)
}

func (m *MockListingService) UpdateListing(ctx context.Context, listingID, actingUserID string, in services.UpdateListingInput) (*models.Listing, error) {
	args := m.Called(ctx, listingID, actingUserID, in)
	return listingOrNil(args.Get(0)), args.Error(1)
}

func (m *MockListingService) SearchListings(ctx context.Context, filter services.ListingFilter) ([]*models.Listing, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Listing), args.Error(1)
}

// MockNegotiationService
type MockNegotiationService struct {
	mock.Mock
}

func (m *MockNegotiationService) SubmitOffer(ctx context.Context, in services.SubmitOfferInput) (*models.Offer, error) {
	args := m.Called(ctx, in)
	return offerOrNil(args.Get(0)), args.Error(1)
}

func (m *MockNegotiationService) AcceptOffer(ctx context.Context, offerID, actingUserID string) (*services.CloseResult, error) {
	args := m.Called(ctx, offerID, actingUserID)
	return closeResultOrNil(args.Get(0)), args.Error(1)
}

func (m *MockNegotiationService) RejectOffer(ctx context.Context, offerID, actingUserID string) (*models.Offer, error) {
	args := m.Called(ctx, offerID, actingUserID)
	return offerOrNil(args.Get(0)), args.Error(1)
}

func (m *MockNegotiationService) WithdrawOffer(ctx context.Context, offerID, actingUserID string) (*models.Offer, error) {
	args := m.Called(ctx, offerID, actingUserID)
	return offerOrNil(args.Get(0)), args.Error(1)
}

func (m *MockNegotiationService) RemoveOffer(ctx context.Context, offerID, actingUserID string) error {
	args := m.Called(ctx, offerID, actingUserID)
	return args.Error(0)
}

func (m *MockNegotiationService) CloseAuction(ctx context.Context, listingID, actingUserID string) (*services.CloseResult, error) {
	args := m.Called(ctx, listingID, actingUserID)
	return closeResultOrNil(args.Get(0)), args.Error(1)
}

func (m *MockNegotiationService) PauseListing(ctx context.Context, listingID, actingUserID string) (*models.Listing, error) {
	args := m.Called(ctx, listingID, actingUserID)
	return listingOrNil(args.Get(0)), args.Error(1)
}

func (m *MockNegotiationService) DeleteListing(ctx context.Context, listingID, actingUserID string) (*models.Listing, error) {
	args := m.Called(ctx, listingID, actingUserID)
	return listingOrNil(args.Get(0)), args.Error(1)
}

func (m *MockNegotiationService) FinalizeListing(ctx context.Context, listingID, actingUserID string) (*models.Listing, error) {
	args := m.Called(ctx, listingID, actingUserID)
	return listingOrNil(args.Get(0)), args.Error(1)
}

func (m *MockNegotiationService) SweepExpiredAuctions(ctx context.Context) (*services.SweepReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.SweepReport), args.Error(1)
}

func (m *MockNegotiationService) ReconcileClosedListings(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockNegotiationService) OffersForListing(ctx context.Context, listingID string) ([]*models.Offer, error) {
	args := m.Called(ctx, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Offer), args.Error(1)
}

func (m *MockNegotiationService) CurrentFloor(ctx context.Context, listingID string) (decimal.Decimal, error) {
	args := m.Called(ctx, listingID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// MockS3Storage
type MockS3Storage struct {
	mock.Mock
}

func (m *MockS3Storage) PresignUpload(ctx context.Context, req storage.UploadRequest) (*storage.Upload, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.Upload), args.Error(1)
}

// MockInbox
type MockInbox struct {
	mock.Mock
}

func (m *MockInbox) Deliver(ctx context.Context, batch map[string]cache.InboxMessage) error {
	args := m.Called(ctx, batch)
	return args.Error(0)
}

func (m *MockInbox) Recent(ctx context.Context, userID string, limit int64) ([]cache.InboxMessage, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]cache.InboxMessage), args.Error(1)
}

func listingOrNil(v interface{}) *models.Listing {
	if v == nil {
		return nil
	}
	return v.(*models.Listing)
}

func offerOrNil(v interface{}) *models.Offer {
	if v == nil {
		return nil
	}
	return v.(*models.Offer)
}

func closeResultOrNil(v interface{}) *services.CloseResult {
	if v == nil {
		return nil
	}
	return v.(*services.CloseResult)
}
