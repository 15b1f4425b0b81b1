package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greendrake/trueque/internal/models"
)

func TestListingService_CreateAuction(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	closesAt := testStart.Add(24 * time.Hour)

	l, err := h.listings.CreateAuction(ctx, CreateAuctionInput{
		ListingContent: ListingContent{OwnerID: "owner", Title: "  Bicycle ", Photos: []string{"listings/bike.jpg"}},
		ReservePrice:   decimal.RequireFromString("99.50"),
		ClosesAt:       closesAt,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, l.ID)
	assert.Equal(t, models.ListingKindAuction, l.Kind)
	assert.Equal(t, models.ListingStatusActive, l.Status)
	assert.Equal(t, "Bicycle", l.Title)
	assert.Nil(t, l.Barter)
	require.NotNil(t, l.Auction)
	assert.True(t, l.Auction.ReservePrice.Equal(decimal.RequireFromString("99.5")))
	require.NoError(t, l.CheckShape())

	require.Len(t, h.scheduler.closes, 1)
	assert.Equal(t, l.ID, h.scheduler.closes[0].listingID)
	assert.Equal(t, closesAt, h.scheduler.closes[0].at)

	stored := h.listing(t, l.ID)
	assert.Equal(t, l.Title, stored.Title)
}

func TestListingService_CreateAuctionValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateAuctionInput
		want error
	}{
		{"blank title", CreateAuctionInput{ListingContent: ListingContent{OwnerID: "owner", Title: "  "}, ClosesAt: testStart.Add(time.Hour)}, ErrInvalidListing},
		{"missing owner", CreateAuctionInput{ListingContent: ListingContent{Title: "Bike"}, ClosesAt: testStart.Add(time.Hour)}, ErrInvalidListing},
		{"unknown owner", CreateAuctionInput{ListingContent: ListingContent{OwnerID: "ghost", Title: "Bike"}, ClosesAt: testStart.Add(time.Hour)}, ErrUnknownUser},
		{"no close time", CreateAuctionInput{ListingContent: ListingContent{OwnerID: "owner", Title: "Bike"}}, ErrInvalidListing},
		{"too short", CreateAuctionInput{ListingContent: ListingContent{OwnerID: "owner", Title: "Bike"}, ClosesAt: testStart.Add(time.Second)}, ErrInvalidListing},
		{"too long", CreateAuctionInput{ListingContent: ListingContent{OwnerID: "owner", Title: "Bike"}, ClosesAt: testStart.Add(60 * 24 * time.Hour)}, ErrInvalidListing},
		{"negative reserve", CreateAuctionInput{ListingContent: ListingContent{OwnerID: "owner", Title: "Bike"}, ReservePrice: decimal.NewFromInt(-1), ClosesAt: testStart.Add(time.Hour)}, ErrInvalidAmount},
		{"over-precise reserve", CreateAuctionInput{ListingContent: ListingContent{OwnerID: "owner", Title: "Bike"}, ReservePrice: decimal.RequireFromString("99.999"), ClosesAt: testStart.Add(time.Hour)}, ErrInvalidAmount},
		{"blank photo", CreateAuctionInput{ListingContent: ListingContent{OwnerID: "owner", Title: "Bike", Photos: []string{""}}, ClosesAt: testStart.Add(time.Hour)}, ErrInvalidListing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.listings.CreateAuction(ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, h.scheduler.closes)
}

func TestListingService_ScheduleFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.scheduler.err = errors.New("redis down")

	l := h.auction(t, 10, time.Hour)
	assert.Equal(t, models.ListingStatusActive, h.listing(t, l.ID).Status)
}

func TestListingService_CreateBarter(t *testing.T) {
	h := newHarness(t)
	l, err := h.listings.CreateBarter(context.Background(), CreateBarterInput{
		ListingContent: ListingContent{OwnerID: "owner", Title: "Guitar", Description: "Six strings"},
		DesiredItems:   " keyboard ",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ListingKindBarter, l.Kind)
	require.NotNil(t, l.Barter)
	assert.Equal(t, "keyboard", l.Barter.DesiredItems)
	assert.Nil(t, l.Auction)
	assert.Empty(t, h.scheduler.closes)
}

func TestListingService_FindDeletedVisibleToModerators(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.barter(t)
	_, err := h.negotiation.DeleteListing(ctx, l.ID, "owner")
	require.NoError(t, err)

	_, err = h.listings.FindListingByID(ctx, l.ID, "")
	assert.ErrorIs(t, err, ErrListingNotFound)
	_, err = h.listings.FindListingByID(ctx, l.ID, "owner")
	assert.ErrorIs(t, err, ErrListingNotFound)

	found, err := h.listings.FindListingByID(ctx, l.ID, "mod")
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusDeleted, found.Status)
}

func TestListingService_UpdateListing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.barter(t)
	h.clock.Advance(time.Minute)

	_, err := h.listings.UpdateListing(ctx, l.ID, "alice", UpdateListingInput{Title: strPtr("Mine now")})
	assert.ErrorIs(t, err, ErrNotOwner)

	updated, err := h.listings.UpdateListing(ctx, l.ID, "owner", UpdateListingInput{
		Title:        strPtr("Acoustic guitar"),
		Photos:       []string{"listings/g1.jpg", "listings/g2.jpg"},
		DesiredItems: strPtr("a synth"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Acoustic guitar", updated.Title)
	assert.Equal(t, "a synth", updated.Barter.DesiredItems)
	assert.Len(t, updated.Photos, 2)
	assert.Equal(t, h.clock.Now(), updated.UpdatedAt)
	assert.Equal(t, testStart, updated.CreatedAt)

	_, err = h.listings.UpdateListing(ctx, l.ID, "owner", UpdateListingInput{Title: strPtr(" ")})
	assert.ErrorIs(t, err, ErrInvalidListing)

	_, err = h.negotiation.PauseListing(ctx, l.ID, "owner")
	require.NoError(t, err)
	_, err = h.listings.UpdateListing(ctx, l.ID, "owner", UpdateListingInput{Title: strPtr("Back")})
	assert.ErrorIs(t, err, ErrListingNotActive)
}

func TestListingService_UpdateAuctionTermsRejected(t *testing.T) {
	h := newHarness(t)
	l := h.auction(t, 100, time.Hour)
	_, err := h.listings.UpdateListing(context.Background(), l.ID, "owner", UpdateListingInput{DesiredItems: strPtr("cash")})
	assert.ErrorIs(t, err, ErrInvalidListing)
}

func TestListingService_SearchListings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.auction(t, 100, time.Hour)
	h.clock.Advance(time.Second)
	b := h.barter(t)
	h.clock.Advance(time.Second)
	gone := h.barter(t)
	_, err := h.negotiation.DeleteListing(ctx, gone.ID, "owner")
	require.NoError(t, err)

	all, err := h.listings.SearchListings(ctx, ListingFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, b.ID, all[0].ID)
	assert.Equal(t, a.ID, all[1].ID)

	auctions, err := h.listings.SearchListings(ctx, ListingFilter{Kind: models.ListingKindAuction})
	require.NoError(t, err)
	require.Len(t, auctions, 1)
	assert.Equal(t, a.ID, auctions[0].ID)

	none, err := h.listings.SearchListings(ctx, ListingFilter{OwnerID: "alice"})
	require.NoError(t, err)
	assert.Empty(t, none)

	hidden, err := h.listings.SearchListings(ctx, ListingFilter{Status: models.ListingStatusDeleted, ViewerID: "alice"})
	require.NoError(t, err)
	assert.Empty(t, hidden)

	deleted, err := h.listings.SearchListings(ctx, ListingFilter{Status: models.ListingStatusDeleted, ViewerID: "mod"})
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, gone.ID, deleted[0].ID)

	limited, err := h.listings.SearchListings(ctx, ListingFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
