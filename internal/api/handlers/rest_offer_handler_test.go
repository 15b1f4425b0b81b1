package handlers_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"greendrake/trueque/internal/api/handlers"
	"greendrake/trueque/internal/models"
	"greendrake/trueque/internal/services"
)

func testOffer(id string, amount int64, status models.OfferStatus) *models.Offer {
	return &models.Offer{
		ID:        id,
		ListingID: "l1",
		BidderID:  "alice",
		Amount:    decimal.NewFromInt(amount),
		Status:    status,
	}
}

func TestRestOfferHandler_SubmitOffer(t *testing.T) {
	negotiation := new(MockNegotiationService)
	handler := handlers.NewRestOfferHandler(negotiation)

	r := newTestRouter("alice")
	r.POST("/v1/listing/:id/offers", handler.SubmitOffer)

	negotiation.On("SubmitOffer", mock.Anything, mock.MatchedBy(func(in services.SubmitOfferInput) bool {
		return in.ListingID == "l1" && in.BidderID == "alice" && in.Amount.Equal(decimal.NewFromInt(150))
	})).Return(testOffer("o1", 150, models.OfferStatusPending), nil)

	w := doJSON(r, http.MethodPost, "/v1/listing/l1/offers", `{"amount":150}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"PENDING"`)
	negotiation.AssertExpectations(t)
}

func TestRestOfferHandler_SubmitOffer_BidTooLow(t *testing.T) {
	negotiation := new(MockNegotiationService)
	handler := handlers.NewRestOfferHandler(negotiation)

	r := newTestRouter("bob")
	r.POST("/v1/listing/:id/offers", handler.SubmitOffer)

	floor := decimal.NewFromInt(150)
	tooLow := &services.Error{
		Kind:    services.KindStateConflict,
		Code:    services.CodeBidTooLow,
		Message: "bid must be greater than 150",
		Floor:   &floor,
	}
	negotiation.On("SubmitOffer", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("submit: %w", tooLow))

	w := doJSON(r, http.MethodPost, "/v1/listing/l1/offers", `{"amount":"150"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"bid must be greater than 150","code":"bid_too_low","floor":"150"}`, w.Body.String())
}

func TestRestOfferHandler_SubmitOffer_BadAmount(t *testing.T) {
	negotiation := new(MockNegotiationService)
	handler := handlers.NewRestOfferHandler(negotiation)

	r := newTestRouter("bob")
	r.POST("/v1/listing/:id/offers", handler.SubmitOffer)

	w := doJSON(r, http.MethodPost, "/v1/listing/l1/offers", `{"amount":"lots"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_amount")
	negotiation.AssertNotCalled(t, "SubmitOffer", mock.Anything, mock.Anything)
}

func TestRestOfferHandler_SubmitOffer_Timeout(t *testing.T) {
	negotiation := new(MockNegotiationService)
	handler := handlers.NewRestOfferHandler(negotiation)

	r := newTestRouter("bob")
	r.POST("/v1/listing/:id/offers", handler.SubmitOffer)

	negotiation.On("SubmitOffer", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("lock listing l1: %w", context.DeadlineExceeded))

	w := doJSON(r, http.MethodPost, "/v1/listing/l1/offers", `{"amount":200}`)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"timeout"`)
}

func TestRestOfferHandler_ListOffersAndFloor(t *testing.T) {
	negotiation := new(MockNegotiationService)
	handler := handlers.NewRestOfferHandler(negotiation)

	r := newTestRouter("")
	r.GET("/v1/listing/:id/offers", handler.ListOffers)
	r.GET("/v1/listing/:id/floor", handler.GetFloor)

	negotiation.On("OffersForListing", mock.Anything, "l1").Return([]*models.Offer{
		testOffer("o1", 150, models.OfferStatusPending),
		testOffer("o2", 120, models.OfferStatusRejected),
	}, nil)
	negotiation.On("CurrentFloor", mock.Anything, "l1").Return(decimal.NewFromInt(150), nil)
	negotiation.On("CurrentFloor", mock.Anything, "b1").Return(decimal.Zero, services.ErrNotAuction)

	w := doJSON(r, http.MethodGet, "/v1/listing/l1/offers", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"o2"`)

	w = doJSON(r, http.MethodGet, "/v1/listing/l1/floor", "")
	assert.JSONEq(t, `{"floor":"150"}`, w.Body.String())

	assert.Equal(t, http.StatusBadRequest, doJSON(r, http.MethodGet, "/v1/listing/b1/floor", "").Code)
}

func TestRestOfferHandler_AcceptOffer(t *testing.T) {
	negotiation := new(MockNegotiationService)
	handler := handlers.NewRestOfferHandler(negotiation)

	r := newTestRouter("owner")
	r.POST("/v1/offer/:id/accept", handler.AcceptOffer)

	closed := testListing("l1")
	closed.Status = models.ListingStatusClosed
	winner := testOffer("o1", 150, models.OfferStatusAccepted)
	negotiation.On("AcceptOffer", mock.Anything, "o1", "owner").Return(&services.CloseResult{Listing: closed, Winner: winner}, nil)
	negotiation.On("AcceptOffer", mock.Anything, "o2", "owner").Return(nil, services.ErrNotHighestBid)

	w := doJSON(r, http.MethodPost, "/v1/offer/o1/accept", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ACCEPTED"`)
	assert.Contains(t, w.Body.String(), `"status":"CLOSED"`)

	w = doJSON(r, http.MethodPost, "/v1/offer/o2/accept", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "not_highest_bid")
	negotiation.AssertExpectations(t)
}

func TestRestOfferHandler_RejectWithdrawRemove(t *testing.T) {
	negotiation := new(MockNegotiationService)
	handler := handlers.NewRestOfferHandler(negotiation)

	r := newTestRouter("alice")
	r.POST("/v1/offer/:id/reject", handler.RejectOffer)
	r.POST("/v1/offer/:id/withdraw", handler.WithdrawOffer)
	r.DELETE("/v1/offer/:id", handler.RemoveOffer)

	negotiation.On("RejectOffer", mock.Anything, "o1", "alice").Return(nil, services.ErrNotOwner)
	negotiation.On("WithdrawOffer", mock.Anything, "o1", "alice").Return(testOffer("o1", 150, models.OfferStatusCancelled), nil)
	negotiation.On("RemoveOffer", mock.Anything, "o1", "alice").Return(nil)
	negotiation.On("RemoveOffer", mock.Anything, "gone", "alice").Return(services.ErrOfferNotFound)

	assert.Equal(t, http.StatusForbidden, doJSON(r, http.MethodPost, "/v1/offer/o1/reject", "").Code)

	w := doJSON(r, http.MethodPost, "/v1/offer/o1/withdraw", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"CANCELLED"`)

	assert.Equal(t, http.StatusNoContent, doJSON(r, http.MethodDelete, "/v1/offer/o1", "").Code)
	assert.Equal(t, http.StatusNotFound, doJSON(r, http.MethodDelete, "/v1/offer/gone", "").Code)
	negotiation.AssertExpectations(t)
}
