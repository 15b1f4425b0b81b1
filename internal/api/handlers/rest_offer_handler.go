package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"greendrake/trueque/internal/api/middleware"
	"greendrake/trueque/internal/services"
)

// RestOfferHandler handles REST requests for offers and bids.
type RestOfferHandler struct {
	negotiationService services.INegotiationService
}

// NewRestOfferHandler creates a new RestOfferHandler.
func NewRestOfferHandler(negotiationService services.INegotiationService) *RestOfferHandler {
	return &RestOfferHandler{negotiationService: negotiationService}
}

type submitOfferRequest struct {
	Amount            decimal.Decimal `json:"amount"`
	BarterDescription *string         `json:"barter_description"`
	Images            []string        `json:"images"`
}

// ListOffers handles GET /v1/listing/:id/offers
func (h *RestOfferHandler) ListOffers(c *gin.Context) {
	offers, err := h.negotiationService.OffersForListing(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": offers})
}

// GetFloor handles GET /v1/listing/:id/floor
func (h *RestOfferHandler) GetFloor(c *gin.Context) {
	floor, err := h.negotiationService.CurrentFloor(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"floor": floor.String()})
}

// SubmitOffer handles POST /v1/listing/:id/offers
func (h *RestOfferHandler) SubmitOffer(c *gin.Context) {
	var req submitOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "code": services.CodeInvalidAmount})
		return
	}
	offer, err := h.negotiationService.SubmitOffer(c.Request.Context(), services.SubmitOfferInput{
		ListingID:         c.Param("id"),
		BidderID:          middleware.UserID(c),
		Amount:            req.Amount,
		BarterDescription: req.BarterDescription,
		Images:            req.Images,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, offer)
}

// AcceptOffer handles POST /v1/offer/:id/accept
func (h *RestOfferHandler) AcceptOffer(c *gin.Context) {
	res, err := h.negotiationService.AcceptOffer(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listing": res.Listing, "winner": res.Winner})
}

// RejectOffer handles POST /v1/offer/:id/reject
func (h *RestOfferHandler) RejectOffer(c *gin.Context) {
	offer, err := h.negotiationService.RejectOffer(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, offer)
}

// WithdrawOffer handles POST /v1/offer/:id/withdraw
func (h *RestOfferHandler) WithdrawOffer(c *gin.Context) {
	offer, err := h.negotiationService.WithdrawOffer(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, offer)
}

// RemoveOffer handles DELETE /v1/offer/:id
func (h *RestOfferHandler) RemoveOffer(c *gin.Context) {
	if err := h.negotiationService.RemoveOffer(c.Request.Context(), c.Param("id"), middleware.UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
