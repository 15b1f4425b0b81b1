package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"greendrake/trueque/internal/api/middleware"
	"greendrake/trueque/internal/models"
	"greendrake/trueque/internal/services"
)

// RestListingHandler handles REST requests for listings.
type RestListingHandler struct {
	listingService     services.IListingService
	negotiationService services.INegotiationService
}

// NewRestListingHandler creates a new RestListingHandler.
func NewRestListingHandler(listingService services.IListingService, negotiationService services.INegotiationService) *RestListingHandler {
	return &RestListingHandler{
		listingService:     listingService,
		negotiationService: negotiationService,
	}
}

type listingContentRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Photos      []string `json:"photos"`
}

type createAuctionRequest struct {
	listingContentRequest
	ReservePrice decimal.Decimal `json:"reserve_price"`
	ClosesAt     time.Time       `json:"closes_at"`
}

type createBarterRequest struct {
	listingContentRequest
	DesiredItems string `json:"desired_items"`
}

type updateListingRequest struct {
	Title        *string  `json:"title"`
	Description  *string  `json:"description"`
	Photos       []string `json:"photos"`
	DesiredItems *string  `json:"desired_items"`
}

func (r listingContentRequest) content(ownerID string) services.ListingContent {
	return services.ListingContent{OwnerID: ownerID, Title: r.Title, Description: r.Description, Photos: r.Photos}
}

// SearchListings handles GET /v1/listing
func (h *RestListingHandler) SearchListings(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 200 {
		limit = 50
	}
	filter := services.ListingFilter{
		Kind:     models.ListingKind(strings.ToUpper(c.Query("kind"))),
		OwnerID:  c.Query("owner"),
		Status:   models.ListingStatus(strings.ToUpper(c.Query("status"))),
		ViewerID: middleware.UserID(c),
		Limit:    limit,
	}

	listings, err := h.listingService.SearchListings(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": listings})
}

// GetListingByID handles GET /v1/listing/:id
func (h *RestListingHandler) GetListingByID(c *gin.Context) {
	listing, err := h.listingService.FindListingByID(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// CreateAuction handles POST /v1/listing/auction
func (h *RestListingHandler) CreateAuction(c *gin.Context) {
	var req createAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	listing, err := h.listingService.CreateAuction(c.Request.Context(), services.CreateAuctionInput{
		ListingContent: req.content(middleware.UserID(c)),
		ReservePrice:   req.ReservePrice,
		ClosesAt:       req.ClosesAt,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, listing)
}

// CreateBarter handles POST /v1/listing/barter
func (h *RestListingHandler) CreateBarter(c *gin.Context) {
	var req createBarterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	listing, err := h.listingService.CreateBarter(c.Request.Context(), services.CreateBarterInput{
		ListingContent: req.content(middleware.UserID(c)),
		DesiredItems:   req.DesiredItems,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, listing)
}

// UpdateListing handles PATCH /v1/listing/:id
func (h *RestListingHandler) UpdateListing(c *gin.Context) {
	var req updateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	listing, err := h.listingService.UpdateListing(c.Request.Context(), c.Param("id"), middleware.UserID(c), services.UpdateListingInput{
		Title:        req.Title,
		Description:  req.Description,
		Photos:       req.Photos,
		DesiredItems: req.DesiredItems,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// PauseListing handles POST /v1/listing/:id/pause
func (h *RestListingHandler) PauseListing(c *gin.Context) {
	h.transition(c, h.negotiationService.PauseListing)
}

// FinalizeListing handles POST /v1/listing/:id/finalize
func (h *RestListingHandler) FinalizeListing(c *gin.Context) {
	h.transition(c, h.negotiationService.FinalizeListing)
}

// DeleteListing handles DELETE /v1/listing/:id
func (h *RestListingHandler) DeleteListing(c *gin.Context) {
	h.transition(c, h.negotiationService.DeleteListing)
}

func (h *RestListingHandler) transition(c *gin.Context, op func(ctx context.Context, listingID, actingUserID string) (*models.Listing, error)) {
	listing, err := op(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// CloseListing handles POST /v1/listing/:id/close. The owner closes an
// auction early; its best qualifying bid wins.
func (h *RestListingHandler) CloseListing(c *gin.Context) {
	res, err := h.negotiationService.CloseAuction(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listing": res.Listing, "winner": res.Winner})
}
