package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"greendrake/trueque/internal/api/handlers"
	"greendrake/trueque/internal/api/middleware"
	"greendrake/trueque/internal/auth"
	"greendrake/trueque/internal/cache"
	"greendrake/trueque/internal/config"
	"greendrake/trueque/internal/services"
	"greendrake/trueque/internal/storage"
	"greendrake/trueque/internal/store"
)

// SetupRouter configures and returns the main Gin engine.
// s3Storage and inbox may be nil; their endpoints then degrade instead of failing startup.
func SetupRouter(cfg *config.Config, listingService services.IListingService, negotiationService services.INegotiationService,
	s3Storage storage.IS3Storage, inbox cache.IInbox, rateLimiter *middleware.RateLimiterMiddleware) *gin.Engine {
	r := gin.Default()

	// Apply global middleware first (order matters)
	r.Use(middleware.CORSMiddleware(cfg.CorsAllowedOrigins))
	r.Use(middleware.TimeoutMiddleware(cfg.OperationTimeout))

	// Initialize handlers
	restListingHandler := handlers.NewRestListingHandler(listingService, negotiationService)
	restOfferHandler := handlers.NewRestOfferHandler(negotiationService)
	restUploadHandler := handlers.NewRestUploadHandler(s3Storage)
	restInboxHandler := handlers.NewRestInboxHandler(inbox)

	v1 := r.Group("/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// Public Routes. A valid bearer token is still read so moderators see DELETED listings.
		public := v1.Group("/")
		public.Use(middleware.OptionalAuthMiddleware(cfg.JwtSecret))
		{
			public.GET("/listing", restListingHandler.SearchListings)
			public.GET("/listing/:id", restListingHandler.GetListingByID)
			public.GET("/listing/:id/offers", restOfferHandler.ListOffers)
			public.GET("/listing/:id/floor", restOfferHandler.GetFloor)
		}

		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			authRequired.POST("/listing/auction", restListingHandler.CreateAuction)
			authRequired.POST("/listing/barter", restListingHandler.CreateBarter)
			authRequired.PATCH("/listing/:id", restListingHandler.UpdateListing)
			authRequired.DELETE("/listing/:id", restListingHandler.DeleteListing)
			authRequired.POST("/listing/:id/pause", restListingHandler.PauseListing)
			authRequired.POST("/listing/:id/close", restListingHandler.CloseListing)
			authRequired.POST("/listing/:id/finalize", restListingHandler.FinalizeListing)
			authRequired.POST("/listing/:id/offers", rateLimiter.Limit(), restOfferHandler.SubmitOffer)

			authRequired.POST("/offer/:id/accept", restOfferHandler.AcceptOffer)
			authRequired.POST("/offer/:id/reject", restOfferHandler.RejectOffer)
			authRequired.POST("/offer/:id/withdraw", restOfferHandler.WithdrawOffer)
			authRequired.DELETE("/offer/:id", restOfferHandler.RemoveOffer)

			authRequired.POST("/upload-url", restUploadHandler.CreateUploadURL)
			authRequired.GET("/inbox", restInboxHandler.GetInbox)
		}
	}

	return r
}

// SetupServiceRouter configures and returns the service Gin engine.
// indexes is nil for stores that keep no index of their own.
func SetupServiceRouter(cfg *config.Config, negotiationService services.INegotiationService, indexes store.IndexMaintainer, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			fmt.Println("Received shutdown command via Service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
				fmt.Println("Shutdown signal sent successfully.")
			default:
				fmt.Println("Shutdown channel already signaled or blocked.")
			}
		case "issueToken":
			var args struct {
				UserID    string `json:"user_id"`
				Moderator bool   `json:"moderator"`
			}
			if err := json.Unmarshal(req.Arguments, &args); err != nil || args.UserID == "" {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected {\"user_id\": string, \"moderator\": bool}"})
				return
			}
			token, err := auth.GenerateJWT(args.UserID, args.Moderator, cfg.JwtSecret, cfg.JwtTTL)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "result": token})
		case "sweepAuctions":
			// The sweep must finish even if the caller hangs up.
			report, err := negotiationService.SweepExpiredAuctions(context.WithoutCancel(c.Request.Context()))
			if err != nil {
				log.Printf("Service API: sweep failed: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error(), "result": report})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "result": report})
		case "verifyIndex":
			if indexes == nil {
				c.JSON(http.StatusOK, gin.H{"success": true, "result": "Store keeps no separate index"})
				return
			}
			var args struct {
				Rebuild bool `json:"rebuild"`
			}
			if len(req.Arguments) > 0 {
				if err := json.Unmarshal(req.Arguments, &args); err != nil {
					c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected {\"rebuild\": bool}"})
					return
				}
			}
			if err := indexes.VerifyIndex(); err != nil {
				if !args.Rebuild {
					c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
					return
				}
				log.Printf("Service API: index drift, rebuilding: %v", err)
				indexes.RebuildIndex()
				c.JSON(http.StatusOK, gin.H{"success": true, "result": "Index rebuilt"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Index consistent"})
		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}
