package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"greendrake/trueque/internal/api/middleware"
	"greendrake/trueque/internal/storage"
)

// RestUploadHandler hands out pre-signed URLs for listing photos and offer images.
type RestUploadHandler struct {
	storage storage.IS3Storage
}

// NewRestUploadHandler creates a new RestUploadHandler. A nil storage makes
// every request answer 503.
func NewRestUploadHandler(s storage.IS3Storage) *RestUploadHandler {
	return &RestUploadHandler{storage: s}
}

type uploadURLRequest struct {
	Purpose     string `json:"purpose" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
}

// CreateUploadURL handles POST /v1/upload-url
func (h *RestUploadHandler) CreateUploadURL(c *gin.Context) {
	if h.storage == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Uploads are not configured"})
		return
	}
	var req uploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	up, err := h.storage.PresignUpload(c.Request.Context(), storage.UploadRequest{
		UserID:      middleware.UserID(c),
		Purpose:     req.Purpose,
		ContentType: req.ContentType,
	})
	if errors.Is(err, storage.ErrInvalidUpload) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_upload"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, up)
}
