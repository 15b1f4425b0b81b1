package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"greendrake/trueque/internal/api/middleware"
	"greendrake/trueque/internal/cache"
)

type RestInboxHandler struct {
	inbox cache.IInbox
}

func NewRestInboxHandler(inbox cache.IInbox) *RestInboxHandler {
	return &RestInboxHandler{inbox: inbox}
}

// GetInbox handles GET /v1/inbox
func (h *RestInboxHandler) GetInbox(c *gin.Context) {
	if h.inbox == nil {
		c.JSON(http.StatusOK, gin.H{"data": []cache.InboxMessage{}})
		return
	}
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)
	if err != nil || limit <= 0 || limit > cache.DefaultInboxSize {
		limit = 20
	}
	msgs, err := h.inbox.Recent(c.Request.Context(), middleware.UserID(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": msgs})
}
