package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"greendrake/trueque/internal/services"
)

var kindStatus = map[services.ErrorKind]int{
	services.KindValidation:    http.StatusBadRequest,
	services.KindPermission:    http.StatusForbidden,
	services.KindStateConflict: http.StatusConflict,
	services.KindNotFound:      http.StatusNotFound,
}

// respondError writes the JSON error body for a service failure.
// Infrastructure errors are logged and hidden behind a generic message.
func respondError(c *gin.Context, err error) {
	var merr *services.Error
	if errors.As(err, &merr) {
		body := gin.H{"error": merr.Message, "code": merr.Code}
		if merr.Floor != nil {
			body["floor"] = merr.Floor.String()
		}
		c.JSON(kindStatus[merr.Kind], body)
		return
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Listing is busy, try again", "code": "timeout"})
		return
	}
	_ = c.Error(err)
	log.Printf("ERROR %s %s: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": services.CodeInvalidListing})
}
