package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	notificationdomain "github.com/smallbiznis/digimart/internal/notification/domain"
)

func (s *Server) ListNotifications(c *gin.Context) {
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	items, err := s.notificationSvc.List(c.Request.Context(), mustActor(c).UserID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if items == nil {
		items = []notificationdomain.Notification{}
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) MarkNotificationRead(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := s.notificationSvc.MarkRead(c.Request.Context(), mustActor(c).UserID, id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
