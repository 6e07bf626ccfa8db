package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/digimart/internal/audit/domain"
	reviewdomain "github.com/smallbiznis/digimart/internal/review/domain"
	"github.com/smallbiznis/digimart/pkg/db/pagination"
)

type reviewRequest struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

func (s *Server) ReviewOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	action, err := reviewdomain.ParseAction(req.Action)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	decision, err := s.reviewSvc.Review(c.Request.Context(), reviewdomain.Request{
		AdminID: mustActor(c).UserID,
		OrderID: orderID,
		Action:  action,
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, decision)
}

type auditLogQuery struct {
	pagination.Pagination
	Action     string `form:"action"`
	TargetType string `form:"target_type"`
	TargetID   string `form:"target_id"`
	ActorID    string `form:"actor_id"`
	StartAt    string `form:"start_at"`
	EndAt      string `form:"end_at"`
}

// ListAuditLogs pages through the review and inventory audit trail.
func (s *Server) ListAuditLogs(c *gin.Context) {
	var query auditLogQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	startAt, ok := parseTimeQuery(c, "start_at", query.StartAt)
	if !ok {
		return
	}
	endAt, ok := parseTimeQuery(c, "end_at", query.EndAt)
	if !ok {
		return
	}

	resp, err := s.auditSvc.List(c.Request.Context(), auditdomain.ListAuditLogRequest{
		Pagination: query.Pagination,
		Action:     query.Action,
		TargetType: query.TargetType,
		TargetID:   query.TargetID,
		ActorID:    query.ActorID,
		StartAt:    startAt,
		EndAt:      endAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func parseTimeQuery(c *gin.Context, field, raw string) (*time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		AbortWithError(c, newValidationError(field, "invalid", field+" must be RFC3339"))
		return nil, false
	}
	return &parsed, true
}
