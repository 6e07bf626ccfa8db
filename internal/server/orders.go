package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	refunddomain "github.com/smallbiznis/digimart/internal/refund/domain"
)

func (s *Server) VerifyPayment(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	status, err := s.reconciliation.VerifyPayment(c.Request.Context(), mustActor(c).UserID, orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

func (s *Server) QuoteRefund(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	quote, err := s.refundSvc.Quote(c.Request.Context(), mustActor(c).UserID, orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, quote)
}

type refundRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) RequestRefund(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	var req refundRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	refund, err := s.refundSvc.RequestRefund(c.Request.Context(), refunddomain.Request{
		BuyerID: mustActor(c).UserID,
		OrderID: orderID,
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, refund)
}
