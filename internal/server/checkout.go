package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/smallbiznis/digimart/internal/checkout/domain"
	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
)

type checkoutItemRequest struct {
	ProductID snowflake.ID `json:"product_id"`
	Quantity  int          `json:"quantity"`
}

type checkoutRequest struct {
	Items         []checkoutItemRequest `json:"items"`
	PaymentMethod string                `json:"payment_method"`
}

type checkoutResponse struct {
	Type checkoutdomain.ResponseKind `json:"type"`
	Data checkoutdomain.Response     `json:"data"`
}

func (s *Server) Checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	method, err := orderdomain.ParseWireMethod(req.PaymentMethod)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("payment_method", method.Wire())

	items := make([]checkoutdomain.CartItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, checkoutdomain.CartItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	resp, err := s.checkoutSvc.Checkout(c.Request.Context(), checkoutdomain.Request{
		BuyerID: mustActor(c).UserID,
		Items:   items,
		Method:  method,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, checkoutResponse{Type: resp.Kind(), Data: resp})
}
