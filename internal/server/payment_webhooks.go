package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/digimart/internal/payment/domain"
	"go.uber.org/zap"
)

// maxWebhookBody caps provider payloads; gateway events are a few KB.
const maxWebhookBody = 1 << 20

// HandlePaymentWebhook acknowledges replayed events with 200 so the gateway
// stops retrying them.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.ToLower(strings.TrimSpace(c.Param("provider")))
	if provider == "" {
		AbortWithError(c, newValidationError("provider", "required", "provider is required"))
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err = s.paymentSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	case errors.Is(err, paymentdomain.ErrEventAlreadyProcessed):
		s.log.Debug("payment webhook replayed", zap.String("provider", provider))
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
	default:
		AbortWithError(c, err)
	}
}
