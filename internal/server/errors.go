package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/digimart/internal/audit/domain"
	"github.com/smallbiznis/digimart/internal/authorization"
	catalogdomain "github.com/smallbiznis/digimart/internal/catalog/domain"
	checkoutdomain "github.com/smallbiznis/digimart/internal/checkout/domain"
	fulfillmentdomain "github.com/smallbiznis/digimart/internal/fulfillment/domain"
	inventorydomain "github.com/smallbiznis/digimart/internal/inventory/domain"
	notificationdomain "github.com/smallbiznis/digimart/internal/notification/domain"
	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
	paymentdomain "github.com/smallbiznis/digimart/internal/payment/domain"
	recondomain "github.com/smallbiznis/digimart/internal/reconciliation/domain"
	refunddomain "github.com/smallbiznis/digimart/internal/refund/domain"
	reviewdomain "github.com/smallbiznis/digimart/internal/review/domain"
	walletdomain "github.com/smallbiznis/digimart/internal/wallet/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
	Detail  any               `json:"detail,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// stockDetail is returned with 409 responses so the client can shrink the cart.
type stockDetail struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Requested int    `json:"requested"`
	Available int64  `json:"available"`
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if field, ok := validationField(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  []ValidationError{
				{
					Field:   field,
					Code:    err.Error(),
					Message: "invalid value",
				},
			},
		}
	}

	var stockErr *inventorydomain.InsufficientStockError
	if errors.As(err, &stockErr) {
		return http.StatusConflict, errorPayload{
			Type:    "insufficient_stock",
			Message: stockErr.Error(),
			Detail:  stockDetail{
				ProductID: stockErr.ProductID.String(),
				Name:      stockErr.Name,
				Requested: stockErr.Requested,
				Available: stockErr.Available,
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, inventorydomain.ErrNotProductOwner),
		errors.Is(err, checkoutdomain.ErrOwnProduct),
		errors.Is(err, reviewdomain.ErrInvalidAdmin):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: err.Error(),
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, inventorydomain.ErrInsufficientStock),
		errors.Is(err, checkoutdomain.ErrProductUnavailable),
		errors.Is(err, walletdomain.ErrDepositInFlight),
		errors.Is(err, walletdomain.ErrConcurrentUpdate),
		errors.Is(err, refunddomain.ErrRefundAlreadyRequested),
		errors.Is(err, reviewdomain.ErrNotUnderReview),
		errors.Is(err, fulfillmentdomain.ErrNotForceable):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case errors.Is(err, walletdomain.ErrInsufficientFunds),
		errors.Is(err, refunddomain.ErrNotRefundable),
		errors.Is(err, refunddomain.ErrRefundWindowExpired),
		errors.Is(err, refunddomain.ErrNothingToRefund),
		errors.Is(err, refunddomain.ErrOrderNotCompleted),
		errors.Is(err, recondomain.ErrNotCryptoPayment),
		errors.Is(err, inventorydomain.ErrProductNotInstant),
		errors.Is(err, walletdomain.ErrUnsupportedAsset),
		errors.Is(err, walletdomain.ErrDepositBelowMinimum):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "unprocessable",
			Message: err.Error(),
		}
	case errors.Is(err, recondomain.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many verification attempts",
		}
	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "invalid_signature",
			Message: "invalid signature",
		}
	case errors.Is(err, paymentdomain.ErrProviderNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: err.Error(),
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, paymentdomain.ErrProviderUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

// validationField reports the request field a domain validation error refers to.
func validationField(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidEvent),
		errors.Is(err, paymentdomain.ErrInvalidProvider):
		return "request", true
	case errors.Is(err, checkoutdomain.ErrEmptyCart):
		return "items", true
	case errors.Is(err, checkoutdomain.ErrInvalidQuantity):
		return "quantity", true
	case errors.Is(err, checkoutdomain.ErrInvalidBuyer),
		errors.Is(err, walletdomain.ErrInvalidUser):
		return "user_id", true
	case errors.Is(err, orderdomain.ErrInvalidPaymentMethod):
		return "method", true
	case errors.Is(err, orderdomain.ErrInvalidDetails):
		return "payment_details", true
	case errors.Is(err, walletdomain.ErrInvalidAmount):
		return "amount", true
	case errors.Is(err, inventorydomain.ErrEmptyUpload),
		errors.Is(err, inventorydomain.ErrUploadTooLarge):
		return "codes", true
	case errors.Is(err, inventorydomain.ErrInvalidAccount):
		return "accounts", true
	case errors.Is(err, reviewdomain.ErrInvalidAction):
		return "action", true
	case errors.Is(err, auditdomain.ErrInvalidPageToken):
		return "page_token", true
	case errors.Is(err, auditdomain.ErrInvalidTimeRange):
		return "start_at", true
	default:
		return "", false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, orderdomain.ErrOrderNotFound),
		errors.Is(err, catalogdomain.ErrProductNotFound),
		errors.Is(err, inventorydomain.ErrProductNotFound),
		errors.Is(err, walletdomain.ErrDepositNotFound),
		errors.Is(err, notificationdomain.ErrNotificationNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// classifyErrorForLog maps an error to the type and code fields of the access log.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		return payload.Type, http.StatusText(status)
	}
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}
