package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
)

var (
	ErrEmptyCart          = errors.New("empty_cart")
	ErrInvalidQuantity    = errors.New("invalid_quantity")
	ErrInvalidBuyer       = errors.New("invalid_buyer")
	ErrProductUnavailable = errors.New("product_unavailable")
	ErrOwnProduct         = errors.New("cannot_buy_own_product")
)

type CartItem struct {
	ProductID snowflake.ID `json:"product_id"`
	Quantity  int          `json:"quantity"`
}

type Request struct {
	BuyerID snowflake.ID
	Items   []CartItem
	Method  orderdomain.PaymentMethod
}

// ResponseKind tells the client how to continue after checkout.
type ResponseKind string

const (
	ResponseRedirect  ResponseKind = "redirect"
	ResponseQR        ResponseKind = "qr"
	ResponseCrypto    ResponseKind = "crypto"
	ResponseCompleted ResponseKind = "completed"
	ResponseWallet    ResponseKind = "wallet"
)

// Response is one of the method specific checkout outcomes.
type Response interface {
	Kind() ResponseKind
	Orders() []snowflake.ID
}

type RedirectResponse struct {
	URL      string         `json:"url"`
	OrderIDs []snowflake.ID `json:"order_ids"`
}

func (RedirectResponse) Kind() ResponseKind       { return ResponseRedirect }
func (r RedirectResponse) Orders() []snowflake.ID { return r.OrderIDs }

type QRResponse struct {
	Reference string         `json:"reference"`
	QRPayload string         `json:"qr_payload"`
	QRImage   string         `json:"qr_image,omitempty"`
	ExpiresAt time.Time      `json:"expires_at"`
	OrderIDs  []snowflake.ID `json:"order_ids"`
}

func (QRResponse) Kind() ResponseKind       { return ResponseQR }
func (r QRResponse) Orders() []snowflake.ID { return r.OrderIDs }

type CryptoResponse struct {
	Address   string          `json:"address"`
	Coin      string          `json:"coin"`
	Network   string          `json:"network"`
	MemoToken string          `json:"memo_token"`
	Amount    decimal.Decimal `json:"amount"`
	ExpiresAt time.Time       `json:"expires_at"`
	OrderIDs  []snowflake.ID  `json:"order_ids"`
}

func (CryptoResponse) Kind() ResponseKind       { return ResponseCrypto }
func (r CryptoResponse) Orders() []snowflake.ID { return r.OrderIDs }

// CompletedResponse is returned when the payment settled immediately. Sandbox
// marks a demo settlement that collected no money.
type CompletedResponse struct {
	OrderIDs []snowflake.ID `json:"order_ids"`
	Sandbox  bool           `json:"sandbox"`
}

func (CompletedResponse) Kind() ResponseKind       { return ResponseCompleted }
func (r CompletedResponse) Orders() []snowflake.ID { return r.OrderIDs }

type WalletResponse struct {
	OrderIDs []snowflake.ID  `json:"order_ids"`
	Balance  decimal.Decimal `json:"balance"`
}

func (WalletResponse) Kind() ResponseKind       { return ResponseWallet }
func (r WalletResponse) Orders() []snowflake.ID { return r.OrderIDs }

// Quote is the fee breakdown of one seller group.
type Quote struct {
	SellerID         snowflake.ID
	Subtotal         decimal.Decimal
	ServiceFee       decimal.Decimal
	Total            decimal.Decimal
	CommissionRate   decimal.Decimal
	CommissionAmount decimal.Decimal
	SellerEarnings   decimal.Decimal
}

type Service interface {
	Checkout(ctx context.Context, req Request) (Response, error)
}
