package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
	paymentdomain "github.com/smallbiznis/digimart/internal/payment/domain"
	walletdomain "github.com/smallbiznis/digimart/internal/wallet/domain"
)

var (
	ErrRateLimited      = errors.New("verification_rate_limited")
	ErrNotCryptoPayment = errors.New("not_crypto_payment")
)

type Source string

const (
	SourcePayment Source = "payment"
	SourceDeposit Source = "deposit"
)

// Pending is one obligation awaiting an inbound transfer. Ref is the
// checkout group id for payments and the deposit id for top-ups.
type Pending struct {
	Source Source
	Ref    snowflake.ID
	Memo   string
	Amount decimal.Decimal
	Coin   string
}

type Match struct {
	Pending Pending
	Record  paymentdomain.DepositRecord
}

// Report summarises one reconciliation cycle.
type Report struct {
	Expired   int `json:"expired"`
	Pending   int `json:"pending"`
	Queries   int `json:"queries"`
	Matched   int `json:"matched"`
	Credited  int `json:"credited"`
	Fulfilled int `json:"fulfilled"`
}

type PaymentStatus struct {
	OrderID       snowflake.ID              `json:"order_id"`
	Status        orderdomain.Status        `json:"status"`
	PaymentStatus orderdomain.PaymentStatus `json:"payment_status"`
}

// Limiter throttles user triggered verification checks.
type Limiter interface {
	Allow(ctx context.Context, userID snowflake.ID) (bool, error)
}

type Service interface {
	Run(ctx context.Context) (Report, error)
	VerifyDeposit(ctx context.Context, userID, depositID snowflake.ID) (walletdomain.DepositView, error)
	VerifyPayment(ctx context.Context, buyerID, orderID snowflake.ID) (PaymentStatus, error)
}
