package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

//go:generate mockgen -destination=mock/mock_ledger.go -package=mock github.com/smallbiznis/digimart/internal/payment/domain ExternalLedger

// DepositStatusSettled is the exchange status of a credited transfer.
const DepositStatusSettled = 1

// DepositRecord is one inbound transfer reported by the exchange.
type DepositRecord struct {
	TxID       string
	Coin       string
	Network    string
	Address    string
	Memo       string
	Amount     decimal.Decimal
	Status     int
	InsertTime time.Time
}

func (r DepositRecord) Settled() bool {
	return r.Status == DepositStatusSettled
}

// ExternalLedger lists deposits received by the platform's exchange account.
type ExternalLedger interface {
	DepositHistory(ctx context.Context, coin string, start, end time.Time) ([]DepositRecord, error)
}
