package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type DetailsKind string

const (
	DetailsKindCardRedirect   DetailsKind = "card_redirect"
	DetailsKindLocalQR        DetailsKind = "local_qr"
	DetailsKindCryptoTransfer DetailsKind = "crypto_transfer"
	DetailsKindWallet         DetailsKind = "wallet"
	DetailsKindSandbox        DetailsKind = "sandbox"
)

// PaymentDetails is the closed set of provider payloads stored on a payment.
type PaymentDetails interface {
	Kind() DetailsKind
}

type CardRedirectDetails struct {
	SessionID string    `json:"session_id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (CardRedirectDetails) Kind() DetailsKind { return DetailsKindCardRedirect }

type LocalQRDetails struct {
	Reference string    `json:"reference"`
	Payload   string    `json:"payload"`
	ImagePNG  string    `json:"image_png,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (LocalQRDetails) Kind() DetailsKind { return DetailsKindLocalQR }

type CryptoTransferDetails struct {
	Address   string          `json:"address"`
	Coin      string          `json:"coin"`
	Network   string          `json:"network"`
	MemoToken string          `json:"memo_token"`
	Amount    decimal.Decimal `json:"amount"`
	ExpiresAt time.Time       `json:"expires_at"`
}

func (CryptoTransferDetails) Kind() DetailsKind { return DetailsKindCryptoTransfer }

type WalletDetails struct {
	TransactionID snowflake.ID    `json:"transaction_id"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
}

func (WalletDetails) Kind() DetailsKind { return DetailsKindWallet }

// SandboxDetails marks a demo settlement used when a provider is unavailable.
type SandboxDetails struct {
	Method PaymentMethod `json:"method"`
	Reason string        `json:"reason"`
}

func (SandboxDetails) Kind() DetailsKind { return DetailsKindSandbox }

type detailsEnvelope struct {
	Kind DetailsKind     `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func EncodeDetails(details PaymentDetails) (datatypes.JSON, error) {
	if details == nil {
		return nil, nil
	}
	data, err := json.Marshal(details)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(detailsEnvelope{Kind: details.Kind(), Data: data})
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func DecodeDetails(raw datatypes.JSON) (PaymentDetails, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var env detailsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDetails, err)
	}

	var (
		details PaymentDetails
		err     error
	)
	switch env.Kind {
	case DetailsKindCardRedirect:
		var d CardRedirectDetails
		err = json.Unmarshal(env.Data, &d)
		details = d
	case DetailsKindLocalQR:
		var d LocalQRDetails
		err = json.Unmarshal(env.Data, &d)
		details = d
	case DetailsKindCryptoTransfer:
		var d CryptoTransferDetails
		err = json.Unmarshal(env.Data, &d)
		details = d
	case DetailsKindWallet:
		var d WalletDetails
		err = json.Unmarshal(env.Data, &d)
		details = d
	case DetailsKindSandbox:
		var d SandboxDetails
		err = json.Unmarshal(env.Data, &d)
		details = d
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidDetails, env.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDetails, err)
	}
	return details, nil
}
