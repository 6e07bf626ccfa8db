package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrProviderUnavailable   = errors.New("provider_unavailable")
	ErrInvalidProvider       = errors.New("invalid_provider")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrInvalidIntent         = errors.New("invalid_payment_intent")
)

// Intent is one checkout's request to collect the grand total.
type Intent struct {
	CheckoutGroupID snowflake.ID
	BuyerID         snowflake.ID
	OrderIDs        []snowflake.ID
	Amount          decimal.Decimal
	Description     string
	MemoToken       string
	ExpiresAt       time.Time
}

// Initiation is what an adapter returns. Settled means the money is already
// collected and fulfillment may run immediately.
type Initiation struct {
	Settled    bool
	Sandbox    bool
	ExternalID string
	Details    orderdomain.PaymentDetails
}

type Adapter interface {
	Method() orderdomain.PaymentMethod
	Initiate(ctx context.Context, intent Intent) (Initiation, error)
}

const (
	EventTypeCheckoutCompleted = "checkout_completed"
	EventTypeCheckoutExpired   = "checkout_expired"
)

// Event is a verified provider notification in canonical form.
type Event struct {
	Provider        string
	ProviderEventID string
	Type            string
	Reference       string
	CheckoutGroupID snowflake.ID
	OccurredAt      time.Time
	RawPayload      []byte
}

// WebhookAdapter verifies and parses provider callbacks.
type WebhookAdapter interface {
	Provider() string
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*Event, error)
}

type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	Reference       string         `json:"reference" gorm:"type:text"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

type Repository interface {
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}

type Service interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}
