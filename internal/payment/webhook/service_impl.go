package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/digimart/internal/clock"
	fulfillmentdomain "github.com/smallbiznis/digimart/internal/fulfillment/domain"
	obsmetrics "github.com/smallbiznis/digimart/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
	"github.com/smallbiznis/digimart/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/digimart/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        paymentdomain.Repository
	Orders      orderdomain.Repository
	Adapters    *adapters.Registry
	Fulfillment fulfillmentdomain.Service
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        paymentdomain.Repository
	orders      orderdomain.Repository
	adapters    *adapters.Registry
	fulfillment fulfillmentdomain.Service
	metrics     *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.webhook"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		orders:      p.Orders,
		adapters:    p.Adapters,
		fulfillment: p.Fulfillment,
		metrics:     p.Metrics,
	}
}

// IngestWebhook verifies a provider callback, records it once per provider
// event id and applies it to the referenced checkout group. Events that fail
// to apply stay unprocessed so the provider retry can finish them.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	adapter, ok := s.adapters.Webhook(provider)
	if !ok {
		return paymentdomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.log.Warn("payment webhook rejected", zap.String("provider", provider), zap.Error(err))
		return err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			return nil
		}
		return err
	}
	event.Provider = provider
	if err := validateEvent(event); err != nil {
		return err
	}

	now := s.clock.Now()
	received := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		Reference:       event.Reference,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			return paymentdomain.ErrEventAlreadyProcessed
		}
	}

	if err := s.apply(ctx, event); err != nil {
		return err
	}
	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, s.clock.Now()); err != nil {
		return err
	}

	if inserted {
		s.metrics.RecordPaymentEvent(ctx, event.Provider, event.Type)
	}
	return nil
}

func (s *Service) apply(ctx context.Context, event *paymentdomain.Event) error {
	groupID, err := s.resolveGroup(ctx, event)
	if err != nil {
		return err
	}
	log := s.log.With(
		zap.String("provider", event.Provider),
		zap.String("event_id", event.ProviderEventID),
		zap.String("checkout_group_id", groupID.String()),
	)

	switch event.Type {
	case paymentdomain.EventTypeCheckoutCompleted:
		results, err := s.fulfillment.FulfillGroup(ctx, groupID, event.Reference)
		if err != nil {
			log.Error("fulfillment after payment webhook failed", zap.Error(err))
			return err
		}
		log.Info("checkout paid", zap.Int("orders", len(results)))
		return nil
	case paymentdomain.EventTypeCheckoutExpired:
		expired, err := s.fulfillment.ExpireGroup(ctx, groupID, fulfillmentdomain.CancelReasonSessionExpired)
		if err != nil {
			return err
		}
		log.Info("checkout session expired", zap.Int("cancelled", expired))
		return nil
	default:
		return paymentdomain.ErrInvalidEvent
	}
}

func (s *Service) resolveGroup(ctx context.Context, event *paymentdomain.Event) (snowflake.ID, error) {
	if event.CheckoutGroupID != 0 {
		return event.CheckoutGroupID, nil
	}
	if event.Reference == "" {
		return 0, paymentdomain.ErrInvalidEvent
	}
	groupID, err := s.orders.FindGroupByExternalID(ctx, s.db, event.Reference)
	if err != nil {
		return 0, err
	}
	if groupID == 0 {
		return 0, orderdomain.ErrOrderNotFound
	}
	return groupID, nil
}

func validateEvent(event *paymentdomain.Event) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	if event.ProviderEventID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	event.Type = strings.TrimSpace(event.Type)
	if event.Type == "" {
		return paymentdomain.ErrInvalidEvent
	}
	event.Reference = strings.TrimSpace(event.Reference)
	return nil
}
