package cardredirect

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/digimart/internal/clock"
	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
	paymentdomain "github.com/smallbiznis/digimart/internal/payment/domain"
)

const (
	Provider        = "card"
	signatureHeader = "Stripe-Signature"
	sessionsPath    = "/v1/checkout/sessions"

	// signatureTolerance bounds how old a signed webhook timestamp may be.
	signatureTolerance = 5 * time.Minute
)

type Config struct {
	GatewayURL    string
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	Currency      string
}

// Adapter creates hosted checkout sessions and verifies their webhooks.
type Adapter struct {
	cfg    Config
	client *http.Client
	clock  clock.Clock
}

func New(cfg Config, client *http.Client, clk clock.Clock) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if strings.TrimSpace(cfg.Currency) == "" {
		cfg.Currency = "usd"
	}
	cfg.GatewayURL = strings.TrimRight(strings.TrimSpace(cfg.GatewayURL), "/")
	return &Adapter{cfg: cfg, client: client, clock: clk}
}

func (a *Adapter) Method() orderdomain.PaymentMethod {
	return orderdomain.PaymentMethodCardRedirect
}

func (a *Adapter) Provider() string {
	return Provider
}

func (a *Adapter) Initiate(ctx context.Context, intent paymentdomain.Intent) (paymentdomain.Initiation, error) {
	if intent.CheckoutGroupID == 0 || !intent.Amount.IsPositive() {
		return paymentdomain.Initiation{}, paymentdomain.ErrInvalidIntent
	}

	cents := intent.Amount.Shift(2).Round(0).IntPart()
	groupID := intent.CheckoutGroupID.String()
	description := intent.Description
	if description == "" {
		description = "Order " + groupID
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", a.cfg.SuccessURL)
	form.Set("cancel_url", a.cfg.CancelURL)
	form.Set("client_reference_id", groupID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", a.cfg.Currency)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(cents, 10))
	form.Set("line_items[0][price_data][product_data][name]", description)
	form.Set("metadata[checkout_group_id]", groupID)
	form.Set("metadata[buyer_id]", intent.BuyerID.String())
	if !intent.ExpiresAt.IsZero() {
		form.Set("expires_at", strconv.FormatInt(intent.ExpiresAt.Unix(), 10))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.GatewayURL+sessionsPath, strings.NewReader(form.Encode()))
	if err != nil {
		return paymentdomain.Initiation{}, err
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Idempotency-Key", "checkout-"+groupID)

	resp, err := a.client.Do(req)
	if err != nil {
		return paymentdomain.Initiation{}, fmt.Errorf("%w: %v", paymentdomain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return paymentdomain.Initiation{}, fmt.Errorf("%w: %v", paymentdomain.ErrProviderUnavailable, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return paymentdomain.Initiation{}, fmt.Errorf("%w: gateway status %d", paymentdomain.ErrProviderUnavailable, resp.StatusCode)
	}

	var session checkoutSession
	if err := json.Unmarshal(body, &session); err != nil {
		return paymentdomain.Initiation{}, fmt.Errorf("%w: decode session: %v", paymentdomain.ErrProviderUnavailable, err)
	}
	if strings.TrimSpace(session.ID) == "" || strings.TrimSpace(session.URL) == "" {
		return paymentdomain.Initiation{}, fmt.Errorf("%w: incomplete session", paymentdomain.ErrProviderUnavailable)
	}

	expiresAt := intent.ExpiresAt
	if session.ExpiresAt > 0 {
		expiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}
	return paymentdomain.Initiation{
		ExternalID: session.ID,
		Details: orderdomain.CardRedirectDetails{
			SessionID: session.ID,
			URL:       session.URL,
			ExpiresAt: expiresAt,
		},
	}, nil
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if strings.TrimSpace(a.cfg.WebhookSecret) == "" {
		return paymentdomain.ErrInvalidSignature
	}
	sigHeader := strings.TrimSpace(headers.Get(signatureHeader))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignature(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	signedAt, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	age := a.clock.Now().Sub(time.Unix(signedAt, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return paymentdomain.ErrInvalidSignature
	}

	expected := Sign(a.cfg.WebhookSecret, timestamp, payload)
	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return paymentdomain.ErrInvalidSignature
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.Event, error) {
	var event gatewayEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	var eventType string
	switch strings.TrimSpace(event.Type) {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		eventType = paymentdomain.EventTypeCheckoutCompleted
	case "checkout.session.expired", "checkout.session.async_payment_failed":
		eventType = paymentdomain.EventTypeCheckoutExpired
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	var session checkoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(session.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	if eventType == paymentdomain.EventTypeCheckoutCompleted && !session.paid() {
		return nil, paymentdomain.ErrEventIgnored
	}

	groupID, err := parseGroupID(session)
	if err != nil {
		return nil, err
	}

	return &paymentdomain.Event{
		Provider:        Provider,
		ProviderEventID: event.ID,
		Type:            eventType,
		Reference:       session.ID,
		CheckoutGroupID: groupID,
		OccurredAt:      timestamp(event.Created, a.clock.Now()),
		RawPayload:      payload,
	}, nil
}

// Sign computes the v1 signature for a payload signed at timestamp.
func Sign(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

type checkoutSession struct {
	ID                string         `json:"id"`
	URL               string         `json:"url"`
	ExpiresAt         int64          `json:"expires_at"`
	ClientReferenceID string         `json:"client_reference_id"`
	PaymentStatus     string         `json:"payment_status"`
	Metadata          map[string]any `json:"metadata"`
}

func (s checkoutSession) paid() bool {
	switch strings.TrimSpace(s.PaymentStatus) {
	case "", "paid", "no_payment_required":
		return true
	default:
		return false
	}
}

type gatewayEvent struct {
	ID      string           `json:"id"`
	Type    string           `json:"type"`
	Created int64            `json:"created"`
	Data    gatewayEventData `json:"data"`
}

type gatewayEventData struct {
	Object json.RawMessage `json:"object"`
}

func parseGroupID(session checkoutSession) (snowflake.ID, error) {
	raw := strings.TrimSpace(session.ClientReferenceID)
	if raw == "" {
		raw = readMetadataValue(session.Metadata, "checkout_group_id")
	}
	if raw == "" {
		return 0, paymentdomain.ErrInvalidEvent
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, paymentdomain.ErrInvalidEvent
	}
	return id, nil
}

func parseSignature(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func timestamp(value int64, fallback time.Time) time.Time {
	if value == 0 {
		return fallback.UTC()
	}
	return time.Unix(value, 0).UTC()
}

func readMetadataValue(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case float64:
		if cast == 0 {
			return ""
		}
		return strconv.FormatInt(int64(cast), 10)
	case json.Number:
		return cast.String()
	}
	return ""
}
