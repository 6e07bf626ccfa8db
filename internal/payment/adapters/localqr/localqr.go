package localqr

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"strings"
	"time"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/digimart/internal/clock"
	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
	paymentdomain "github.com/smallbiznis/digimart/internal/payment/domain"
)

const (
	Provider        = "qr"
	signatureHeader = "X-QR-Signature"
	imageSize       = 256
)

type Config struct {
	MerchantID    string
	MerchantName  string
	MerchantCity  string
	WebhookSecret string
}

// Adapter issues merchant-presented QR codes. Settlement arrives through the
// acquirer callback.
type Adapter struct {
	cfg   Config
	clock clock.Clock
}

func New(cfg Config, clk clock.Clock) *Adapter {
	return &Adapter{cfg: cfg, clock: clk}
}

func (a *Adapter) Method() orderdomain.PaymentMethod {
	return orderdomain.PaymentMethodLocalQR
}

func (a *Adapter) Provider() string {
	return Provider
}

func (a *Adapter) Initiate(ctx context.Context, intent paymentdomain.Intent) (paymentdomain.Initiation, error) {
	if intent.CheckoutGroupID == 0 || !intent.Amount.IsPositive() {
		return paymentdomain.Initiation{}, paymentdomain.ErrInvalidIntent
	}

	reference := ulid.Make().String()
	payload := a.payload(intent.Amount.StringFixed(2), reference, intent.CheckoutGroupID)
	image, err := renderPNG(payload)
	if err != nil {
		return paymentdomain.Initiation{}, fmt.Errorf("%w: render qr: %v", paymentdomain.ErrProviderUnavailable, err)
	}

	return paymentdomain.Initiation{
		ExternalID: reference,
		Details: orderdomain.LocalQRDetails{
			Reference: reference,
			Payload:   payload,
			ImagePNG:  image,
			ExpiresAt: intent.ExpiresAt,
		},
	}, nil
}

// payload builds a dynamic EMV merchant-presented QR string.
func (a *Adapter) payload(amount, reference string, groupID snowflake.ID) string {
	var b strings.Builder
	b.WriteString(tlv("00", "01"))
	b.WriteString(tlv("01", "12"))
	b.WriteString(tlv("26", tlv("00", "DIGIMART")+tlv("01", a.cfg.MerchantID)))
	b.WriteString(tlv("52", "5816"))
	b.WriteString(tlv("53", "360"))
	b.WriteString(tlv("54", amount))
	b.WriteString(tlv("58", "ID"))
	b.WriteString(tlv("59", truncate(a.cfg.MerchantName, 25)))
	b.WriteString(tlv("60", truncate(a.cfg.MerchantCity, 15)))
	b.WriteString(tlv("62", tlv("05", reference)+tlv("07", groupID.String())))
	b.WriteString("6304")
	return b.String() + fmt.Sprintf("%04X", crc16(b.String()))
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if strings.TrimSpace(a.cfg.WebhookSecret) == "" {
		return paymentdomain.ErrInvalidSignature
	}
	signature := strings.TrimSpace(headers.Get(signatureHeader))
	if signature == "" {
		return paymentdomain.ErrInvalidSignature
	}
	expected := Sign(a.cfg.WebhookSecret, payload)
	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.Event, error) {
	var cb callback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(cb.EventID) == "" || strings.TrimSpace(cb.Reference) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	var eventType string
	switch strings.ToUpper(strings.TrimSpace(cb.Status)) {
	case "PAID", "SUCCESS":
		eventType = paymentdomain.EventTypeCheckoutCompleted
	case "EXPIRED", "FAILED":
		eventType = paymentdomain.EventTypeCheckoutExpired
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	groupID, err := snowflake.ParseString(strings.TrimSpace(cb.CheckoutGroupID))
	if err != nil || groupID == 0 {
		return nil, paymentdomain.ErrInvalidEvent
	}

	occurredAt := a.clock.Now()
	if cb.Timestamp > 0 {
		occurredAt = time.Unix(cb.Timestamp, 0).UTC()
	}
	return &paymentdomain.Event{
		Provider:        Provider,
		ProviderEventID: cb.EventID,
		Type:            eventType,
		Reference:       cb.Reference,
		CheckoutGroupID: groupID,
		OccurredAt:      occurredAt,
		RawPayload:      payload,
	}, nil
}

// Sign returns the hex HMAC-SHA256 of a callback body.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

type callback struct {
	EventID         string `json:"event_id"`
	Reference       string `json:"reference"`
	Status          string `json:"status"`
	CheckoutGroupID string `json:"checkout_group_id"`
	Timestamp       int64  `json:"timestamp"`
}

func renderPNG(payload string) (string, error) {
	code, err := qr.Encode(payload, qr.M, qr.Auto)
	if err != nil {
		return "", err
	}
	code, err = barcode.Scale(code, imageSize, imageSize)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, code); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func tlv(tag, value string) string {
	return fmt.Sprintf("%s%02d%s", tag, len(value), value)
}

func truncate(value string, max int) string {
	value = strings.TrimSpace(value)
	if len(value) > max {
		return value[:max]
	}
	return value
}

// crc16 is CRC-16/CCITT-FALSE as required by the EMV QR checksum field.
func crc16(data string) uint16 {
	crc := uint16(0xFFFF)
	for i := 0; i < len(data); i++ {
		crc ^= uint16(data[i]) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
