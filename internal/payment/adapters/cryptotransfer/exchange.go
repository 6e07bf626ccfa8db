package cryptotransfer

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/digimart/internal/clock"
	paymentdomain "github.com/smallbiznis/digimart/internal/payment/domain"
)

const depositHistoryPath = "/sapi/v1/capital/deposit/hisrec"

// ExchangeClient reads deposit history from the exchange REST API. Requests
// are signed with HMAC-SHA256 over the query string.
type ExchangeClient struct {
	baseURL   string
	apiKey    string
	apiSecret string
	client    *http.Client
	clock     clock.Clock
}

func NewExchangeClient(baseURL, apiKey, apiSecret string, client *http.Client, clk clock.Clock) *ExchangeClient {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &ExchangeClient{
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		client:    client,
		clock:     clk,
	}
}

func (c *ExchangeClient) DepositHistory(ctx context.Context, coin string, start, end time.Time) ([]paymentdomain.DepositRecord, error) {
	query := url.Values{}
	query.Set("coin", strings.ToUpper(strings.TrimSpace(coin)))
	query.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	query.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	query.Set("timestamp", strconv.FormatInt(c.clock.Now().UnixMilli(), 10))
	encoded := query.Encode()
	signed := encoded + "&signature=" + c.sign(encoded)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+depositHistoryPath+"?"+signed, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrProviderUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: exchange status %d", paymentdomain.ErrProviderUnavailable, resp.StatusCode)
	}

	var rows []exchangeDeposit
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("%w: decode deposits: %v", paymentdomain.ErrProviderUnavailable, err)
	}

	out := make([]paymentdomain.DepositRecord, 0, len(rows))
	for _, row := range rows {
		amount, err := decimal.NewFromString(strings.TrimSpace(row.Amount))
		if err != nil {
			continue
		}
		out = append(out, paymentdomain.DepositRecord{
			TxID:       row.TxID,
			Coin:       row.Coin,
			Network:    row.Network,
			Address:    row.Address,
			Memo:       row.AddressTag,
			Amount:     amount,
			Status:     row.Status,
			InsertTime: time.UnixMilli(row.InsertTime).UTC(),
		})
	}
	return out, nil
}

func (c *ExchangeClient) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	_, _ = mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

type exchangeDeposit struct {
	Amount     string `json:"amount"`
	Coin       string `json:"coin"`
	Network    string `json:"network"`
	Status     int    `json:"status"`
	Address    string `json:"address"`
	AddressTag string `json:"addressTag"`
	TxID       string `json:"txId"`
	InsertTime int64  `json:"insertTime"`
}
