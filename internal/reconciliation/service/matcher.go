package service

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/digimart/internal/memo"
	paymentdomain "github.com/smallbiznis/digimart/internal/payment/domain"
	"github.com/smallbiznis/digimart/internal/reconciliation/domain"
)

// Match pairs pending obligations with settled transfers. A transfer is
// consumed by at most one obligation and an obligation takes at most one
// transfer, so the result is injective in both directions.
func Match(pending []domain.Pending, records []paymentdomain.DepositRecord, tolerance decimal.Decimal) []domain.Match {
	used := make([]bool, len(records))
	claimed := map[string]bool{}
	var out []domain.Match

	for _, item := range pending {
		token := memo.Normalize(item.Memo)
		if token == "" || claimed[token] {
			continue
		}
		for i, rec := range records {
			if used[i] || !matches(item, token, rec, tolerance) {
				continue
			}
			used[i] = true
			claimed[token] = true
			out = append(out, domain.Match{Pending: item, Record: rec})
			break
		}
	}
	return out
}

func matches(item domain.Pending, token string, rec paymentdomain.DepositRecord, tolerance decimal.Decimal) bool {
	if !rec.Settled() {
		return false
	}
	if memo.Normalize(rec.Memo) != token {
		return false
	}
	if item.Coin != "" && rec.Coin != "" && !strings.EqualFold(item.Coin, rec.Coin) {
		return false
	}
	return rec.Amount.Sub(item.Amount).Abs().LessThanOrEqual(tolerance)
}
