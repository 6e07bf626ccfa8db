// Package memo issues the short tokens depositors attach to external transfers.
package memo

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"

	"gorm.io/gorm"
)

// Alphabet omits characters that are easy to confuse when typed by hand (0/O, 1/I/L).
const Alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const (
	Length      = 8
	maxAttempts = 8
)

var ErrExhausted = errors.New("memo_token_exhausted")

func Generate() (string, error) {
	var b strings.Builder
	b.Grow(Length)
	max := big.NewInt(int64(len(Alphabet)))
	for i := 0; i < Length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(Alphabet[n.Int64()])
	}
	return b.String(), nil
}

// Normalize upper-cases a user supplied token for comparison.
func Normalize(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}

// Issuer hands out tokens that are unused by both deposits and checkout payments.
type Issuer struct {
	db *gorm.DB
}

func NewIssuer(db *gorm.DB) *Issuer {
	return &Issuer{db: db}
}

func (i *Issuer) Issue(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		token, err := Generate()
		if err != nil {
			return "", err
		}
		taken, err := i.taken(ctx, token)
		if err != nil {
			return "", err
		}
		if !taken {
			return token, nil
		}
	}
	return "", ErrExhausted
}

func (i *Issuer) taken(ctx context.Context, token string) (bool, error) {
	var count int64
	err := i.db.WithContext(ctx).Raw(
		`SELECT (SELECT COUNT(1) FROM wallet_deposits WHERE memo_token = ?)
			+ (SELECT COUNT(1) FROM payments WHERE memo_token = ?)`,
		token,
		token,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
