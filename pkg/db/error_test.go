package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: payment_events.provider")))
	assert.False(t, IsDuplicateKeyErr(errors.New("connection refused")))
}

func TestIsRetryableErr(t *testing.T) {
	assert.True(t, IsRetryableErr(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsRetryableErr(fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "55P03"})))
	assert.True(t, IsRetryableErr(errors.New("database is locked")))
	assert.False(t, IsRetryableErr(&pgconn.PgError{Code: "23505"}))
}
