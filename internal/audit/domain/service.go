package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/digimart/pkg/db/pagination"
	"gorm.io/gorm"
)

// ListAuditLogRequest filters the trail newest first. Empty fields match all.
type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	ActorID    string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

// Entry describes one audited action. Empty actor fields are resolved from the
// request context.
type Entry struct {
	ActorType  string
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

type Service interface {
	AuditLog(ctx context.Context, entry Entry) error
	// AuditLogTx writes the entry inside the caller's transaction.
	AuditLogTx(ctx context.Context, tx *gorm.DB, entry Entry) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidAction    = errors.New("invalid_action")
)
