package service

import (
	"context"
	"testing"
	"time"

	auditdomain "github.com/smallbiznis/digimart/internal/audit/domain"
	"github.com/smallbiznis/digimart/internal/audit/repository"
	"github.com/smallbiznis/digimart/internal/clock"
	obscontext "github.com/smallbiznis/digimart/internal/observability/context"
	"github.com/smallbiznis/digimart/internal/testutil"
	"github.com/smallbiznis/digimart/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newAuditService(t *testing.T) (auditdomain.Service, *clock.FakeClock) {
	t.Helper()
	clk := clock.NewFakeClock(time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC))
	return NewService(Params{
		DB:    testutil.NewDB(t),
		Log:   zap.NewNop(),
		GenID: testutil.Node(t),
		Repo:  repository.Provide(),
		Clock: clk,
	}), clk
}

func TestAuditLogResolvesActorFromContext(t *testing.T) {
	svc, _ := newAuditService(t)
	ctx := obscontext.WithActor(context.Background(), "admin", "77")

	require.NoError(t, svc.AuditLog(ctx, auditdomain.Entry{
		Action:     auditdomain.ActionOrderReviewReject,
		TargetType: "order",
		TargetID:   "9001",
		Metadata:   map[string]any{"reason": "chargeback risk", "": "dropped"},
	}))

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{ActorID: "77"})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	got := resp.AuditLogs[0]
	assert.Equal(t, "admin", got.ActorType)
	assert.Equal(t, "9001", *got.TargetID)
	assert.Equal(t, "chargeback risk", got.Metadata["reason"])
	assert.NotContains(t, got.Metadata, "")
}

func TestAuditLogRequiresAction(t *testing.T) {
	svc, _ := newAuditService(t)

	err := svc.AuditLog(context.Background(), auditdomain.Entry{TargetType: "order"})

	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListPagesNewestFirst(t *testing.T) {
	svc, clk := newAuditService(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, svc.AuditLog(context.Background(), auditdomain.Entry{
			ActorType:  string(auditdomain.ActorTypeAdmin),
			ActorID:    "1",
			Action:     auditdomain.ActionOrderReviewApprove,
			TargetType: "order",
		}))
		clk.Advance(time.Minute)
	}
	require.NoError(t, svc.AuditLog(context.Background(), auditdomain.Entry{
		Action:     auditdomain.ActionInventoryUpload,
		TargetType: "product",
	}))

	req := auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2},
		Action:     auditdomain.ActionOrderReviewApprove,
	}
	var seen []time.Time
	for page := 0; page < 5; page++ {
		resp, err := svc.List(context.Background(), req)
		require.NoError(t, err)
		for _, item := range resp.AuditLogs {
			seen = append(seen, item.CreatedAt)
		}
		if !resp.HasMore {
			break
		}
		req.PageToken = resp.NextPageToken
	}

	require.Len(t, seen, 5)
	for i := 1; i < len(seen); i++ {
		assert.True(t, seen[i-1].After(seen[i]), "entries must be newest first")
	}
}

func TestListRejectsBadInput(t *testing.T) {
	svc, _ := newAuditService(t)
	start := time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)

	_, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)

	_, err = svc.List(context.Background(), auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageToken: "not a token"},
	})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}
