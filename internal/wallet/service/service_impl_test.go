package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/digimart/internal/clock"
	"github.com/smallbiznis/digimart/internal/testutil"
	walletdomain "github.com/smallbiznis/digimart/internal/wallet/domain"
	walletrepo "github.com/smallbiznis/digimart/internal/wallet/repository"
	walletservice "github.com/smallbiznis/digimart/internal/wallet/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type ledgerFixture struct {
	db     *gorm.DB
	node   *snowflake.Node
	clock  *clock.FakeClock
	ledger walletdomain.Service
}

func newLedgerFixture(t *testing.T) ledgerFixture {
	t.Helper()
	db := testutil.NewDB(t)
	node := testutil.Node(t)
	clk := clock.NewFakeClock(baseTime)
	return ledgerFixture{
		db:    db,
		node:  node,
		clock: clk,
		ledger: walletservice.NewService(walletservice.Params{
			DB:    db,
			Log:   zap.NewNop(),
			GenID: node,
			Clock: clk,
			Repo:  walletrepo.Provide(),
		}),
	}
}

func TestCreditThenDebitAppendsLog(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	userID := f.node.Generate()

	credit, err := f.ledger.Credit(ctx, walletdomain.EntryRequest{
		UserID: userID,
		Type:   walletdomain.TransactionDepositCredit,
		Amount: testutil.D("100.00"),
	})
	require.NoError(t, err)
	testutil.DecimalEqual(t, "100.00", credit.Balance)

	orderID := f.node.Generate()
	debit, err := f.ledger.Debit(ctx, walletdomain.EntryRequest{
		UserID:  userID,
		Type:    walletdomain.TransactionPurchaseDebit,
		Amount:  testutil.D("33.25"),
		OrderID: &orderID,
	})
	require.NoError(t, err)
	testutil.DecimalEqual(t, "66.75", debit.Balance)

	balance, err := f.ledger.Balance(ctx, userID)
	require.NoError(t, err)
	testutil.DecimalEqual(t, "66.75", balance)

	entries, err := f.ledger.Transactions(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, walletdomain.TransactionPurchaseDebit, entries[0].Type)
	testutil.DecimalEqual(t, "-33.25", entries[0].Amount)
	testutil.DecimalEqual(t, "66.75", entries[0].BalanceAfter)
	require.NotNil(t, entries[0].OrderID)
	assert.Equal(t, orderID, *entries[0].OrderID)

	replay, err := f.ledger.Replay(ctx, userID)
	require.NoError(t, err)
	assert.True(t, replay.Consistent)
	assert.Equal(t, 2, replay.Entries)
	testutil.DecimalEqual(t, "66.75", replay.Replayed)
}

func TestDebitExceedingBalanceLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	userID := f.node.Generate()

	_, err := f.ledger.Credit(ctx, walletdomain.EntryRequest{
		UserID: userID,
		Type:   walletdomain.TransactionAdjustmentCredit,
		Amount: testutil.D("10.00"),
	})
	require.NoError(t, err)

	_, err = f.ledger.Debit(ctx, walletdomain.EntryRequest{
		UserID: userID,
		Type:   walletdomain.TransactionPurchaseDebit,
		Amount: testutil.D("10.01"),
	})
	require.ErrorIs(t, err, walletdomain.ErrInsufficientFunds)

	balance, err := f.ledger.Balance(ctx, userID)
	require.NoError(t, err)
	testutil.DecimalEqual(t, "10.00", balance)

	entries, err := f.ledger.Transactions(ctx, userID, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDebitWithoutWalletIsInsufficient(t *testing.T) {
	f := newLedgerFixture(t)
	_, err := f.ledger.Debit(context.Background(), walletdomain.EntryRequest{
		UserID: f.node.Generate(),
		Type:   walletdomain.TransactionPurchaseDebit,
		Amount: testutil.D("1"),
	})
	assert.ErrorIs(t, err, walletdomain.ErrInsufficientFunds)
}

func TestLedgerValidation(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	userID := f.node.Generate()

	_, err := f.ledger.Credit(ctx, walletdomain.EntryRequest{UserID: userID, Type: walletdomain.TransactionDepositCredit, Amount: testutil.D("0")})
	assert.ErrorIs(t, err, walletdomain.ErrInvalidAmount)

	_, err = f.ledger.Credit(ctx, walletdomain.EntryRequest{UserID: userID, Type: walletdomain.TransactionDepositCredit, Amount: testutil.D("-5")})
	assert.ErrorIs(t, err, walletdomain.ErrInvalidAmount)

	_, err = f.ledger.Credit(ctx, walletdomain.EntryRequest{UserID: userID, Type: walletdomain.TransactionPurchaseDebit, Amount: testutil.D("5")})
	assert.ErrorIs(t, err, walletdomain.ErrInvalidTransactionType)

	_, err = f.ledger.Debit(ctx, walletdomain.EntryRequest{UserID: userID, Type: walletdomain.TransactionRefundCredit, Amount: testutil.D("5")})
	assert.ErrorIs(t, err, walletdomain.ErrInvalidTransactionType)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	userID := f.node.Generate()

	_, err := f.ledger.Credit(ctx, walletdomain.EntryRequest{
		UserID: userID,
		Type:   walletdomain.TransactionDepositCredit,
		Amount: testutil.D("50"),
	})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Debit(ctx, walletdomain.EntryRequest{
				UserID: userID,
				Type:   walletdomain.TransactionPurchaseDebit,
				Amount: testutil.D("10"),
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, walletdomain.ErrInsufficientFunds)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	balance, err := f.ledger.Balance(ctx, userID)
	require.NoError(t, err)
	testutil.DecimalEqual(t, "0", balance)

	replay, err := f.ledger.Replay(ctx, userID)
	require.NoError(t, err)
	assert.True(t, replay.Consistent)
}
