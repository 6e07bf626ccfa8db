package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/digimart/internal/config"
	"github.com/smallbiznis/digimart/internal/memo"
	"github.com/smallbiznis/digimart/internal/testutil"
	walletdomain "github.com/smallbiznis/digimart/internal/wallet/domain"
	walletrepo "github.com/smallbiznis/digimart/internal/wallet/repository"
	walletservice "github.com/smallbiznis/digimart/internal/wallet/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type depositFixture struct {
	ledgerFixture
	deposits walletdomain.DepositService
}

func newDepositFixture(t *testing.T, cfg config.Config) depositFixture {
	t.Helper()
	f := newLedgerFixture(t)
	return depositFixture{
		ledgerFixture: f,
		deposits: walletservice.NewDepositService(walletservice.DepositParams{
			DB:       f.db,
			Log:      zap.NewNop(),
			GenID:    f.node,
			Clock:    f.clock,
			Cfg:      cfg,
			Platform: config.StaticPlatform(config.DefaultPlatformConfig()),
			Repo:     walletrepo.Provide(),
			Ledger:   f.ledger,
			Memo:     memo.NewIssuer(f.db),
		}),
	}
}

func liveCryptoConfig() config.Config {
	return config.Config{
		Providers: config.ProvidersConfig{
			CryptoAPIKey:    "key",
			CryptoAPISecret: "secret",
			CryptoAddresses: map[string]string{"USDT:TRX": "TXaddr123"},
		},
	}
}

func TestSandboxDepositCompletesOnPoll(t *testing.T) {
	ctx := context.Background()
	f := newDepositFixture(t, config.Config{})
	userID := f.node.Generate()

	view, err := f.deposits.CreateDeposit(ctx, walletdomain.CreateDepositRequest{
		UserID: userID,
		Amount: testutil.D("25"),
	})
	require.NoError(t, err)
	assert.True(t, view.Sandbox)
	assert.Equal(t, walletdomain.DepositViewPending, view.Status)
	assert.Len(t, view.MemoToken, memo.Length)
	assert.Equal(t, "SANDBOX-USDT-TRX", view.Address)
	assert.Equal(t, baseTime.Add(30*time.Minute), view.ExpiresAt)

	status, err := f.deposits.DepositStatus(ctx, userID, view.ID)
	require.NoError(t, err)
	assert.Equal(t, walletdomain.DepositViewCompleted, status.Status)
	require.NotNil(t, status.NewBalance)
	testutil.DecimalEqual(t, "25", *status.NewBalance)

	again, err := f.deposits.DepositStatus(ctx, userID, view.ID)
	require.NoError(t, err)
	testutil.DecimalEqual(t, "25", *again.NewBalance)

	entries, err := f.ledger.Transactions(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, walletdomain.TransactionDepositCredit, entries[0].Type)
}

func TestSecondPendingDepositConflicts(t *testing.T) {
	ctx := context.Background()
	f := newDepositFixture(t, liveCryptoConfig())
	userID := f.node.Generate()

	first, err := f.deposits.CreateDeposit(ctx, walletdomain.CreateDepositRequest{UserID: userID, Amount: testutil.D("10"), Coin: "usdt", Network: "trx"})
	require.NoError(t, err)
	assert.False(t, first.Sandbox)
	assert.Equal(t, "TXaddr123", first.Address)

	_, err = f.deposits.CreateDeposit(ctx, walletdomain.CreateDepositRequest{UserID: userID, Amount: testutil.D("10")})
	assert.ErrorIs(t, err, walletdomain.ErrDepositInFlight)

	// Once the first window lapses the user may try again.
	f.clock.Advance(31 * time.Minute)
	second, err := f.deposits.CreateDeposit(ctx, walletdomain.CreateDepositRequest{UserID: userID, Amount: testutil.D("10")})
	require.NoError(t, err)
	assert.NotEqual(t, first.MemoToken, second.MemoToken)

	expired, err := f.deposits.DepositStatus(ctx, userID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, walletdomain.DepositViewExpired, expired.Status)
}

func TestCompleteDepositCreditsOnce(t *testing.T) {
	ctx := context.Background()
	f := newDepositFixture(t, liveCryptoConfig())
	userID := f.node.Generate()

	view, err := f.deposits.CreateDeposit(ctx, walletdomain.CreateDepositRequest{UserID: userID, Amount: testutil.D("40")})
	require.NoError(t, err)

	complete := func() bool {
		var ok bool
		require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
			var err error
			ok, err = f.deposits.CompleteDeposit(ctx, tx, view.ID, testutil.D("39.995"), "tx-1")
			return err
		}))
		return ok
	}

	assert.True(t, complete())
	assert.False(t, complete())

	balance, err := f.ledger.Balance(ctx, userID)
	require.NoError(t, err)
	testutil.DecimalEqual(t, "40.00", balance)

	status, err := f.deposits.DepositStatus(ctx, userID, view.ID)
	require.NoError(t, err)
	assert.Equal(t, walletdomain.DepositViewCompleted, status.Status)
	require.NotNil(t, status.CreditedAmount)
}

func TestPendingLiveDepositExpiresOnPoll(t *testing.T) {
	ctx := context.Background()
	f := newDepositFixture(t, liveCryptoConfig())
	userID := f.node.Generate()

	view, err := f.deposits.CreateDeposit(ctx, walletdomain.CreateDepositRequest{UserID: userID, Amount: testutil.D("10")})
	require.NoError(t, err)

	status, err := f.deposits.DepositStatus(ctx, userID, view.ID)
	require.NoError(t, err)
	assert.Equal(t, walletdomain.DepositViewPending, status.Status)

	pending, err := f.deposits.ListPending(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	f.clock.Advance(30 * time.Minute)
	status, err = f.deposits.DepositStatus(ctx, userID, view.ID)
	require.NoError(t, err)
	assert.Equal(t, walletdomain.DepositViewExpired, status.Status)

	pending, err = f.deposits.ListPending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCreateDepositValidation(t *testing.T) {
	ctx := context.Background()
	f := newDepositFixture(t, liveCryptoConfig())
	userID := f.node.Generate()

	_, err := f.deposits.CreateDeposit(ctx, walletdomain.CreateDepositRequest{UserID: userID, Amount: testutil.D("0")})
	assert.ErrorIs(t, err, walletdomain.ErrInvalidAmount)

	_, err = f.deposits.CreateDeposit(ctx, walletdomain.CreateDepositRequest{UserID: userID, Amount: testutil.D("0.5")})
	assert.ErrorIs(t, err, walletdomain.ErrDepositBelowMinimum)

	_, err = f.deposits.CreateDeposit(ctx, walletdomain.CreateDepositRequest{UserID: userID, Amount: testutil.D("5"), Coin: "BTC", Network: "BTC"})
	assert.ErrorIs(t, err, walletdomain.ErrUnsupportedAsset)

	// Supported asset without a configured receiving address.
	_, err = f.deposits.CreateDeposit(ctx, walletdomain.CreateDepositRequest{UserID: userID, Amount: testutil.D("5"), Coin: "USDT", Network: "BSC"})
	assert.ErrorIs(t, err, walletdomain.ErrUnsupportedAsset)
}

func TestDepositStatusHidesOtherUsers(t *testing.T) {
	ctx := context.Background()
	f := newDepositFixture(t, config.Config{})

	view, err := f.deposits.CreateDeposit(ctx, walletdomain.CreateDepositRequest{UserID: f.node.Generate(), Amount: testutil.D("5")})
	require.NoError(t, err)

	_, err = f.deposits.DepositStatus(ctx, f.node.Generate(), view.ID)
	assert.ErrorIs(t, err, walletdomain.ErrDepositNotFound)
}
