package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// PlatformConfig carries the marketplace policy knobs. Operations read one
// snapshot per call so a reload never changes a checkout half way through.
type PlatformConfig struct {
	Fees           FeeConfig            `mapstructure:"fees"`
	Checkout       CheckoutConfig       `mapstructure:"checkout"`
	Deposits       DepositConfig        `mapstructure:"deposits"`
	Fraud          FraudConfig          `mapstructure:"fraud"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
	Refund         RefundConfig         `mapstructure:"refund"`
	Inventory      InventoryConfig      `mapstructure:"inventory"`
}

type FeeConfig struct {
	ServiceFeeFixed   float64 `mapstructure:"serviceFeeFixed"`
	ServiceFeePercent float64 `mapstructure:"serviceFeePercent"`
	CommissionRate    float64 `mapstructure:"commissionRate"`
}

func (f FeeConfig) Fixed() decimal.Decimal      { return decimal.NewFromFloat(f.ServiceFeeFixed) }
func (f FeeConfig) Percent() decimal.Decimal    { return decimal.NewFromFloat(f.ServiceFeePercent) }
func (f FeeConfig) Commission() decimal.Decimal { return decimal.NewFromFloat(f.CommissionRate) }

type CheckoutConfig struct {
	ExpiryMinutes int `mapstructure:"expiryMinutes"`
}

func (c CheckoutConfig) Expiry() time.Duration {
	return time.Duration(c.ExpiryMinutes) * time.Minute
}

type AssetConfig struct {
	Coin    string `mapstructure:"coin"`
	Network string `mapstructure:"network"`
}

type DepositConfig struct {
	ExpiryMinutes   int           `mapstructure:"expiryMinutes"`
	MinAmount       float64       `mapstructure:"minAmount"`
	SupportedAssets []AssetConfig `mapstructure:"supportedAssets"`
}

func (c DepositConfig) Expiry() time.Duration {
	return time.Duration(c.ExpiryMinutes) * time.Minute
}

func (c DepositConfig) Minimum() decimal.Decimal {
	return decimal.NewFromFloat(c.MinAmount)
}

// Supports reports whether the coin/network pair is accepted for transfers.
func (c DepositConfig) Supports(coin, network string) bool {
	for _, asset := range c.SupportedAssets {
		if strings.EqualFold(asset.Coin, coin) && strings.EqualFold(asset.Network, network) {
			return true
		}
	}
	return false
}

// DefaultAsset is the asset used for crypto checkout payments.
func (c DepositConfig) DefaultAsset() AssetConfig {
	if len(c.SupportedAssets) == 0 {
		return AssetConfig{Coin: "USDT", Network: "TRX"}
	}
	return c.SupportedAssets[0]
}

type FraudRule struct {
	Name       string `mapstructure:"name"`
	Expression string `mapstructure:"expression"`
}

type FraudConfig struct {
	HighValueThreshold    float64     `mapstructure:"highValueThreshold"`
	ManualReviewThreshold float64     `mapstructure:"manualReviewThreshold"`
	VelocityWindowMinutes int         `mapstructure:"velocityWindowMinutes"`
	VelocityReviewCount   int         `mapstructure:"velocityReviewCount"`
	DelayMinutes          int         `mapstructure:"delayMinutes"`
	HighValueDelayMinutes int         `mapstructure:"highValueDelayMinutes"`
	ReversibleMethods     []string    `mapstructure:"reversibleMethods"`
	Rules                 []FraudRule `mapstructure:"rules"`
}

type ReconciliationConfig struct {
	AmountTolerance float64 `mapstructure:"amountTolerance"`
	LookbackHours   int     `mapstructure:"lookbackHours"`
	BatchSize       int     `mapstructure:"batchSize"`
}

func (c ReconciliationConfig) Tolerance() decimal.Decimal {
	return decimal.NewFromFloat(c.AmountTolerance)
}

func (c ReconciliationConfig) Lookback() time.Duration {
	return time.Duration(c.LookbackHours) * time.Hour
}

type RefundConfig struct {
	WindowDays int `mapstructure:"windowDays"`
}

type InventoryConfig struct {
	MaxCodesPerUpload     int `mapstructure:"maxCodesPerUpload"`
	MaxAccountsPerUpload  int `mapstructure:"maxAccountsPerUpload"`
	MaxProfilesPerAccount int `mapstructure:"maxProfilesPerAccount"`
}

func DefaultPlatformConfig() PlatformConfig {
	return PlatformConfig{
		Fees: FeeConfig{
			ServiceFeeFixed:   0.50,
			ServiceFeePercent: 2.5,
			CommissionRate:    0.10,
		},
		Checkout: CheckoutConfig{ExpiryMinutes: 60},
		Deposits: DepositConfig{
			ExpiryMinutes: 30,
			MinAmount:     1,
			SupportedAssets: []AssetConfig{
				{Coin: "USDT", Network: "TRX"},
				{Coin: "USDT", Network: "BSC"},
			},
		},
		Fraud: FraudConfig{
			HighValueThreshold:    500,
			ManualReviewThreshold: 2000,
			VelocityWindowMinutes: 60,
			VelocityReviewCount:   5,
			DelayMinutes:          30,
			HighValueDelayMinutes: 60,
			ReversibleMethods:     []string{"CARD_REDIRECT", "LOCAL_QR"},
		},
		Reconciliation: ReconciliationConfig{
			AmountTolerance: 0.01,
			LookbackHours:   24,
			BatchSize:       200,
		},
		Refund: RefundConfig{WindowDays: 30},
		Inventory: InventoryConfig{
			MaxCodesPerUpload:     500,
			MaxAccountsPerUpload:  100,
			MaxProfilesPerAccount: 10,
		},
	}
}

// PlatformSource hands out the current platform policy snapshot.
type PlatformSource interface {
	Get() PlatformConfig
}

// StaticPlatform is a fixed PlatformSource.
type StaticPlatform PlatformConfig

func (s StaticPlatform) Get() PlatformConfig { return PlatformConfig(s) }

type PlatformConfigHolder struct {
	current atomic.Value // holds PlatformConfig
}

func NewPlatformConfigHolder(cfg Config) (*PlatformConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("platform")
	v.SetConfigType("yml")
	if cfg.PlatformConfigPath != "" {
		v.SetConfigFile(cfg.PlatformConfigPath)
	}
	v.AddConfigPath("/etc/digimart")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DIGIMART")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setPlatformDefaults(v, DefaultPlatformConfig())

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	var platform PlatformConfig
	if err := v.UnmarshalKey("platform", &platform); err != nil {
		return nil, err
	}
	if err := ValidatePlatformConfig(platform); err != nil {
		return nil, err
	}

	holder := &PlatformConfigHolder{}
	holder.current.Store(platform)

	if fileLoaded {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated PlatformConfig
			if err := v.UnmarshalKey("platform", &updated); err != nil {
				log.Printf("[platform-config] reload failed: %v", err)
				return
			}
			if err := ValidatePlatformConfig(updated); err != nil {
				log.Printf("[platform-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[platform-config] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

func (h *PlatformConfigHolder) Get() PlatformConfig {
	return h.current.Load().(PlatformConfig)
}

func setPlatformDefaults(v *viper.Viper, d PlatformConfig) {
	v.SetDefault("platform.fees.serviceFeeFixed", d.Fees.ServiceFeeFixed)
	v.SetDefault("platform.fees.serviceFeePercent", d.Fees.ServiceFeePercent)
	v.SetDefault("platform.fees.commissionRate", d.Fees.CommissionRate)
	v.SetDefault("platform.checkout.expiryMinutes", d.Checkout.ExpiryMinutes)
	v.SetDefault("platform.deposits.expiryMinutes", d.Deposits.ExpiryMinutes)
	v.SetDefault("platform.deposits.minAmount", d.Deposits.MinAmount)
	v.SetDefault("platform.deposits.supportedAssets", []map[string]string{
		{"coin": "USDT", "network": "TRX"},
		{"coin": "USDT", "network": "BSC"},
	})
	v.SetDefault("platform.fraud.highValueThreshold", d.Fraud.HighValueThreshold)
	v.SetDefault("platform.fraud.manualReviewThreshold", d.Fraud.ManualReviewThreshold)
	v.SetDefault("platform.fraud.velocityWindowMinutes", d.Fraud.VelocityWindowMinutes)
	v.SetDefault("platform.fraud.velocityReviewCount", d.Fraud.VelocityReviewCount)
	v.SetDefault("platform.fraud.delayMinutes", d.Fraud.DelayMinutes)
	v.SetDefault("platform.fraud.highValueDelayMinutes", d.Fraud.HighValueDelayMinutes)
	v.SetDefault("platform.fraud.reversibleMethods", d.Fraud.ReversibleMethods)
	v.SetDefault("platform.reconciliation.amountTolerance", d.Reconciliation.AmountTolerance)
	v.SetDefault("platform.reconciliation.lookbackHours", d.Reconciliation.LookbackHours)
	v.SetDefault("platform.reconciliation.batchSize", d.Reconciliation.BatchSize)
	v.SetDefault("platform.refund.windowDays", d.Refund.WindowDays)
	v.SetDefault("platform.inventory.maxCodesPerUpload", d.Inventory.MaxCodesPerUpload)
	v.SetDefault("platform.inventory.maxAccountsPerUpload", d.Inventory.MaxAccountsPerUpload)
	v.SetDefault("platform.inventory.maxProfilesPerAccount", d.Inventory.MaxProfilesPerAccount)
}

func ValidatePlatformConfig(cfg PlatformConfig) error {
	if cfg.Fees.ServiceFeeFixed < 0 || cfg.Fees.ServiceFeePercent < 0 {
		return errors.New("platform.fees cannot be negative")
	}
	if cfg.Fees.CommissionRate < 0 || cfg.Fees.CommissionRate >= 1 {
		return errors.New("platform.fees.commissionRate must be in [0, 1)")
	}
	if cfg.Checkout.ExpiryMinutes <= 0 {
		return errors.New("platform.checkout.expiryMinutes must be positive")
	}
	if cfg.Deposits.ExpiryMinutes <= 0 {
		return errors.New("platform.deposits.expiryMinutes must be positive")
	}
	if len(cfg.Deposits.SupportedAssets) == 0 {
		return errors.New("platform.deposits.supportedAssets cannot be empty")
	}
	if cfg.Reconciliation.AmountTolerance < 0 {
		return errors.New("platform.reconciliation.amountTolerance cannot be negative")
	}
	if cfg.Reconciliation.LookbackHours <= 0 {
		return errors.New("platform.reconciliation.lookbackHours must be positive")
	}
	if cfg.Refund.WindowDays <= 0 {
		return errors.New("platform.refund.windowDays must be positive")
	}
	if cfg.Inventory.MaxCodesPerUpload <= 0 || cfg.Inventory.MaxAccountsPerUpload <= 0 {
		return errors.New("platform.inventory upload caps must be positive")
	}
	return nil
}
