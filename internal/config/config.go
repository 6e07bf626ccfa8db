package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process level configuration loaded from the environment.
type Config struct {
	AppName     string
	AppVersion  string
	Mode        string
	Environment string
	HTTPAddr    string

	Telemetry TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis     RedisConfig
	RateLimit RateLimitConfig
	Email     EmailConfig
	Providers ProvidersConfig
	Scheduler SchedulerConfig

	// CredentialSealingKey seals shared account passwords at rest.
	CredentialSealingKey string
	PlatformConfigPath   string
}

// TelemetryConfig drives the zap logger and the otel exporters.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OTLPEndpoint  string
	OTLPProtocol  string
	SamplingRatio float64
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// RateLimitConfig bounds user triggered payment verification checks.
type RateLimitConfig struct {
	VerifyPerMinute float64
	VerifyBurst     int
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

func (c EmailConfig) Enabled() bool {
	return strings.TrimSpace(c.SMTPHost) != ""
}

type ProvidersConfig struct {
	CardGatewayURL     string
	CardSecretKey      string
	CardWebhookSecret  string
	CardSuccessURL     string
	CardCancelURL      string
	CardCurrency       string
	QRMerchantID       string
	QRMerchantName     string
	QRMerchantCity     string
	QRWebhookSecret    string
	CryptoExchangeURL  string
	CryptoAPIKey       string
	CryptoAPISecret    string
	CryptoAddresses    map[string]string
	CryptoRequestLimit time.Duration
}

func (c ProvidersConfig) CardConfigured() bool {
	return strings.TrimSpace(c.CardSecretKey) != "" && strings.TrimSpace(c.CardGatewayURL) != ""
}

func (c ProvidersConfig) QRConfigured() bool {
	return strings.TrimSpace(c.QRMerchantID) != ""
}

func (c ProvidersConfig) CryptoConfigured() bool {
	return strings.TrimSpace(c.CryptoAPIKey) != "" && strings.TrimSpace(c.CryptoAPISecret) != ""
}

// CryptoAddress returns the receiving address configured for COIN:NETWORK.
func (c ProvidersConfig) CryptoAddress(coin, network string) (string, bool) {
	addr, ok := c.CryptoAddresses[strings.ToUpper(strings.TrimSpace(coin))+":"+strings.ToUpper(strings.TrimSpace(network))]
	return addr, ok && addr != ""
}

type SchedulerConfig struct {
	RunInterval time.Duration
	EnabledJobs []string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "digimart"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Mode:         normalizeMode(getenv("APP_MODE", ModeMonolith)),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),

		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""),
			OTLPEndpoint:  strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
			OTLPProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "digimart"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "digimart.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			VerifyPerMinute: getenvFloat("RATE_LIMIT_VERIFY_PER_MINUTE", 6),
			VerifyBurst:     getenvInt("RATE_LIMIT_VERIFY_BURST", 3),
		},
		Email: EmailConfig{
			SMTPHost:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "no-reply@digimart.local"),
		},
		Providers: ProvidersConfig{
			CardGatewayURL:     strings.TrimSpace(getenv("CARD_GATEWAY_URL", "")),
			CardSecretKey:      strings.TrimSpace(getenv("CARD_SECRET_KEY", "")),
			CardWebhookSecret:  strings.TrimSpace(getenv("CARD_WEBHOOK_SECRET", "")),
			CardSuccessURL:     getenv("CARD_SUCCESS_URL", "http://localhost:3000/orders?status=success"),
			CardCancelURL:      getenv("CARD_CANCEL_URL", "http://localhost:3000/cart"),
			QRMerchantID:       strings.TrimSpace(getenv("QR_MERCHANT_ID", "")),
			CardCurrency:       strings.ToLower(getenv("CARD_CURRENCY", "usd")),
			QRMerchantName:     getenv("QR_MERCHANT_NAME", "DIGIMART"),
			QRMerchantCity:     getenv("QR_MERCHANT_CITY", "JAKARTA"),
			QRWebhookSecret:    strings.TrimSpace(getenv("QR_WEBHOOK_SECRET", "")),
			CryptoExchangeURL:  strings.TrimSpace(getenv("CRYPTO_EXCHANGE_URL", "https://api.binance.com")),
			CryptoAPIKey:       strings.TrimSpace(getenv("CRYPTO_API_KEY", "")),
			CryptoAPISecret:    strings.TrimSpace(getenv("CRYPTO_API_SECRET", "")),
			CryptoAddresses:    parseAddresses(getenv("CRYPTO_DEPOSIT_ADDRESSES", "")),
			CryptoRequestLimit: time.Duration(getenvInt("CRYPTO_REQUEST_TIMEOUT_SECONDS", 15)) * time.Second,
		},
		Scheduler: SchedulerConfig{
			RunInterval: time.Duration(getenvInt("SCHEDULER_INTERVAL_SECONDS", 120)) * time.Second,
			EnabledJobs: parseList(getenv("SCHEDULER_ENABLED_JOBS", "")),
		},
		CredentialSealingKey: strings.TrimSpace(getenv("CREDENTIAL_SEALING_KEY", "")),
		PlatformConfigPath:   strings.TrimSpace(getenv("PLATFORM_CONFIG_PATH", "")),
	}

	return cfg
}

const (
	ModeMonolith  = "monolith"
	ModeAPI       = "api"
	ModeScheduler = "scheduler"
)

func (c Config) RunsScheduler() bool {
	return c.Mode == ModeMonolith || c.Mode == ModeScheduler
}

func normalizeMode(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case ModeAPI, ModeScheduler:
		return value
	default:
		return ModeMonolith
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// parseAddresses reads "USDT:TRX=Txyz,BTC:BTC=bc1..." into coin:network keys.
func parseAddresses(raw string) map[string]string {
	out := map[string]string{}
	for _, pair := range parseList(raw) {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func (c Config) ServesHTTP() bool {
	return c.Mode == ModeMonolith || c.Mode == ModeAPI
}
