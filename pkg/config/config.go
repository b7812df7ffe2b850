package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketledger-backend/pkg/money"
)

type Config struct {
	App            AppConfig
	Service        ServiceConfig
	DB             DBConfig
	Redis          RedisConfig
	JWT            JWTConfig
	FeatureFlags   FeatureFlagsConfig
	Settlement     SettlementConfig
	PaymentWebhook PaymentWebhookConfig
	Eventing       EventingConfig
	GCP            GCPConfig
	PubSub         PubSubConfig
	Outbox         OutboxConfig
	Cron           CronConfig
	RateLimit      RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Settlement.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Cron.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MARKETLEDGER_APP_ENV" required:"true"`
	Port         string `envconfig:"MARKETLEDGER_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MARKETLEDGER_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"MARKETLEDGER_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"MARKETLEDGER_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"MARKETLEDGER_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MARKETLEDGER_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MARKETLEDGER_DB_DSN"`
	Driver string `envconfig:"MARKETLEDGER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MARKETLEDGER_DB_HOST"`
	LegacyPort     int    `envconfig:"MARKETLEDGER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MARKETLEDGER_DB_USER"`
	LegacyPassword string `envconfig:"MARKETLEDGER_DB_PASSWORD"`
	LegacyName     string `envconfig:"MARKETLEDGER_DB_NAME"`
	LegacySSLMode  string `envconfig:"MARKETLEDGER_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"MARKETLEDGER_SQLITE_PATH" default:"file:marketledger.db?cache=shared&_busy_timeout=5000"`

	MaxOpenConns    int           `envconfig:"MARKETLEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARKETLEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARKETLEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARKETLEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"MARKETLEDGER_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
	TxRetries          int           `envconfig:"MARKETLEDGER_DB_TX_RETRIES" default:"2"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MARKETLEDGER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MARKETLEDGER_REDIS_ADDR"`
	Password     string        `envconfig:"MARKETLEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"MARKETLEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MARKETLEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARKETLEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARKETLEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARKETLEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARKETLEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig only carries what is needed to verify access tokens; issuance
// lives in the identity service.
type JWTConfig struct {
	Secret   string        `envconfig:"MARKETLEDGER_JWT_SECRET" required:"true"`
	Issuer   string        `envconfig:"MARKETLEDGER_JWT_ISSUER" required:"true"`
	Audience string        `envconfig:"MARKETLEDGER_JWT_AUDIENCE"`
	Leeway   time.Duration `envconfig:"MARKETLEDGER_JWT_LEEWAY" default:"30s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MARKETLEDGER_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MARKETLEDGER_AUTO_MIGRATE" default:"false"`
}

// SettlementConfig holds the pricing and commission knobs read by checkout
// and the commission ledger.
type SettlementConfig struct {
	Currency              string          `envconfig:"MARKETLEDGER_SETTLEMENT_CURRENCY" default:"USD"`
	TaxRate               decimal.Decimal `envconfig:"MARKETLEDGER_SETTLEMENT_TAX_RATE" default:"0.15"`
	ShippingFlat          decimal.Decimal `envconfig:"MARKETLEDGER_SETTLEMENT_SHIPPING_FLAT" default:"50"`
	DefaultCommissionRate decimal.Decimal `envconfig:"MARKETLEDGER_SETTLEMENT_DEFAULT_COMMISSION_RATE" default:"0.10"`
	IdempotencyTTL        time.Duration   `envconfig:"MARKETLEDGER_SETTLEMENT_IDEMPOTENCY_TTL" default:"24h"`
}

func (s SettlementConfig) validate() error {
	if s.TaxRate.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvTaxRate)
	}
	if s.ShippingFlat.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvShippingFlat)
	}
	if s.DefaultCommissionRate.IsNegative() || s.DefaultCommissionRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be between 0 and 1", EnvDefaultCommission)
	}
	if !money.IsRatePrecise(s.DefaultCommissionRate) {
		return fmt.Errorf("%s allows at most %d decimal places", EnvDefaultCommission, money.RateScale)
	}
	return nil
}

type PaymentWebhookConfig struct {
	Secret         string        `envconfig:"MARKETLEDGER_PAYMENT_WEBHOOK_SECRET" required:"true"`
	IdempotencyTTL time.Duration `envconfig:"MARKETLEDGER_PAYMENT_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"MARKETLEDGER_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"MARKETLEDGER_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic    string        `envconfig:"MARKETLEDGER_PUBSUB_ORDERS_TOPIC" default:"ml-order-events"`
	PayoutsTopic   string        `envconfig:"MARKETLEDGER_PUBSUB_PAYOUTS_TOPIC" default:"ml-payout-events"`
	OrderedPublish bool          `envconfig:"MARKETLEDGER_PUBSUB_ORDERED_PUBLISH" default:"true"`
	BatchDelay     time.Duration `envconfig:"MARKETLEDGER_PUBSUB_BATCH_DELAY" default:"10ms"`
	BatchCount     int           `envconfig:"MARKETLEDGER_PUBSUB_BATCH_COUNT" default:"100"`
}

type OutboxConfig struct {
	BatchSize        int `envconfig:"MARKETLEDGER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS   int `envconfig:"MARKETLEDGER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts      int `envconfig:"MARKETLEDGER_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays    int `envconfig:"MARKETLEDGER_OUTBOX_RETENTION_DAYS" default:"30"`
	DLQRetentionDays int `envconfig:"MARKETLEDGER_OUTBOX_DLQ_RETENTION_DAYS" default:"90"`
}

type CronConfig struct {
	Interval   time.Duration `envconfig:"MARKETLEDGER_CRON_INTERVAL" default:"1h"`
	LockTTL    time.Duration `envconfig:"MARKETLEDGER_CRON_LOCK_TTL" default:"30m"`
	JobTimeout time.Duration `envconfig:"MARKETLEDGER_CRON_JOB_TIMEOUT" default:"10m"`
}

// A job must finish before the lock it runs under can expire.
func (c CronConfig) validate() error {
	if c.JobTimeout > 0 && c.LockTTL > 0 && c.JobTimeout >= c.LockTTL {
		return fmt.Errorf("MARKETLEDGER_CRON_JOB_TIMEOUT (%s) must be shorter than MARKETLEDGER_CRON_LOCK_TTL (%s)", c.JobTimeout, c.LockTTL)
	}
	return nil
}

// RateLimitConfig caps per-caller request rates on the money-moving routes.
type RateLimitConfig struct {
	Window        time.Duration `envconfig:"MARKETLEDGER_RATE_LIMIT_WINDOW" default:"1m"`
	CheckoutLimit int           `envconfig:"MARKETLEDGER_RATE_LIMIT_CHECKOUT" default:"10"`
	GiftCardLimit int           `envconfig:"MARKETLEDGER_RATE_LIMIT_GIFT_CARD" default:"30"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
