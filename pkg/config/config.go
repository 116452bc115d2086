package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App     AppConfig
	Service ServiceConfig
	DB      DBConfig
	Redis   RedisConfig
	GCP     GCPConfig
	PubSub  PubSubConfig
	Cron    CronConfig
	Ledger  LedgerConfig
	Gateway GatewayConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Ledger.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SETTLEMENT_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"SETTLEMENT_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"SETTLEMENT_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"SETTLEMENT_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"SETTLEMENT_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind        string `envconfig:"SETTLEMENT_SERVICE_KIND" default:"cron-worker"`
	MetricsAddr string `envconfig:"SETTLEMENT_METRICS_ADDR" default:":9090"`
}

type DBConfig struct {
	DSN string `envconfig:"SETTLEMENT_DB_DSN"`

	LegacyHost     string `envconfig:"SETTLEMENT_DB_HOST"`
	LegacyPort     int    `envconfig:"SETTLEMENT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SETTLEMENT_DB_USER"`
	LegacyPassword string `envconfig:"SETTLEMENT_DB_PASSWORD"`
	LegacyName     string `envconfig:"SETTLEMENT_DB_NAME"`
	LegacySSLMode  string `envconfig:"SETTLEMENT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SETTLEMENT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SETTLEMENT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SETTLEMENT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SETTLEMENT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	LockTimeout     time.Duration `envconfig:"SETTLEMENT_DB_LOCK_TIMEOUT" default:"5s"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SETTLEMENT_REDIS_URL"`
	Address      string        `envconfig:"SETTLEMENT_REDIS_ADDR"`
	Password     string        `envconfig:"SETTLEMENT_REDIS_PASSWORD"`
	DB           int           `envconfig:"SETTLEMENT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SETTLEMENT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SETTLEMENT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SETTLEMENT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SETTLEMENT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SETTLEMENT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"SETTLEMENT_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"SETTLEMENT_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"SETTLEMENT_PUBSUB_NOTIFICATION_TOPIC" default:"settlement-notifications"`
}

// Enabled reports whether notifications should be fanned out over Pub/Sub.
func (p PubSubConfig) Enabled() bool {
	return strings.TrimSpace(p.NotificationTopic) != ""
}

type CronConfig struct {
	Interval time.Duration `envconfig:"SETTLEMENT_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"SETTLEMENT_CRON_LOCK_TTL" default:"55m"`
}

// LedgerConfig carries the business constants used when money moves.
type LedgerConfig struct {
	QuotaPrice            decimal.Decimal `envconfig:"SETTLEMENT_QUOTA_PRICE" default:"50"`
	ScorePerQuota         int             `envconfig:"SETTLEMENT_SCORE_PER_QUOTA" default:"10"`
	ReferralBonus         decimal.Decimal `envconfig:"SETTLEMENT_REFERRAL_BONUS" default:"5"`
	OnTimePaymentScore    int             `envconfig:"SETTLEMENT_ON_TIME_PAYMENT_SCORE" default:"25"`
	LoanOriginationRate   decimal.Decimal `envconfig:"SETTLEMENT_LOAN_ORIGINATION_RATE" default:"0.03"`
	LoanCreditRatio       decimal.Decimal `envconfig:"SETTLEMENT_LOAN_CREDIT_RATIO" default:"0.70"`
	LoanFeeGuaranteeShare decimal.Decimal `envconfig:"SETTLEMENT_LOAN_FEE_GUARANTEE_SHARE" default:"0"`
	LoanInstallmentPeriod time.Duration   `envconfig:"SETTLEMENT_LOAN_INSTALLMENT_PERIOD" default:"720h"`
	WithdrawalFeeRate     decimal.Decimal `envconfig:"SETTLEMENT_WITHDRAWAL_FEE_RATE" default:"0.02"`
	WithdrawalMinFee      decimal.Decimal `envconfig:"SETTLEMENT_WITHDRAWAL_MIN_FEE" default:"5"`
	TaxShare              decimal.Decimal `envconfig:"SETTLEMENT_FEE_TAX_SHARE" default:"0.25"`
	OperationalShare      decimal.Decimal `envconfig:"SETTLEMENT_FEE_OPERATIONAL_SHARE" default:"0.25"`
	OwnerShare            decimal.Decimal `envconfig:"SETTLEMENT_FEE_OWNER_SHARE" default:"0.25"`
	InvestmentShare       decimal.Decimal `envconfig:"SETTLEMENT_FEE_INVESTMENT_SHARE" default:"0.25"`
	PaidTolerance         decimal.Decimal `envconfig:"SETTLEMENT_PAID_TOLERANCE" default:"0.01"`
	MonthlyFixedCosts     decimal.Decimal `envconfig:"SETTLEMENT_MONTHLY_FIXED_COSTS" default:"0"`
	LiquidationGraceDays  int             `envconfig:"SETTLEMENT_LIQUIDATION_GRACE_DAYS" default:"5"`
	FGCDelinquencyDays    int             `envconfig:"SETTLEMENT_FGC_DELINQUENCY_DAYS" default:"90"`
}

// Validate checks invariants that envconfig cannot express.
func (l LedgerConfig) Validate() error {
	sum := l.TaxShare.Add(l.OperationalShare).Add(l.OwnerShare).Add(l.InvestmentShare)
	if !sum.Equal(decimal.NewFromInt(1)) {
		return fmt.Errorf("fee shares must sum to 1, got %s", sum.String())
	}
	if !l.QuotaPrice.IsPositive() {
		return fmt.Errorf("%s must be positive", EnvQuotaPrice)
	}
	if l.LoanOriginationRate.IsNegative() || l.LoanOriginationRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be in [0, 1)", EnvLoanOriginationRate)
	}
	if l.LoanFeeGuaranteeShare.IsNegative() || l.LoanFeeGuaranteeShare.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be in [0, 1]", EnvLoanFeeGuaranteeShare)
	}
	if l.LiquidationGraceDays < 0 || l.FGCDelinquencyDays < 0 {
		return fmt.Errorf("sweep day thresholds must not be negative")
	}
	return nil
}

// DefaultLedgerConfig returns the ledger constants used when nothing is configured.
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		QuotaPrice:            decimal.NewFromInt(50),
		ScorePerQuota:         10,
		ReferralBonus:         decimal.NewFromInt(5),
		OnTimePaymentScore:    25,
		LoanOriginationRate:   decimal.RequireFromString("0.03"),
		LoanCreditRatio:       decimal.RequireFromString("0.70"),
		LoanFeeGuaranteeShare: decimal.Zero,
		LoanInstallmentPeriod: 30 * 24 * time.Hour,
		WithdrawalFeeRate:     decimal.RequireFromString("0.02"),
		WithdrawalMinFee:      decimal.NewFromInt(5),
		TaxShare:              decimal.RequireFromString("0.25"),
		OperationalShare:      decimal.RequireFromString("0.25"),
		OwnerShare:            decimal.RequireFromString("0.25"),
		InvestmentShare:       decimal.RequireFromString("0.25"),
		PaidTolerance:         decimal.RequireFromString("0.01"),
		MonthlyFixedCosts:     decimal.Zero,
		LiquidationGraceDays:  5,
		FGCDelinquencyDays:    90,
	}
}

// GatewayConfig holds the processor pricing absorbed on external payments.
type GatewayConfig struct {
	PixRate   decimal.Decimal `envconfig:"SETTLEMENT_GATEWAY_PIX_RATE" default:"0.0099"`
	PixFixed  decimal.Decimal `envconfig:"SETTLEMENT_GATEWAY_PIX_FIXED" default:"0"`
	CardRate  decimal.Decimal `envconfig:"SETTLEMENT_GATEWAY_CARD_RATE" default:"0.0498"`
	CardFixed decimal.Decimal `envconfig:"SETTLEMENT_GATEWAY_CARD_FIXED" default:"0.40"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
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
