package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	GinMode     string `envconfig:"GIN_MODE"`
	Port        string `envconfig:"PORT" default:"8080"`
	GRPCPort    string `envconfig:"GRPC_PORT" default:"50051"`

	Database  DatabaseConfig
	Redis     RedisConfig
	NATS      NATSConfig
	Paystack  PaystackConfig
	Fees      FeeConfig
	Payout    PayoutConfig
	Scheduler SchedulerConfig
}

type DatabaseConfig struct {
	Driver          string        `envconfig:"DB_DRIVER" default:"mysql"`
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            string        `envconfig:"DB_PORT" default:"3306"`
	User            string        `envconfig:"DB_USER" default:"root"`
	Password        string        `envconfig:"DB_PASSWORD"`
	Name            string        `envconfig:"DB_NAME" default:"growvia"`
	SSLMode         string        `envconfig:"DB_SSLMODE" default:"disable"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"1h"`
	// Lock waits and statement timeouts are enforced by the session, not by callers.
	LockWaitTimeout int `envconfig:"DB_LOCK_WAIT_TIMEOUT" default:"10"`
}

type RedisConfig struct {
	Addr     string `envconfig:"REDIS_URL" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

type NATSConfig struct {
	URL           string `envconfig:"NATS_URL"`
	SubjectPrefix string `envconfig:"NATS_AUDIT_SUBJECT" default:"growvia.audit"`
}

type PaystackConfig struct {
	BaseURL   string        `envconfig:"PAYSTACK_BASE_URL" default:"https://api.paystack.co"`
	SecretKey string        `envconfig:"PAYSTACK_SECRET_KEY"`
	Timeout   time.Duration `envconfig:"PAYSTACK_TIMEOUT" default:"30s"`
}

type FeeConfig struct {
	PointsPerNaira       int64           `envconfig:"POINTS_PER_NAIRA" default:"100"`
	TransferFeePercent   decimal.Decimal `envconfig:"TRANSFER_FEE_PERCENT" default:"1.5"`
	TransferFeeMinimum   decimal.Decimal `envconfig:"TRANSFER_FEE_MINIMUM" default:"50"`
	WithdrawalFeePercent decimal.Decimal `envconfig:"WITHDRAWAL_FEE_PERCENT" default:"1.5"`
	WithdrawalFeeCap     decimal.Decimal `envconfig:"WITHDRAWAL_FEE_CAP" default:"1000"`
}

type PayoutConfig struct {
	MinimumWithdrawal decimal.Decimal `envconfig:"MINIMUM_WITHDRAWAL" default:"5000"`
	OTPTTL            time.Duration   `envconfig:"PAYOUT_OTP_TTL" default:"10m"`
	OTPSendsPerHour   int64           `envconfig:"PAYOUT_OTP_SENDS_PER_HOUR" default:"5"`
}

type SchedulerConfig struct {
	OTPPurgeSpec    string        `envconfig:"CRON_OTP_PURGE" default:"*/5 * * * *"`
	PayoutSweepSpec string        `envconfig:"CRON_PAYOUT_SWEEP" default:"*/10 * * * *"`
	PayoutSweepAge  time.Duration `envconfig:"PAYOUT_SWEEP_AGE" default:"5m"`
}

// Load reads .env files (current dir, then parent) and fills Config from the environment.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env", "../.env"}
	}
	loaded := false
	for _, f := range files {
		if err := godotenv.Load(f); err == nil {
			loaded = true
			break
		}
	}
	if !loaded {
		logrus.Info("No .env file found, using system environment variables")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

func (d DatabaseConfig) DSN() string {
	if d.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC&innodb_lock_wait_timeout=%d",
		d.User, d.Password, d.Host, d.Port, d.Name, d.LockWaitTimeout)
}

func (d DatabaseConfig) MigrateURL() string {
	if d.Driver == "postgres" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
	}
	return fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true", d.User, d.Password, d.Host, d.Port, d.Name)
}

// ConfigureLogging applies level and formatter to the standard logrus logger.
func (c *Config) ConfigureLogging() {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if c.LogFormat == "text" || c.Environment == "development" {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		return
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})
}
