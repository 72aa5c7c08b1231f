package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix scopes every environment variable read by Load.
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "AQUARENT_DB_DSN"
	EnvDBHost = "AQUARENT_DB_HOST"
	EnvDBUser = "AQUARENT_DB_USER"
	EnvDBName = "AQUARENT_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Gateway  GatewayConfig
	Outbox   OutboxConfig
	Reassign ReassignConfig
	Rentals  RentalsConfig
	Cron     CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"AQUARENT_APP_ENV" required:"true"`
	Port         string `envconfig:"AQUARENT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"AQUARENT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"AQUARENT_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"AQUARENT_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"AQUARENT_DB_DSN"`
	Driver string `envconfig:"AQUARENT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"AQUARENT_DB_HOST"`
	LegacyPort     int    `envconfig:"AQUARENT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"AQUARENT_DB_USER"`
	LegacyPassword string `envconfig:"AQUARENT_DB_PASSWORD"`
	LegacyName     string `envconfig:"AQUARENT_DB_NAME"`
	LegacySSLMode  string `envconfig:"AQUARENT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"AQUARENT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"AQUARENT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"AQUARENT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"AQUARENT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"AQUARENT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"AQUARENT_REDIS_ADDR"`
	Password     string        `envconfig:"AQUARENT_REDIS_PASSWORD"`
	DB           int           `envconfig:"AQUARENT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"AQUARENT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"AQUARENT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"AQUARENT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"AQUARENT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"AQUARENT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig covers token verification only; issuance lives in a separate
// identity service.
type JWTConfig struct {
	Secret string `envconfig:"AQUARENT_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"AQUARENT_JWT_ISSUER" required:"true"`
}

// GatewayConfig holds the Razorpay credentials. KeySecret signs payment
// verification HMACs; its absence is fatal at startup.
type GatewayConfig struct {
	KeyID     string        `envconfig:"AQUARENT_GATEWAY_KEY_ID" required:"true"`
	KeySecret string        `envconfig:"AQUARENT_GATEWAY_KEY_SECRET" required:"true"`
	BaseURL   string        `envconfig:"AQUARENT_GATEWAY_BASE_URL"`
	Currency  string        `envconfig:"AQUARENT_GATEWAY_CURRENCY" default:"INR"`
	Timeout   time.Duration `envconfig:"AQUARENT_GATEWAY_TIMEOUT" default:"15s"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"AQUARENT_OUTBOX_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"AQUARENT_OUTBOX_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"AQUARENT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// ReassignConfig bounds the territory customer-reassignment batches.
type ReassignConfig struct {
	BatchSize int `envconfig:"AQUARENT_REASSIGN_BATCH_SIZE" default:"50"`
}

type RentalsConfig struct {
	ExpirySweepInterval time.Duration `envconfig:"AQUARENT_RENTAL_EXPIRY_SWEEP_INTERVAL" default:"1h"`
}

// CronConfig paces the scheduled maintenance worker.
type CronConfig struct {
	Interval                  time.Duration `envconfig:"AQUARENT_CRON_INTERVAL" default:"24h"`
	OutboxRetentionDays       int           `envconfig:"AQUARENT_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	NotificationRetentionDays int           `envconfig:"AQUARENT_CRON_NOTIFICATION_RETENTION_DAYS" default:"90"`
	PaymentTimeout            time.Duration `envconfig:"AQUARENT_CRON_PAYMENT_TIMEOUT" default:"24h"`
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
