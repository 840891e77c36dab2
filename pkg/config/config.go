package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Store        StoreConfig
	Redis        RedisConfig
	JWT          JWTConfig
	OTP          OTPConfig
	RateLimit    RateLimitConfig
	Returns      ReturnsConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Returns.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string        `envconfig:"FULFILLMENT_APP_ENV" required:"true"`
	Port         string        `envconfig:"FULFILLMENT_APP_PORT" required:"true"`
	LogLevel     string        `envconfig:"FULFILLMENT_LOG_LEVEL" default:"info"`
	LogFormat    string        `envconfig:"FULFILLMENT_LOG_FORMAT" default:"json"`
	LogWarnStack bool          `envconfig:"FULFILLMENT_LOG_WARN_STACK" default:"false"`
	ReadTimeout  time.Duration `envconfig:"FULFILLMENT_HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `envconfig:"FULFILLMENT_HTTP_WRITE_TIMEOUT" default:"15s"`
	CORSOrigins  []string      `envconfig:"FULFILLMENT_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev) || strings.EqualFold(a.Env, "development")
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"FULFILLMENT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FULFILLMENT_DB_DSN"`
	Driver string `envconfig:"FULFILLMENT_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"FULFILLMENT_DB_HOST"`
	Port     int    `envconfig:"FULFILLMENT_DB_PORT" default:"5432"`
	User     string `envconfig:"FULFILLMENT_DB_USER"`
	Password string `envconfig:"FULFILLMENT_DB_PASSWORD"`
	Name     string `envconfig:"FULFILLMENT_DB_NAME"`
	SSLMode  string `envconfig:"FULFILLMENT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FULFILLMENT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FULFILLMENT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FULFILLMENT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FULFILLMENT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"FULFILLMENT_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

// StoreConfig tunes the single retry applied to transient storage failures.
type StoreConfig struct {
	RetryBackoff time.Duration `envconfig:"FULFILLMENT_STORE_RETRY_BACKOFF" default:"50ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FULFILLMENT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FULFILLMENT_REDIS_ADDR"`
	Password     string        `envconfig:"FULFILLMENT_REDIS_PASSWORD"`
	DB           int           `envconfig:"FULFILLMENT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FULFILLMENT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FULFILLMENT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FULFILLMENT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FULFILLMENT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FULFILLMENT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"FULFILLMENT_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"FULFILLMENT_JWT_ISSUER" required:"true"`
	// ExpirationMinutes is only used when minting development tokens.
	ExpirationMinutes int `envconfig:"FULFILLMENT_JWT_EXPIRATION_MINUTES" default:"60"`
	// RequireSession enables the redis-backed revocation check on every request.
	RequireSession bool `envconfig:"FULFILLMENT_JWT_REQUIRE_SESSION" default:"true"`
}

// OTPConfig holds the argon2id parameters used to hash delivery codes.
type OTPConfig struct {
	ArgonMemoryKB    int `envconfig:"FULFILLMENT_OTP_ARGON_MEMORY_KB" default:"19456"`
	ArgonTime        int `envconfig:"FULFILLMENT_OTP_ARGON_TIME" default:"2"`
	ArgonParallelism int `envconfig:"FULFILLMENT_OTP_ARGON_PARALLELISM" default:"1"`
	ArgonSaltLen     int `envconfig:"FULFILLMENT_OTP_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"FULFILLMENT_OTP_ARGON_KEY_LEN" default:"32"`
}

// RateLimitConfig bounds delivery code attempts. A zero limit disables that
// counter.
type RateLimitConfig struct {
	OTPWindow      time.Duration `envconfig:"FULFILLMENT_OTP_RATE_LIMIT_WINDOW" default:"15m"`
	OTPCallerLimit int           `envconfig:"FULFILLMENT_OTP_RATE_LIMIT_CALLER" default:"10"`
	OTPOrderLimit  int           `envconfig:"FULFILLMENT_OTP_RATE_LIMIT_ORDER" default:"5"`
}

type ReturnsConfig struct {
	WindowDays   int           `envconfig:"FULFILLMENT_RETURN_WINDOW_DAYS" default:"7"`
	ReadCacheTTL time.Duration `envconfig:"FULFILLMENT_READ_CACHE_TTL" default:"5s"`
}

// Window returns the return eligibility window as a duration.
func (r ReturnsConfig) Window() time.Duration {
	return time.Duration(r.WindowDays) * 24 * time.Hour
}

func (r ReturnsConfig) validate() error {
	if r.WindowDays <= 0 {
		return fmt.Errorf("%s must be positive", EnvReturnWindowDays)
	}
	if r.ReadCacheTTL < 0 {
		return fmt.Errorf("%s must not be negative", EnvReadCacheTTL)
	}
	return nil
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"FULFILLMENT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"FULFILLMENT_AUTO_MIGRATE" default:"false"`
	ReadCache   bool `envconfig:"FULFILLMENT_READ_CACHE" default:"true"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"FULFILLMENT_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"FULFILLMENT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"FULFILLMENT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"FULFILLMENT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"FULFILLMENT_PUBSUB_NOTIFICATION_TOPIC" default:"fulfillment-notification-events"`
	AuditTopic        string `envconfig:"FULFILLMENT_PUBSUB_AUDIT_TOPIC" default:"fulfillment-audit-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FULFILLMENT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FULFILLMENT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FULFILLMENT_OUTBOX_MAX_ATTEMPTS" default:"10"`

	RetentionDays    int           `envconfig:"FULFILLMENT_OUTBOX_RETENTION_DAYS" default:"30"`
	DLQRetentionDays int           `envconfig:"FULFILLMENT_OUTBOX_DLQ_RETENTION_DAYS" default:"90"`
	MaintenanceEvery time.Duration `envconfig:"FULFILLMENT_MAINTENANCE_INTERVAL" default:"24h"`
}

func (db *DBConfig) ensureDSN(sqlite bool) error {
	if db.DSN != "" {
		return nil
	}
	if sqlite {
		db.DSN = "file:fulfillment.db?cache=shared"
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dbPartEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
