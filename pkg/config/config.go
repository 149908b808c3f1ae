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
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Engine       EngineConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DBDriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Engine.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Outbox.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"KITCHENSTOCK_APP_ENV" required:"true"`
	Port         string `envconfig:"KITCHENSTOCK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"KITCHENSTOCK_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"KITCHENSTOCK_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"KITCHENSTOCK_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"KITCHENSTOCK_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"KITCHENSTOCK_SERVICE_KIND" default:"api"`
	// MetricsAddr is the worker metrics listener; empty disables it. The API
	// serves /metrics on its own port.
	MetricsAddr string `envconfig:"KITCHENSTOCK_METRICS_ADDR" default:":9090"`
}

type DBConfig struct {
	DSN    string `envconfig:"KITCHENSTOCK_DB_DSN"`
	Driver string `envconfig:"KITCHENSTOCK_DB_DRIVER" default:"postgres"`

	SQLitePath string `envconfig:"KITCHENSTOCK_SQLITE_PATH" default:"kitchenstock.db"`

	LegacyHost     string `envconfig:"KITCHENSTOCK_DB_HOST"`
	LegacyPort     int    `envconfig:"KITCHENSTOCK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"KITCHENSTOCK_DB_USER"`
	LegacyPassword string `envconfig:"KITCHENSTOCK_DB_PASSWORD"`
	LegacyName     string `envconfig:"KITCHENSTOCK_DB_NAME"`
	LegacySSLMode  string `envconfig:"KITCHENSTOCK_DB_SSLMODE" default:"disable"`

	MaxOpenConns     int           `envconfig:"KITCHENSTOCK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns     int           `envconfig:"KITCHENSTOCK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime  time.Duration `envconfig:"KITCHENSTOCK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime  time.Duration `envconfig:"KITCHENSTOCK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery        time.Duration `envconfig:"KITCHENSTOCK_DB_SLOW_QUERY" default:"250ms"`
	StatementTimeout time.Duration `envconfig:"KITCHENSTOCK_DB_STATEMENT_TIMEOUT" default:"5s"`
}

type RedisConfig struct {
	URL          string        `envconfig:"KITCHENSTOCK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"KITCHENSTOCK_REDIS_ADDR"`
	Password     string        `envconfig:"KITCHENSTOCK_REDIS_PASSWORD"`
	DB           int           `envconfig:"KITCHENSTOCK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"KITCHENSTOCK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"KITCHENSTOCK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"KITCHENSTOCK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"KITCHENSTOCK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"KITCHENSTOCK_REDIS_WRITE_TIMEOUT" default:"5s"`
	SlowCommand  time.Duration `envconfig:"KITCHENSTOCK_REDIS_SLOW_COMMAND" default:"50ms"`
}

// JWTConfig verifies staff tokens minted by the back-office auth service.
type JWTConfig struct {
	Secret            string `envconfig:"KITCHENSTOCK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"KITCHENSTOCK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"KITCHENSTOCK_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"KITCHENSTOCK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"KITCHENSTOCK_AUTO_MIGRATE" default:"false"`
}

// EngineConfig tunes the consumption engine.
type EngineConfig struct {
	CommitTimeout        time.Duration `envconfig:"KITCHENSTOCK_ENGINE_COMMIT_TIMEOUT" default:"10s"`
	CompensationAttempts int           `envconfig:"KITCHENSTOCK_ENGINE_COMPENSATION_ATTEMPTS" default:"3"`
	CascadeRetries       int           `envconfig:"KITCHENSTOCK_ENGINE_CASCADE_RETRIES" default:"2"`
	OrderLockTTL         time.Duration `envconfig:"KITCHENSTOCK_ENGINE_ORDER_LOCK_TTL" default:"30s"`
	ReplayTTL            time.Duration `envconfig:"KITCHENSTOCK_ENGINE_REPLAY_TTL" default:"168h"`
}

func (e EngineConfig) validate() error {
	if e.CommitTimeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvEngineCommitTimeout)
	}
	if e.CompensationAttempts < 1 {
		return fmt.Errorf("%s must be at least 1", EnvEngineCompensationAttempts)
	}
	if e.CascadeRetries < 0 {
		return fmt.Errorf("%s must not be negative", EnvEngineCascadeRetries)
	}
	return nil
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"KITCHENSTOCK_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"KITCHENSTOCK_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"KITCHENSTOCK_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"KITCHENSTOCK_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	StockEventsTopic         string `envconfig:"KITCHENSTOCK_PUBSUB_STOCK_EVENTS_TOPIC" default:"ks-stock-events"`
	NotificationTopic        string `envconfig:"KITCHENSTOCK_PUBSUB_NOTIFICATION_TOPIC" default:"ks-notification-events"`
	NotificationSubscription string `envconfig:"KITCHENSTOCK_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"ks-notification-events-sub"`
	// OrderingEnabled keys messages by aggregate so one ingredient's stock
	// events arrive in commit order. Topics must allow ordered delivery.
	OrderingEnabled       bool          `envconfig:"KITCHENSTOCK_PUBSUB_ORDERING_ENABLED" default:"true"`
	PublishDelayThreshold time.Duration `envconfig:"KITCHENSTOCK_PUBSUB_PUBLISH_DELAY" default:"10ms"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"KITCHENSTOCK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"KITCHENSTOCK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"KITCHENSTOCK_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"KITCHENSTOCK_OUTBOX_RETENTION" default:"720h"`
	DLQRetention   time.Duration `envconfig:"KITCHENSTOCK_OUTBOX_DLQ_RETENTION" default:"2160h"`
	BacklogWarn    int64         `envconfig:"KITCHENSTOCK_OUTBOX_BACKLOG_WARN" default:"500"`
}

func (o OutboxConfig) validate() error {
	switch {
	case o.BatchSize < 1:
		return fmt.Errorf("%s must be at least 1", EnvOutboxBatchSize)
	case o.MaxAttempts < 1:
		return fmt.Errorf("%s must be at least 1", EnvOutboxMaxAttempts)
	}
	return nil
}

type CronConfig struct {
	Interval              time.Duration `envconfig:"KITCHENSTOCK_CRON_INTERVAL" default:"5m"`
	LockTTL               time.Duration `envconfig:"KITCHENSTOCK_CRON_LOCK_TTL" default:"4m"`
	JobTimeout            time.Duration `envconfig:"KITCHENSTOCK_CRON_JOB_TIMEOUT" default:"2m"`
	NotificationRetention time.Duration `envconfig:"KITCHENSTOCK_CRON_NOTIFICATION_RETENTION" default:"720h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" || db.Driver == DBDriverSQLite {
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
