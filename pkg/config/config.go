package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	Custody       CustodyConfig
	FeatureFlags  FeatureFlagsConfig
	CORS          CORSConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
	Cron          CronConfig
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
	Env          string `envconfig:"CAUTELA_APP_ENV" required:"true"`
	Port         string `envconfig:"CAUTELA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CAUTELA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CAUTELA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CAUTELA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"CAUTELA_DB_DSN"`

	LegacyHost     string `envconfig:"CAUTELA_DB_HOST"`
	LegacyPort     int    `envconfig:"CAUTELA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CAUTELA_DB_USER"`
	LegacyPassword string `envconfig:"CAUTELA_DB_PASSWORD"`
	LegacyName     string `envconfig:"CAUTELA_DB_NAME"`
	LegacySSLMode  string `envconfig:"CAUTELA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CAUTELA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CAUTELA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CAUTELA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CAUTELA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"CAUTELA_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CAUTELA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CAUTELA_REDIS_ADDR"`
	Password     string        `envconfig:"CAUTELA_REDIS_PASSWORD"`
	DB           int           `envconfig:"CAUTELA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CAUTELA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CAUTELA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CAUTELA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CAUTELA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CAUTELA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CAUTELA_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CAUTELA_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CAUTELA_JWT_EXPIRATION_MINUTES" default:"1440"`
}

// TTL returns the access token lifetime.
func (j JWTConfig) TTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"CAUTELA_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"CAUTELA_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"CAUTELA_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"CAUTELA_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"CAUTELA_ARGON_KEY_LEN" default:"32"`
	MinLength        int `envconfig:"CAUTELA_PASSWORD_MIN_LENGTH" default:"8"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"CAUTELA_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"15m"`
	LoginIdentityLimit int           `envconfig:"CAUTELA_AUTH_RATE_LIMIT_LOGIN_IDENTITY_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"CAUTELA_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"5"`
	PublicWindow       time.Duration `envconfig:"CAUTELA_RATE_LIMIT_PUBLIC_WINDOW" default:"15m"`
	PublicIPLimit      int           `envconfig:"CAUTELA_RATE_LIMIT_PUBLIC_IP_LIMIT" default:"100"`
}

// CustodyConfig tunes the lifecycle engine.
type CustodyConfig struct {
	LinkTokenBytes     int    `envconfig:"CAUTELA_CUSTODY_LINK_TOKEN_BYTES" default:"32"`
	TransitionAttempts int    `envconfig:"CAUTELA_CUSTODY_TRANSITION_ATTEMPTS" default:"3"`
	PublicBaseURL      string `envconfig:"CAUTELA_CUSTODY_PUBLIC_BASE_URL" default:"http://localhost:5173/assinar"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CAUTELA_AUTO_MIGRATE" default:"false"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"CAUTELA_CORS_ALLOWED_ORIGINS" default:"http://localhost:5173,http://localhost:3000"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"CAUTELA_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	CustodyTopic        string `envconfig:"CAUTELA_PUBSUB_CUSTODY_TOPIC" default:"custody-events"`
	CustodySubscription string `envconfig:"CAUTELA_PUBSUB_CUSTODY_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"CAUTELA_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"CAUTELA_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"CAUTELA_OUTBOX_MAX_ATTEMPTS" default:"10"`
	// Empty disables the publisher's /metrics listener.
	MetricsAddr string `envconfig:"CAUTELA_OUTBOX_METRICS_ADDR" default:":9091"`
}

// CronConfig schedules the maintenance worker.
type CronConfig struct {
	Interval            time.Duration `envconfig:"CAUTELA_CRON_INTERVAL" default:"1h"`
	LockTTL             time.Duration `envconfig:"CAUTELA_CRON_LOCK_TTL" default:"55m"`
	OutboxRetentionDays int           `envconfig:"CAUTELA_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	DLQRetentionDays    int           `envconfig:"CAUTELA_CRON_DLQ_RETENTION_DAYS" default:"90"`
	PruneBatchSize      int           `envconfig:"CAUTELA_CRON_PRUNE_BATCH_SIZE" default:"500"`
	LinkAuditWindow     time.Duration `envconfig:"CAUTELA_CRON_LINK_AUDIT_WINDOW" default:"24h"`
	MetricsAddr         string        `envconfig:"CAUTELA_CRON_METRICS_ADDR" default:":9092"`
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
