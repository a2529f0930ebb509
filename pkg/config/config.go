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
	Auth         AuthConfig
	RateLimit    RateLimitConfig
	Codes        CodesConfig
	Reviews      ReviewsConfig
	Ledger       LedgerConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Codes.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"VERACART_APP_ENV" required:"true"`
	Port         string `envconfig:"VERACART_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"VERACART_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"VERACART_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"VERACART_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"VERACART_DB_DSN"`
	Driver string `envconfig:"VERACART_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"VERACART_DB_HOST"`
	Port     int    `envconfig:"VERACART_DB_PORT" default:"5432"`
	User     string `envconfig:"VERACART_DB_USER"`
	Password string `envconfig:"VERACART_DB_PASSWORD"`
	Name     string `envconfig:"VERACART_DB_NAME"`
	SSLMode  string `envconfig:"VERACART_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"VERACART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"VERACART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"VERACART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VERACART_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"VERACART_REDIS_URL" required:"true"`
	Address      string        `envconfig:"VERACART_REDIS_ADDR"`
	Password     string        `envconfig:"VERACART_REDIS_PASSWORD"`
	DB           int           `envconfig:"VERACART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VERACART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VERACART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VERACART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VERACART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VERACART_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// AuthConfig drives the service-token guard on admin routes. Storefront and
// order-management callers hold tokens signed with the shared secret.
type AuthConfig struct {
	ServiceTokenSecret string `envconfig:"VERACART_SERVICE_TOKEN_SECRET" required:"true"`
	ServiceTokenIssuer string `envconfig:"VERACART_SERVICE_TOKEN_ISSUER" default:"veracart"`
}

type RateLimitConfig struct {
	CodeWindow       time.Duration `envconfig:"VERACART_RATE_LIMIT_CODE_WINDOW" default:"1m"`
	CodeIPLimit      int           `envconfig:"VERACART_RATE_LIMIT_CODE_IP_LIMIT" default:"30"`
	CodeBuyerLimit   int           `envconfig:"VERACART_RATE_LIMIT_CODE_BUYER_LIMIT" default:"10"`
	SubmitWindow     time.Duration `envconfig:"VERACART_RATE_LIMIT_SUBMIT_WINDOW" default:"5m"`
	SubmitIPLimit    int           `envconfig:"VERACART_RATE_LIMIT_SUBMIT_IP_LIMIT" default:"20"`
	SubmitBuyerLimit int           `envconfig:"VERACART_RATE_LIMIT_SUBMIT_BUYER_LIMIT" default:"5"`
}

// CodesConfig controls delivery code issuance and at-rest protection.
type CodesConfig struct {
	// Prefix is fixed per deployment and is part of the canonical code format.
	Prefix string `envconfig:"VERACART_CODE_PREFIX" default:"VC"`
	// VaultKey is a 32-byte key (base64 or raw hex) used to encrypt raw codes at rest.
	VaultKey      string `envconfig:"VERACART_CODE_VAULT_KEY" required:"true"`
	MaxBatchIssue int    `envconfig:"VERACART_CODE_MAX_BATCH_ISSUE" default:"100"`
}

func (c CodesConfig) validate() error {
	prefix := strings.TrimSpace(c.Prefix)
	if prefix == "" {
		return fmt.Errorf("code prefix is required")
	}
	if prefix != strings.ToUpper(prefix) {
		return fmt.Errorf("code prefix must be uppercase, got %q", prefix)
	}
	if c.MaxBatchIssue <= 0 {
		return fmt.Errorf("code max batch issue must be positive")
	}
	return nil
}

type ReviewsConfig struct {
	MinCommentLength int `envconfig:"VERACART_REVIEW_MIN_COMMENT_LENGTH" default:"10"`
	MaxCommentLength int `envconfig:"VERACART_REVIEW_MAX_COMMENT_LENGTH" default:"4000"`
	MaxImages        int `envconfig:"VERACART_REVIEW_MAX_IMAGES" default:"6"`
}

// LedgerConfig selects and tunes the ledger backend. Backend is "rpc" for the
// network-connected ledger or "local" for the in-process deterministic one.
type LedgerConfig struct {
	Backend        string        `envconfig:"VERACART_LEDGER_BACKEND" default:"local"`
	RPCURL         string        `envconfig:"VERACART_LEDGER_RPC_URL"`
	SigningKey     string        `envconfig:"VERACART_LEDGER_SIGNING_KEY"`
	SubmitTimeout  time.Duration `envconfig:"VERACART_LEDGER_SUBMIT_TIMEOUT" default:"3s"`
	ConfirmTimeout time.Duration `envconfig:"VERACART_LEDGER_CONFIRM_TIMEOUT" default:"30s"`
	ConfirmPoll    time.Duration `envconfig:"VERACART_LEDGER_CONFIRM_POLL" default:"1s"`
	QueryTimeout   time.Duration `envconfig:"VERACART_LEDGER_QUERY_TIMEOUT" default:"2s"`
}

func (l LedgerConfig) NormalizedBackend() string {
	backend := strings.TrimSpace(strings.ToLower(l.Backend))
	if backend == "" {
		return LedgerBackendLocal
	}
	return backend
}

type GCPConfig struct {
	ProjectID       string `envconfig:"VERACART_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"VERACART_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	DeliveredTopic        string `envconfig:"VERACART_PUBSUB_DELIVERED_TOPIC" default:"vc-order-delivered"`
	DeliveredSubscription string `envconfig:"VERACART_PUBSUB_DELIVERED_SUBSCRIPTION"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"VERACART_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"VERACART_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range requiredDBEnvVars {
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
