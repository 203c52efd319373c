package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	App           AppConfig           `mapstructure:"app"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	DynamoDB      DynamoDBConfig      `mapstructure:"dynamodb"`
	Providers     ProvidersConfig     `mapstructure:"providers"`
	MercadoPago   MercadoPagoConfig   `mapstructure:"mercadopago"`
	PagBank       PagBankConfig       `mapstructure:"pagbank"`
	Stripe        StripeConfig        `mapstructure:"stripe"`
	OAuth         OAuthConfig         `mapstructure:"oauth"`
	Recaptcha     RecaptchaConfig     `mapstructure:"recaptcha"`
	Webhook       WebhookConfig       `mapstructure:"webhook"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       int           `mapstructure:"rate_limit"`
	CORS            CORSConfig    `mapstructure:"cors"`
	// OperatorSecret signs the bearer tokens accepted by operational endpoints.
	OperatorSecret string `mapstructure:"operator_secret"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// AppConfig describes where the web front end and this API are reachable.
type AppConfig struct {
	PublicURL   string `mapstructure:"public_url"`
	FrontendURL string `mapstructure:"frontend_url"`
}

type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

type DynamoDBConfig struct {
	Region     string `mapstructure:"region"`
	Endpoint   string `mapstructure:"endpoint"`
	TokenTable string `mapstructure:"token_table"`
}

// ProvidersConfig holds settings shared by every payment provider call.
type ProvidersConfig struct {
	Timeout                 time.Duration `mapstructure:"timeout"`
	CircuitBreakerThreshold int           `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`
}

type MercadoPagoConfig struct {
	AccessToken  string `mapstructure:"access_token"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	BaseURL      string `mapstructure:"base_url"`
	AuthURL      string `mapstructure:"auth_url"`
	Sandbox      bool   `mapstructure:"sandbox"`
}

type PagBankConfig struct {
	Token         string        `mapstructure:"token"`
	Env           string        `mapstructure:"env"`
	BaseURL       string        `mapstructure:"base_url"`
	PixExpiration time.Duration `mapstructure:"pix_expiration"`
}

type StripeConfig struct {
	SecretKey string `mapstructure:"secret_key"`
	BaseURL   string `mapstructure:"base_url"`
	Currency  string `mapstructure:"currency"`
}

type OAuthConfig struct {
	TokenStore    string        `mapstructure:"token_store"`
	TokenFile     string        `mapstructure:"token_file"`
	StateSecret   string        `mapstructure:"state_secret"`
	StateTTL      time.Duration `mapstructure:"state_ttl"`
	RefreshAhead  time.Duration `mapstructure:"refresh_ahead"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
	LockTTL       time.Duration `mapstructure:"lock_ttl"`
}

type RecaptchaConfig struct {
	SecretKey string `mapstructure:"secret_key"`
	VerifyURL string `mapstructure:"verify_url"`
}

type WebhookConfig struct {
	Stream  string `mapstructure:"stream"`
	Persist bool   `mapstructure:"persist"`
}

type WorkerConfig struct {
	BatchSize      int64         `mapstructure:"batch_size"`
	BlockDuration  time.Duration `mapstructure:"block_duration"`
	ConsumerGroup  string        `mapstructure:"consumer_group"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
	MetricsPort    int           `mapstructure:"metrics_port"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

// Token store backends.
const (
	TokenStoreFile     = "file"
	TokenStoreRedis    = "redis"
	TokenStorePostgres = "postgres"
	TokenStoreDynamoDB = "dynamodb"
)

// envBindings maps config keys to the variable names the deployment already uses.
var envBindings = map[string]string{
	"server.port":               "PORT",
	"app.public_url":            "NEXT_PUBLIC_API_URL",
	"mercadopago.access_token":  "MERCADOPAGO_ACCESS_TOKEN",
	"mercadopago.client_id":     "MERCADOPAGO_CLIENT_ID",
	"mercadopago.client_secret": "MERCADOPAGO_CLIENT_SECRET",
	"pagbank.token":             "PAGBANK_TOKEN",
	"pagbank.env":               "PAGBANK_ENV",
	"stripe.secret_key":         "STRIPE_SECRET_KEY",
	"recaptcha.secret_key":      "RECAPTCHA_SECRET_KEY",
}

func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("CHECKOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, "CHECKOUT_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/checkout")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Providers.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("providers.timeout must be positive"))
	}
	if c.Server.WriteTimeout > 0 && c.Providers.Timeout >= c.Server.WriteTimeout {
		errs = append(errs, fmt.Errorf("providers.timeout must be shorter than server.write_timeout"))
	}
	if c.App.PublicURL != "" {
		if u, err := url.Parse(c.App.PublicURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("app.public_url must be an absolute URL, got %q", c.App.PublicURL))
		}
	}
	switch c.PagBank.Env {
	case "production", "sandbox":
	default:
		errs = append(errs, fmt.Errorf("pagbank.env must be production or sandbox, got %q", c.PagBank.Env))
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			errs = append(errs, fmt.Errorf("database.host is required"))
		}
		if c.Database.Port <= 0 {
			errs = append(errs, fmt.Errorf("database.port must be positive"))
		}
	}
	if c.Redis.Enabled && c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}

	switch c.OAuth.TokenStore {
	case TokenStoreFile:
		if c.OAuth.TokenFile == "" {
			errs = append(errs, fmt.Errorf("oauth.token_file is required for the file token store"))
		}
	case TokenStoreRedis:
		if !c.Redis.Enabled {
			errs = append(errs, fmt.Errorf("oauth.token_store=redis requires redis.enabled"))
		}
	case TokenStorePostgres:
		if !c.Database.Enabled {
			errs = append(errs, fmt.Errorf("oauth.token_store=postgres requires database.enabled"))
		}
	case TokenStoreDynamoDB:
		if c.DynamoDB.TokenTable == "" {
			errs = append(errs, fmt.Errorf("dynamodb.token_table is required for the dynamodb token store"))
		}
	default:
		errs = append(errs, fmt.Errorf("oauth.token_store must be one of file, redis, postgres, dynamodb; got %q", c.OAuth.TokenStore))
	}
	if c.Webhook.Persist && !c.Database.Enabled {
		errs = append(errs, fmt.Errorf("webhook.persist requires database.enabled"))
	}

	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Database.Enabled && c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
		if c.OAuth.StateSecret == "" {
			errs = append(errs, fmt.Errorf("oauth.state_secret required in production"))
		}
	}

	if c.OAuth.StateSecret != "" && len(c.OAuth.StateSecret) < 32 {
		errs = append(errs, fmt.Errorf("oauth.state_secret must be at least 32 characters"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.rate_limit", 60)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	v.SetDefault("app.public_url", "http://localhost:3000")
	v.SetDefault("app.frontend_url", "http://localhost:5173")

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "checkout")
	v.SetDefault("database.database", "checkout")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.min_connections", 1)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	v.SetDefault("dynamodb.region", "us-east-1")
	v.SetDefault("dynamodb.token_table", "oauth_tokens")

	// Provider defaults
	v.SetDefault("providers.timeout", "15s")
	v.SetDefault("providers.circuit_breaker_threshold", 5)
	v.SetDefault("providers.circuit_breaker_timeout", "30s")

	v.SetDefault("mercadopago.base_url", "https://api.mercadopago.com")
	v.SetDefault("mercadopago.auth_url", "https://auth.mercadopago.com/authorization")
	v.SetDefault("mercadopago.sandbox", false)

	v.SetDefault("pagbank.env", "sandbox")
	v.SetDefault("pagbank.pix_expiration", "30m")

	v.SetDefault("stripe.currency", "brl")

	// OAuth defaults
	v.SetDefault("oauth.token_store", TokenStoreFile)
	v.SetDefault("oauth.token_file", "mp_token.json")
	v.SetDefault("oauth.state_ttl", "10m")
	v.SetDefault("oauth.refresh_ahead", "24h")
	v.SetDefault("oauth.check_interval", "15m")
	v.SetDefault("oauth.lock_ttl", "30s")

	v.SetDefault("recaptcha.verify_url", "https://www.google.com/recaptcha/api/siteverify")

	v.SetDefault("webhook.stream", "webhooks:notifications")
	v.SetDefault("webhook.persist", false)

	// Worker defaults
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.block_duration", "1s")
	v.SetDefault("worker.consumer_group", "webhook-inspectors")
	v.SetDefault("worker.idempotency_ttl", "24h")
	v.SetDefault("worker.metrics_port", 9091)

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", false)

	v.SetDefault("instance_id", "checkout-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// DatabaseURL is the URL form expected by golang-migrate.
func (c *DatabaseConfig) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PagBank hosts per environment.
const (
	PagBankProductionURL = "https://api.pagseguro.com"
	PagBankSandboxURL    = "https://sandbox.api.pagseguro.com"
)

// ResolvedBaseURL returns the explicit base URL or the one for Env.
func (c *PagBankConfig) ResolvedBaseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	if c.Env == "production" {
		return PagBankProductionURL
	}
	return PagBankSandboxURL
}
