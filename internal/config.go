package internal

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server" envPrefix:"HTTP_"`
	Database      DatabaseConfig      `mapstructure:"database" envPrefix:"DB_"`
	Security      SecurityConfig      `mapstructure:"security" envPrefix:"SECURITY_"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Payment       PaymentConfig       `mapstructure:"payment" envPrefix:"PAYMENT_"`
	Cache         CacheConfig         `mapstructure:"cache" envPrefix:"CACHE_"`
	Storage       StorageConfig       `mapstructure:"storage" envPrefix:"STORAGE_"`
	Notification  NotificationConfig  `mapstructure:"notification" envPrefix:"NOTIFICATION_"`
	Realtime      RealtimeConfig      `mapstructure:"realtime" envPrefix:"REALTIME_"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port" env:"PORT" envDefault:"8080"`
	BaseURL           string        `mapstructure:"base_url" env:"BASE_URL" envDefault:"http://localhost:8080"`
	AllowedOrigins    string        `mapstructure:"allowed_origins" env:"ALLOWED_ORIGINS" envDefault:"*"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" env:"READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout" env:"READ_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" env:"IDLE_TIMEOUT" envDefault:"60s"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" env:"WRITE_TIMEOUT" envDefault:"15s"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" env:"MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" env:"CONN_MAX_LIFETIME" envDefault:"30m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" env:"CONN_MAX_IDLE_TIME" envDefault:"5m"`
	Source          string        `mapstructure:"source" env:"SOURCE"`
}

type SecurityConfig struct {
	AccessTokenSecret    string        `mapstructure:"access_token_secret" env:"ACCESS_TOKEN_SECRET"`
	RefreshTokenSecret   string        `mapstructure:"refresh_token_secret" env:"REFRESH_TOKEN_SECRET"`
	AccessTokenDuration  time.Duration `mapstructure:"access_token_duration" env:"ACCESS_TOKEN_DURATION" envDefault:"15m"`
	RefreshTokenDuration time.Duration `mapstructure:"refresh_token_duration" env:"REFRESH_TOKEN_DURATION" envDefault:"168h"`
	BCryptCost           int           `mapstructure:"bcrypt_cost" env:"BCRYPT_COST" envDefault:"12"`
}

// PaymentConfig selects and configures the payment processor adapter.
type PaymentConfig struct {
	Provider          string        `mapstructure:"provider" env:"PROVIDER" envDefault:"gateway"`
	GatewayURL        string        `mapstructure:"gateway_url" env:"GATEWAY_URL"`
	APIKey            string        `mapstructure:"api_key" env:"API_KEY"`
	WebhookURL        string        `mapstructure:"webhook_url" env:"WEBHOOK_URL"`
	Simulate          bool          `mapstructure:"simulate" env:"SIMULATE"`
	PaymentTimeout    time.Duration `mapstructure:"payment_timeout" env:"TIMEOUT" envDefault:"30s"`
	MaxWorkers        int           `mapstructure:"max_workers" env:"MAX_WORKERS" envDefault:"4"`
	JobQueueSize      int           `mapstructure:"job_queue_size" env:"JOB_QUEUE_SIZE" envDefault:"100"`
	WorkerPoolSize    int           `mapstructure:"worker_pool_size" env:"WORKER_POOL_SIZE" envDefault:"4"`
	MercadoPagoToken  string        `mapstructure:"mercadopago_token" env:"MERCADOPAGO_TOKEN"`
	MercadoPagoMock   bool          `mapstructure:"mercadopago_mock" env:"MERCADOPAGO_MOCK"`
	PayerEmail        string        `mapstructure:"payer_email" env:"PAYER_EMAIL"`
	ReconcileSchedule string        `mapstructure:"reconcile_schedule" env:"RECONCILE_SCHEDULE"`
	ReconcileAfter    time.Duration `mapstructure:"reconcile_after" env:"RECONCILE_AFTER" envDefault:"10m"`
}

type CacheConfig struct {
	Driver        string        `mapstructure:"driver" env:"DRIVER" envDefault:"memory"`
	RedisAddr     string        `mapstructure:"redis_addr" env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `mapstructure:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int           `mapstructure:"redis_db" env:"REDIS_DB" envDefault:"0"`
	TTL           time.Duration `mapstructure:"ttl" env:"TTL" envDefault:"30s"`
}

type StorageConfig struct {
	// Driver selects "local" or "s3".
	Driver        string `mapstructure:"driver" env:"DRIVER" envDefault:"local"`
	Dir           string `mapstructure:"dir" env:"DIR" envDefault:"./uploads"`
	Bucket        string `mapstructure:"bucket" env:"BUCKET"`
	Region        string `mapstructure:"region" env:"REGION" envDefault:"us-east-1"`
	Endpoint      string `mapstructure:"endpoint" env:"ENDPOINT"`
	PublicBaseURL string `mapstructure:"public_base_url" env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080/files"`
	MaxFileSize   int64  `mapstructure:"max_file_size" env:"MAX_FILE_SIZE" envDefault:"10485760"`
}

type NotificationConfig struct {
	Email EmailConfig `mapstructure:"email" envPrefix:"EMAIL_"`
}

type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled" env:"ENABLED"`
	SMTPHost string `mapstructure:"smtp_host" env:"SMTP_HOST"`
	SMTPPort int    `mapstructure:"smtp_port" env:"SMTP_PORT" envDefault:"587"`
	Username string `mapstructure:"username" env:"USERNAME"`
	Password string `mapstructure:"password" env:"PASSWORD"`
	Sender   string `mapstructure:"sender" env:"SENDER"`
}

type RealtimeConfig struct {
	BufferSize      int    `mapstructure:"buffer_size" env:"BUFFER_SIZE" envDefault:"64"`
	ArchiveTable    string `mapstructure:"archive_table" env:"ARCHIVE_TABLE"`
	ArchiveRegion   string `mapstructure:"archive_region" env:"ARCHIVE_REGION" envDefault:"us-east-1"`
	ArchiveEndpoint string `mapstructure:"archive_endpoint" env:"ARCHIVE_ENDPOINT"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" env:"LOG_LEVEL" envDefault:"info"`
	Format string `mapstructure:"format" env:"LOG_FORMAT" envDefault:"json"`
}

// LoadConfigFromEnv builds the configuration for container deployments where no config file is mounted.
func LoadConfigFromEnv() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, nil
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Payment.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("payment config: %v", err))
	}

	if err := c.Cache.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("cache config: %v", err))
	}

	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("storage config: %v", err))
	}

	if err := c.Notification.Email.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("notification config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	if len(c.AccessTokenSecret) < 32 {
		return errors.New("access_token_secret must be at least 32 characters")
	}
	if len(c.RefreshTokenSecret) < 32 {
		return errors.New("refresh_token_secret must be at least 32 characters")
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return errors.New("access and refresh token secrets must differ")
	}
	if c.BCryptCost < 10 || c.BCryptCost > 15 {
		return errors.New("bcrypt_cost must be between 10 and 15")
	}
	return nil
}

func (c *PaymentConfig) Validate() error {
	switch c.Provider {
	case "gateway":
		if c.GatewayURL == "" {
			return errors.New("gateway_url is required for the gateway provider")
		}
	case "mercadopago":
		if c.MercadoPagoToken == "" && !c.MercadoPagoMock {
			return errors.New("mercadopago_token is required unless mercadopago_mock is set")
		}
	default:
		return fmt.Errorf("unknown payment provider %q", c.Provider)
	}
	return nil
}

func (c *CacheConfig) Validate() error {
	switch c.Driver {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("redis_addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown cache driver %q", c.Driver)
	}
	return nil
}

func (c *StorageConfig) Validate() error {
	switch c.Driver {
	case "local":
	case "s3":
		if c.Bucket == "" {
			return errors.New("bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Driver)
	}
	return nil
}

func (c *EmailConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.SMTPHost == "" || c.Sender == "" {
		return errors.New("smtp_host and sender are required when email is enabled")
	}
	return nil
}
