package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	JWTSecret      string        `mapstructure:"JWT_SECRET"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string        `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`

	RedisURL     string `mapstructure:"REDIS_URL"`
	AMQPURL      string `mapstructure:"AMQP_URL"`
	AMQPExchange string `mapstructure:"AMQP_EXCHANGE"`

	StorageDriver    string        `mapstructure:"STORAGE_DRIVER"`
	StorageBucket    string        `mapstructure:"STORAGE_BUCKET"`
	StorageEndpoint  string        `mapstructure:"STORAGE_ENDPOINT"`
	StorageRegion    string        `mapstructure:"STORAGE_REGION"`
	StorageAccessKey string        `mapstructure:"STORAGE_ACCESS_KEY"`
	StorageSecretKey string        `mapstructure:"STORAGE_SECRET_KEY"`
	StorageUseSSL    bool          `mapstructure:"STORAGE_USE_SSL"`
	PresignTTL       time.Duration `mapstructure:"PRESIGN_TTL"`
	EnableFileUpload bool          `mapstructure:"ENABLE_FILE_UPLOAD"`
	MaxUploadSize    string        `mapstructure:"MAX_UPLOAD_SIZE"`

	MetricsEnabled bool `mapstructure:"METRICS_ENABLED"`

	// DevUserID is the actor assumed by unauthenticated requests when
	// ENV=development. X-Dev-* headers override it per request.
	DevUserID string `mapstructure:"DEV_USER_ID"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"JWT_SECRET", "AUTH_ISSUER", "AUTH_AUDIENCE", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "BODY_LIMIT",
	"REDIS_URL", "AMQP_URL", "AMQP_EXCHANGE",
	"STORAGE_DRIVER", "STORAGE_BUCKET", "STORAGE_ENDPOINT", "STORAGE_REGION",
	"STORAGE_ACCESS_KEY", "STORAGE_SECRET_KEY", "STORAGE_USE_SSL",
	"PRESIGN_TTL", "ENABLE_FILE_UPLOAD", "MAX_UPLOAD_SIZE", "METRICS_ENABLED",
	"DEV_USER_ID",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("AUTH_ISSUER", "")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("AMQP_EXCHANGE", "claimdesk.notifications")
	v.SetDefault("STORAGE_DRIVER", "memory")
	v.SetDefault("STORAGE_BUCKET", "claimdesk-documents")
	v.SetDefault("STORAGE_REGION", "us-east-1")
	v.SetDefault("PRESIGN_TTL", "3h")
	v.SetDefault("ENABLE_FILE_UPLOAD", true)
	v.SetDefault("MAX_UPLOAD_SIZE", "2M")
	v.SetDefault("METRICS_ENABLED", true)

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env is fine; the environment alone is enough.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = splitList(origins)
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside
// development a signing secret is mandatory, since there is no other way
// to authenticate callers.
func (c *Config) Validate() error {
	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV=%q", c.Env)
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes, got %d", len(c.JWTSecret))
	}

	switch c.StorageDriver {
	case "memory":
		if c.IsProduction() {
			return fmt.Errorf("STORAGE_DRIVER=memory is not allowed in production")
		}
	case "minio":
		if c.StorageEndpoint == "" || c.StorageAccessKey == "" || c.StorageSecretKey == "" {
			return fmt.Errorf("STORAGE_ENDPOINT, STORAGE_ACCESS_KEY and STORAGE_SECRET_KEY are required for the minio driver")
		}
	case "s3":
		if c.StorageBucket == "" {
			return fmt.Errorf("STORAGE_BUCKET is required for the s3 driver")
		}
	default:
		return fmt.Errorf("STORAGE_DRIVER must be \"memory\", \"minio\" or \"s3\", got %q", c.StorageDriver)
	}

	if c.PresignTTL <= 0 {
		return fmt.Errorf("PRESIGN_TTL must be positive")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
