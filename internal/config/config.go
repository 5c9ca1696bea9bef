package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPPort           string        `mapstructure:"HTTP_PORT"`
	RequestTimeout     time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ShutdownTimeout    time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	MaxRequestBodySize int64         `mapstructure:"MAX_REQUEST_BODY_SIZE"`
	SessionCookieName  string        `mapstructure:"SESSION_COOKIE_NAME"`
	SecureCookies      bool          `mapstructure:"SECURE_COOKIES"`
	SessionIdleTimeout time.Duration `mapstructure:"SESSION_IDLE_TIMEOUT"`
	MaxSessions        int           `mapstructure:"MAX_SESSIONS"`

	GraphQLURL        string        `mapstructure:"GRAPHQL_URL"`
	GatewayTimeout    time.Duration `mapstructure:"GATEWAY_TIMEOUT"`
	BreakerMaxFails   uint32        `mapstructure:"BREAKER_MAX_FAILURES"`
	BreakerOpenWindow time.Duration `mapstructure:"BREAKER_OPEN_TIMEOUT"`
	QueryCacheTTL     time.Duration `mapstructure:"QUERY_CACHE_TTL"`

	RefetchDelay         time.Duration `mapstructure:"CHECKOUT_REFETCH_DELAY"`
	DefaultPaymentMethod string        `mapstructure:"DEFAULT_PAYMENT_METHOD"`
	DefaultCountry       string        `mapstructure:"DEFAULT_COUNTRY"`
	LogoutLanding        string        `mapstructure:"LOGOUT_LANDING"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	LedgerDSN    string   `mapstructure:"LEDGER_DSN"`
	KafkaBrokers []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string   `mapstructure:"KAFKA_TOPIC"`
	// KafkaGroupID must differ per instance so every instance sees every event.
	KafkaGroupID string   `mapstructure:"KAFKA_GROUP_ID"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`
}

var defaults = map[string]any{
	"HTTP_PORT":              "8080",
	"REQUEST_TIMEOUT":        30 * time.Second,
	"SHUTDOWN_TIMEOUT":       10 * time.Second,
	"MAX_REQUEST_BODY_SIZE":  int64(1 << 20),
	"SESSION_COOKIE_NAME":    "sf_sid",
	"SECURE_COOKIES":         false,
	"SESSION_IDLE_TIMEOUT":   30 * time.Minute,
	"MAX_SESSIONS":           10000,
	"GRAPHQL_URL":            "http://localhost:8000/graphql",
	"GATEWAY_TIMEOUT":        15 * time.Second,
	"BREAKER_MAX_FAILURES":   uint32(5),
	"BREAKER_OPEN_TIMEOUT":   30 * time.Second,
	"QUERY_CACHE_TTL":        15 * time.Minute,
	"CHECKOUT_REFETCH_DELAY": 2 * time.Second,
	"DEFAULT_PAYMENT_METHOD": "bacs",
	"DEFAULT_COUNTRY":        "US",
	"LOGOUT_LANDING":         "/",
	"REDIS_ADDR":             "localhost:6379",
	"REDIS_PASSWORD":         "",
	"REDIS_DB":               0,
	"LEDGER_DSN":             "",
	"KAFKA_BROKERS":          []string{},
	"KAFKA_TOPIC":            "storefront-checkout-events",
	"KAFKA_GROUP_ID":         "",
	"LOG_LEVEL":              "info",
	"LOG_PRETTY":             false,
}

// Load reads defaults, then the optional config file, then the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.GraphQLURL == "" {
		return fmt.Errorf("GRAPHQL_URL is required")
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("MAX_SESSIONS must be positive, got %d", c.MaxSessions)
	}
	if c.RefetchDelay <= 0 {
		return fmt.Errorf("CHECKOUT_REFETCH_DELAY must be positive, got %s", c.RefetchDelay)
	}
	return nil
}
