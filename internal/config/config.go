package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "JEWEL_"

type Config struct {
	App struct {
		Name     string `koanf:"name"`
		Env      string `koanf:"env"`
		HTTPAddr string `koanf:"http_addr"`
		LogMode  string `koanf:"log_mode"`
		LogLevel string `koanf:"log_level"`
		LogFile  string `koanf:"log_file"`
	} `koanf:"app"`

	HTTP struct {
		ReadTimeout     time.Duration `koanf:"read_timeout"`
		WriteTimeout    time.Duration `koanf:"write_timeout"`
		IdleTimeout     time.Duration `koanf:"idle_timeout"`
		RequestTimeout  time.Duration `koanf:"request_timeout"`
		ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
		AllowedOrigins  []string      `koanf:"allowed_origins"`
	} `koanf:"http"`

	Mongo struct {
		URI      string `koanf:"uri"`
		Database string `koanf:"database"`
	} `koanf:"mongo"`

	Redis struct {
		Addr     string        `koanf:"addr"`
		Password string        `koanf:"password"`
		DB       int           `koanf:"db"`
		CartTTL  time.Duration `koanf:"cart_ttl"`
	} `koanf:"redis"`

	Postgres struct {
		DSN string `koanf:"dsn"`
	} `koanf:"postgres"`

	Kafka struct {
		Brokers     []string `koanf:"brokers"`
		TopicEvents string   `koanf:"topic_events"`
	} `koanf:"kafka"`

	Auth struct {
		JWTSecret string        `koanf:"jwt_secret"`
		TokenTTL  time.Duration `koanf:"token_ttl"`
	} `koanf:"auth"`

	Checkout struct {
		Timeout        time.Duration `koanf:"timeout"`
		CartRetries    int           `koanf:"cart_retries"`
		StatusRetries  int           `koanf:"status_retries"`
		Currency       string        `koanf:"currency"`
		OrderPrefix    string        `koanf:"order_prefix"`
		DefaultPayment string        `koanf:"default_payment"`
	} `koanf:"checkout"`

	Notify struct {
		Timeout       time.Duration `koanf:"timeout"`
		SendTimeout   time.Duration `koanf:"send_timeout"`
		OperatorEmail string        `koanf:"operator_email"`
		OperatorPhone string        `koanf:"operator_phone"`
		AssetBaseURL  string        `koanf:"asset_base_url"`
		SupportEmail  string        `koanf:"support_email"`

		SendGrid struct {
			APIKey    string `koanf:"api_key"`
			BaseURL   string `koanf:"base_url"`
			FromEmail string `koanf:"from_email"`
			FromName  string `koanf:"from_name"`
		} `koanf:"sendgrid"`

		WhatsApp struct {
			URL    string `koanf:"url"`
			APIKey string `koanf:"api_key"`
		} `koanf:"whatsapp"`

		Breaker struct {
			MaxFailures uint32        `koanf:"max_failures"`
			OpenTimeout time.Duration `koanf:"open_timeout"`
		} `koanf:"breaker"`
	} `koanf:"notify"`
}

// Load reads <dir>/base.yaml, then the optional <dir>/<envName>.yaml, then
// JEWEL_ prefixed environment variables (JEWEL_MONGO__URI -> mongo.uri).
func Load(dir, envName string) (Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(file.Provider(fmt.Sprintf("%s/base.yaml", dir)), yaml.Parser()); err != nil {
		return Config{}, fmt.Errorf("load base: %w", err)
	}

	if envName != "" {
		_ = k.Load(file.Provider(fmt.Sprintf("%s/%s.yaml", dir, envName)), yaml.Parser())
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.RequestTimeout <= 0 {
		c.HTTP.RequestTimeout = 30 * time.Second
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.Redis.CartTTL <= 0 {
		c.Redis.CartTTL = 15 * time.Minute
	}
	if c.Checkout.Timeout <= 0 {
		c.Checkout.Timeout = 10 * time.Second
	}
	if c.Checkout.CartRetries <= 0 {
		c.Checkout.CartRetries = 3
	}
	if c.Checkout.StatusRetries <= 0 {
		c.Checkout.StatusRetries = 3
	}
	if c.Checkout.Currency == "" {
		c.Checkout.Currency = "INR"
	}
	if c.Checkout.OrderPrefix == "" {
		c.Checkout.OrderPrefix = "YJ"
	}
	if c.Checkout.DefaultPayment == "" {
		c.Checkout.DefaultPayment = "Cash on Delivery"
	}
	if c.Notify.Timeout <= 0 {
		c.Notify.Timeout = 30 * time.Second
	}
	if c.Notify.SendTimeout <= 0 {
		c.Notify.SendTimeout = 8 * time.Second
	}
	if c.Notify.Breaker.MaxFailures == 0 {
		c.Notify.Breaker.MaxFailures = 5
	}
	if c.Notify.Breaker.OpenTimeout <= 0 {
		c.Notify.Breaker.OpenTimeout = time.Minute
	}
	if c.Kafka.TopicEvents == "" {
		c.Kafka.TopicEvents = "order-events"
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
}

func (c Config) Validate() error {
	if c.App.HTTPAddr == "" {
		return fmt.Errorf("app.http_addr required")
	}
	if c.Mongo.URI == "" {
		return fmt.Errorf("mongo.uri required")
	}
	if c.Mongo.Database == "" {
		return fmt.Errorf("mongo.database required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret required")
	}
	if c.Notify.SendTimeout > c.Notify.Timeout {
		return fmt.Errorf("notify.send_timeout must not exceed notify.timeout")
	}
	return nil
}
