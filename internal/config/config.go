package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/telehealth-api/pkg/auth"
	"github.com/jwalitptl/telehealth-api/pkg/messaging/redis"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	RTC           RTCConfig           `mapstructure:"rtc"`
	SMTP          SMTPConfig          `mapstructure:"smtp"`
	Twilio        TwilioConfig        `mapstructure:"twilio"`
	Payments      PaymentsConfig      `mapstructure:"payments"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	CORS          CORSConfig          `mapstructure:"cors"`
	Outbox        OutboxConfig        `mapstructure:"outbox"`
	Workers       WorkersConfig       `mapstructure:"workers"`
	Audit         AuditConfig         `mapstructure:"audit"`
	Log           LogConfig           `mapstructure:"log"`
	EventTracking EventTrackingConfig `mapstructure:"event_tracking"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
	Mode           string        `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// DSN renders the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// URL renders the connection as a postgres:// url for golang-migrate.
func (c DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type JWTConfig struct {
	Secret             string `mapstructure:"secret"`
	RefreshSecret      string `mapstructure:"refresh_secret"`
	Issuer             string `mapstructure:"issuer"`
	ExpiryHours        int    `mapstructure:"expiry_hours"`
	RefreshExpiryHours int    `mapstructure:"refresh_expiry_hours"`
}

type RTCConfig struct {
	TokenSecret       string        `mapstructure:"token_secret"`
	TokenExpiry       time.Duration `mapstructure:"token_expiry"`
	RoomLifetime      time.Duration `mapstructure:"room_lifetime"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	STUNServers       []string      `mapstructure:"stun_servers"`
	SignalHistorySize int           `mapstructure:"signal_history_size"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type TwilioConfig struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	FromNumber string `mapstructure:"from_number"`
	VerifySID  string `mapstructure:"verify_sid"`
}

type PaymentsConfig struct {
	DefaultProvider string `mapstructure:"default_provider"`
	Currency        string `mapstructure:"currency"`
	RazorpayKey     string `mapstructure:"razorpay_key"`
	RazorpaySecret  string `mapstructure:"razorpay_secret"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type OutboxConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	Retention     time.Duration `mapstructure:"retention"`
}

type WorkersConfig struct {
	ReminderInterval     time.Duration `mapstructure:"reminder_interval"`
	NotificationInterval time.Duration `mapstructure:"notification_interval"`
	RoomSweepInterval    time.Duration `mapstructure:"room_sweep_interval"`
	BatchSize            int           `mapstructure:"batch_size"`
}

type AuditConfig struct {
	RetentionDays   int           `mapstructure:"retention_days"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	SkipPaths       []string      `mapstructure:"skip_paths"`
	TrailOutput     []string      `mapstructure:"trail_output"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type EventTrackingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// envOverrides is filled from TELEHEALTH_* variables and applied on top of the file.
type envOverrides struct {
	ServerPort       int    `envconfig:"SERVER_PORT"`
	GinMode          string `envconfig:"GIN_MODE"`
	DBHost           string `envconfig:"DB_HOST"`
	DBPort           int    `envconfig:"DB_PORT"`
	DBUser           string `envconfig:"DB_USER"`
	DBPassword       string `envconfig:"DB_PASSWORD"`
	DBName           string `envconfig:"DB_NAME"`
	DBSSLMode        string `envconfig:"DB_SSLMODE"`
	RedisURL         string `envconfig:"REDIS_URL"`
	JWTSecret        string `envconfig:"JWT_SECRET"`
	JWTRefreshSecret string `envconfig:"JWT_REFRESH_SECRET"`
	RTCTokenSecret   string `envconfig:"RTC_TOKEN_SECRET"`
	SMTPHost         string `envconfig:"SMTP_HOST"`
	SMTPPort         int    `envconfig:"SMTP_PORT"`
	SMTPUsername     string `envconfig:"SMTP_USERNAME"`
	SMTPPassword     string `envconfig:"SMTP_PASSWORD"`
	SMTPFrom         string `envconfig:"SMTP_FROM"`
	TwilioSID        string `envconfig:"TWILIO_ACCOUNT_SID"`
	TwilioToken      string `envconfig:"TWILIO_AUTH_TOKEN"`
	TwilioFrom       string `envconfig:"TWILIO_FROM_NUMBER"`
	TwilioVerifySID  string `envconfig:"TWILIO_VERIFY_SID"`
	RazorpayKey      string `envconfig:"RAZORPAY_KEY"`
	RazorpaySecret   string `envconfig:"RAZORPAY_SECRET"`
	LogLevel         string `envconfig:"LOG_LEVEL"`
}

const EnvPrefix = "TELEHEALTH"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.max_body_bytes", 10<<20)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "telehealth")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("jwt.issuer", "telehealth-api")
	v.SetDefault("jwt.expiry_hours", 24)
	v.SetDefault("jwt.refresh_expiry_hours", 24*7)

	v.SetDefault("rtc.token_expiry", 30*time.Minute)
	v.SetDefault("rtc.room_lifetime", 2*time.Hour)
	v.SetDefault("rtc.stun_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("rtc.signal_history_size", 100)

	v.SetDefault("smtp.port", 587)
	v.SetDefault("payments.default_provider", "razorpay")
	v.SetDefault("payments.currency", "USD")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"})

	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", 5*time.Second)
	v.SetDefault("outbox.retry_attempts", 3)
	v.SetDefault("outbox.retry_delay", 5*time.Second)
	v.SetDefault("outbox.retention", 7*24*time.Hour)

	v.SetDefault("workers.reminder_interval", time.Minute)
	v.SetDefault("workers.notification_interval", 30*time.Second)
	v.SetDefault("workers.room_sweep_interval", 5*time.Minute)
	v.SetDefault("workers.batch_size", 100)

	v.SetDefault("audit.retention_days", 365)
	v.SetDefault("audit.cleanup_interval", 24*time.Hour)
	v.SetDefault("audit.trail_output", []string{"stdout"})
	v.SetDefault("audit.skip_paths", []string{"/api/v1/health/live", "/api/v1/health/ready", "/metrics"})

	v.SetDefault("log.level", "info")
	v.SetDefault("event_tracking.enabled", true)
}

// LoadConfig reads config.yaml from the usual locations, falls back to defaults when no
// file exists, and overlays TELEHEALTH_* environment variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	cfg.apply(env)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) apply(env envOverrides) {
	setInt(&c.Server.Port, env.ServerPort)
	setStr(&c.Server.Mode, env.GinMode)
	setStr(&c.Database.Host, env.DBHost)
	setInt(&c.Database.Port, env.DBPort)
	setStr(&c.Database.User, env.DBUser)
	setStr(&c.Database.Password, env.DBPassword)
	setStr(&c.Database.Name, env.DBName)
	setStr(&c.Database.SSLMode, env.DBSSLMode)
	setStr(&c.Redis.URL, env.RedisURL)
	setStr(&c.JWT.Secret, env.JWTSecret)
	setStr(&c.JWT.RefreshSecret, env.JWTRefreshSecret)
	setStr(&c.RTC.TokenSecret, env.RTCTokenSecret)
	setStr(&c.SMTP.Host, env.SMTPHost)
	setInt(&c.SMTP.Port, env.SMTPPort)
	setStr(&c.SMTP.Username, env.SMTPUsername)
	setStr(&c.SMTP.Password, env.SMTPPassword)
	setStr(&c.SMTP.From, env.SMTPFrom)
	setStr(&c.Twilio.AccountSID, env.TwilioSID)
	setStr(&c.Twilio.AuthToken, env.TwilioToken)
	setStr(&c.Twilio.FromNumber, env.TwilioFrom)
	setStr(&c.Twilio.VerifySID, env.TwilioVerifySID)
	setStr(&c.Payments.RazorpayKey, env.RazorpayKey)
	setStr(&c.Payments.RazorpaySecret, env.RazorpaySecret)
	setStr(&c.Log.Level, env.LogLevel)
}

func setStr(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be positive")
	}
	return nil
}

// AuthConfig builds the token service configuration. Refresh and room secrets fall back to the
// access secret when unset.
func (c *Config) AuthConfig() auth.Config {
	refresh := c.JWT.RefreshSecret
	if refresh == "" {
		refresh = c.JWT.Secret
	}
	room := c.RTC.TokenSecret
	if room == "" {
		room = c.JWT.Secret
	}
	return auth.Config{
		Secret:        c.JWT.Secret,
		RefreshSecret: refresh,
		RoomSecret:    room,
		Issuer:        c.JWT.Issuer,
		AccessExpiry:  time.Duration(c.JWT.ExpiryHours) * time.Hour,
		RefreshExpiry: time.Duration(c.JWT.RefreshExpiryHours) * time.Hour,
		RoomExpiry:    c.RTC.TokenExpiry,
	}
}

func (c *RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}
