package config

import (
	"bytes"
	_ "embed"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http"`
	Log        LogConfig        `mapstructure:"log"`
	MySQL      DatabaseConfig   `mapstructure:"mysql"`
	ClickHouse DatabaseConfig   `mapstructure:"clickhouse"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	SMS        SMSConfig        `mapstructure:"sms"`
	Providers  []ProviderConfig `mapstructure:"providers"`
	Tracker    TrackerConfig    `mapstructure:"tracker"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	GroupID        string   `mapstructure:"group_id"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
}

// RateLimitConfig holds the default fixed-window ceilings per API credential.
// Credentials may carry their own overrides.
type RateLimitConfig struct {
	PerMinute int `mapstructure:"per_minute"`
	PerHour   int `mapstructure:"per_hour"`
	PerDay    int `mapstructure:"per_day"`
}

type SMSConfig struct {
	// MaxSegments rejects oversized messages before any network call.
	MaxSegments int `mapstructure:"max_segments"`
	// DefaultSender is the reserved identifier provisioned for every tenant.
	DefaultSender string `mapstructure:"default_sender"`
	MaxRecipients int    `mapstructure:"max_recipients"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold" yaml:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"    yaml:"open_for_ms"`
}

type ProviderConfig struct {
	Name        string        `mapstructure:"name"`
	Enabled     bool          `mapstructure:"enabled"`
	SendURL     string        `mapstructure:"send_url"`
	DeliveryURL string        `mapstructure:"delivery_url"`
	APIKey      string        `mapstructure:"api_key"`
	SecretKey   string        `mapstructure:"secret_key"`
	CountryCode string        `mapstructure:"country_code"`
	TimeoutMs   int           `mapstructure:"timeout_ms"`
	Breaker     BreakerConfig `mapstructure:"breaker"`
}

type TrackerConfig struct {
	Topic        string        `mapstructure:"topic"`
	Workers      int           `mapstructure:"workers"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	BackoffBase  time.Duration `mapstructure:"backoff_base"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (SMSGW_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (SMSGW_*)
	v.SetEnvPrefix("SMSGW")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
