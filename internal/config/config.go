// Package config defines the top-level configuration for the prediction
// market service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/predictmarket/internal/archive"
	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// or YAML file and then optionally overridden by PREDICT_* environment
// variables.
type Config struct {
	Market   MarketConfig   `toml:"market" yaml:"market"`
	Storage  StorageConfig  `toml:"storage" yaml:"storage"`
	Postgres PostgresConfig `toml:"postgres" yaml:"postgres"`
	SQLite   SQLiteConfig   `toml:"sqlite" yaml:"sqlite"`
	Redis    RedisConfig    `toml:"redis" yaml:"redis"`
	S3       S3Config       `toml:"s3" yaml:"s3"`
	Oracle   OracleConfig   `toml:"oracle" yaml:"oracle"`
	Owner    OwnerConfig    `toml:"owner" yaml:"owner"`
	Server   ServerConfig   `toml:"server" yaml:"server"`
	Keeper   KeeperConfig   `toml:"keeper" yaml:"keeper"`
	Archive  ArchiveConfig  `toml:"archive" yaml:"archive"`
	Events   EventsConfig   `toml:"events" yaml:"events"`
	Flash    FlashConfig    `toml:"flash" yaml:"flash"`
	Notify   NotifyConfig   `toml:"notify" yaml:"notify"`
	LogLevel string         `toml:"log_level" yaml:"log_level"`
}

// MarketConfig holds the deployment parameters. They are written to the
// ledger on first start; later starts read the stored values and ignore these.
type MarketConfig struct {
	Address         string `toml:"address" yaml:"address"`
	Token           string `toml:"token" yaml:"token"`
	OracleAsset     string `toml:"oracle_asset" yaml:"oracle_asset"`
	IntervalSeconds uint64 `toml:"interval_seconds" yaml:"interval_seconds"`
	BufferSeconds   uint64 `toml:"buffer_seconds" yaml:"buffer_seconds"`
	MinBetAmount    string `toml:"min_bet_amount" yaml:"min_bet_amount"`
	TreasuryFeeBps  uint32 `toml:"treasury_fee_bps" yaml:"treasury_fee_bps"`
	FlashLoanFeeBps uint32 `toml:"flash_loan_fee_bps" yaml:"flash_loan_fee_bps"`
}

// Domain converts the file form into the ledger's deployment record.
func (m MarketConfig) Domain() (domain.MarketConfig, error) {
	minBet, err := domain.ParseAmount(m.MinBetAmount)
	if err != nil {
		return domain.MarketConfig{}, fmt.Errorf("market: min_bet_amount: %w", err)
	}
	return domain.MarketConfig{
		Address:         common.HexToAddress(m.Address),
		Token:           common.HexToAddress(m.Token),
		Oracle:          m.OracleAsset,
		IntervalSeconds: m.IntervalSeconds,
		BufferSeconds:   m.BufferSeconds,
		MinBetAmount:    minBet,
		TreasuryFeeBps:  m.TreasuryFeeBps,
		FlashLoanFeeBps: m.FlashLoanFeeBps,
	}, nil
}

// StorageConfig selects the ledger backend.
type StorageConfig struct {
	Backend string `toml:"backend" yaml:"backend"`
	// Lock serialises ledger updates across replicas with a Redis lock.
	Lock    bool     `toml:"lock" yaml:"lock"`
	LockTTL duration `toml:"lock_ttl" yaml:"lock_ttl"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn" yaml:"dsn"`
	Host          string `toml:"host" yaml:"host"`
	Port          int    `toml:"port" yaml:"port"`
	Database      string `toml:"database" yaml:"database"`
	User          string `toml:"user" yaml:"user"`
	Password      string `toml:"password" yaml:"password"`
	SSLMode       string `toml:"sslmode" yaml:"sslmode"`
	PoolMaxConns  int    `toml:"pool_max_conns" yaml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns" yaml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations" yaml:"run_migrations"`
}

// SQLiteConfig holds the database file location.
type SQLiteConfig struct {
	Path string `toml:"path" yaml:"path"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr" yaml:"addr"`
	Password   string `toml:"password" yaml:"password"`
	DB         int    `toml:"db" yaml:"db"`
	PoolSize   int    `toml:"pool_size" yaml:"pool_size"`
	MaxRetries int    `toml:"max_retries" yaml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled" yaml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix" yaml:"key_prefix"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint" yaml:"endpoint"`
	Region         string `toml:"region" yaml:"region"`
	Bucket         string `toml:"bucket" yaml:"bucket"`
	AccessKey      string `toml:"access_key" yaml:"access_key"`
	SecretKey      string `toml:"secret_key" yaml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl" yaml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style" yaml:"force_path_style"`
}

// OracleConfig configures the price source.
type OracleConfig struct {
	// Backend is "http" or "static".
	Backend      string   `toml:"backend" yaml:"backend"`
	BaseURL      string   `toml:"base_url" yaml:"base_url"`
	APIKey       string   `toml:"api_key" yaml:"api_key"`
	RatePerSec   float64  `toml:"rate_per_sec" yaml:"rate_per_sec"`
	Burst        int      `toml:"burst" yaml:"burst"`
	Timeout      duration `toml:"timeout" yaml:"timeout"`
	RetryBackoff duration `toml:"retry_backoff" yaml:"retry_backoff"`
	// CacheMaxAge enables the Redis price cache when positive.
	CacheMaxAge duration `toml:"cache_max_age" yaml:"cache_max_age"`
	// StaticPrice seeds the static backend.
	StaticPrice string `toml:"static_price" yaml:"static_price"`
}

// OwnerConfig holds the owner key used by the keeper.
type OwnerConfig struct {
	PrivateKey       string `toml:"private_key" yaml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path" yaml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password" yaml:"key_password"`
}

// Configured reports whether any key source is set.
func (o OwnerConfig) Configured() bool {
	return o.PrivateKey != "" || o.EncryptedKeyPath != ""
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Enabled       bool     `toml:"enabled" yaml:"enabled"`
	Port          int      `toml:"port" yaml:"port"`
	CORSOrigins   []string `toml:"cors_origins" yaml:"cors_origins"`
	APIKey        string   `toml:"api_key" yaml:"api_key"`
	SignatureSkew duration `toml:"signature_skew" yaml:"signature_skew"`
	// RateLimit requests per RateWindow per client; 0 disables.
	RateLimit  int      `toml:"rate_limit" yaml:"rate_limit"`
	RateWindow duration `toml:"rate_window" yaml:"rate_window"`
}

// KeeperConfig controls the round keeper.
type KeeperConfig struct {
	Enabled   bool `toml:"enabled" yaml:"enabled"`
	Autostart bool `toml:"autostart" yaml:"autostart"`
	// Period overrides interval plus slack.
	Period  duration `toml:"period" yaml:"period"`
	Lock    bool     `toml:"lock" yaml:"lock"`
	LockKey string   `toml:"lock_key" yaml:"lock_key"`
}

// ArchiveConfig controls the round export to object storage.
type ArchiveConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Cron    string `toml:"cron" yaml:"cron"`
	Batch   int    `toml:"batch" yaml:"batch"`
}

// EventsConfig controls event fan-out.
type EventsConfig struct {
	Buffer int `toml:"buffer" yaml:"buffer"`
	// Bus republishes events on Redis pub/sub and the events stream.
	Bus bool `toml:"bus" yaml:"bus"`
}

// FlashConfig lists in-process flash loan receivers.
type FlashConfig struct {
	Repayers []string `toml:"repayers" yaml:"repayers"`
}

// NotifyConfig holds operator notification settings.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token" yaml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id" yaml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url" yaml:"discord_webhook_url"`
	Events            []string `toml:"events" yaml:"events"`
}

// duration is a wrapper around time.Duration that decodes from strings such
// as "5m" or "30s" in both TOML and YAML.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with sensible defaults for local runs.
func Defaults() Config {
	return Config{
		Market: MarketConfig{
			Address:         "0x00000000000000000000000000000000000000a1",
			Token:           "0x00000000000000000000000000000000000000c0",
			OracleAsset:     "BNB/USD",
			IntervalSeconds: 300,
			BufferSeconds:   30,
			MinBetAmount:    "10000000",
			TreasuryFeeBps:  300,
			FlashLoanFeeBps: 50,
		},
		Storage: StorageConfig{
			Backend: "memory",
			LockTTL: duration{10 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "predict",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		SQLite: SQLiteConfig{
			Path: "predict.db",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			KeyPrefix:  "predict:",
		},
		S3: S3Config{
			Endpoint:       "localhost:9000",
			Region:         "us-east-1",
			Bucket:         "predict-archive",
			ForcePathStyle: true,
		},
		Oracle: OracleConfig{
			Backend:      "http",
			RatePerSec:   5,
			Burst:        5,
			Timeout:      duration{5 * time.Second},
			RetryBackoff: duration{200 * time.Millisecond},
		},
		Server: ServerConfig{
			Enabled:       true,
			Port:          8000,
			CORSOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
			SignatureSkew: duration{5 * time.Minute},
			RateWindow:    duration{time.Minute},
		},
		Keeper: KeeperConfig{
			Enabled: true,
			LockKey: "keeper:execute",
		},
		Archive: ArchiveConfig{
			Cron:  "0 * * * *",
			Batch: 500,
		},
		Events: EventsConfig{
			Buffer: 256,
		},
		Notify: NotifyConfig{
			Events: []string{"round_ended", "rewards_calculated", "flash_loan"},
		},
		LogLevel: "info",
	}
}

var validBackends = map[string]bool{
	"memory":   true,
	"sqlite":   true,
	"postgres": true,
	"redis":    true,
}

var validOracles = map[string]bool{
	"http":   true,
	"static": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// NeedsRedis reports whether any enabled component talks to Redis. The API
// rate limiter uses Redis when it is connected anyway and a local limiter
// otherwise.
func (c *Config) NeedsRedis() bool {
	return c.Storage.Backend == "redis" ||
		c.Storage.Lock ||
		c.Keeper.Lock ||
		c.Events.Bus ||
		c.Oracle.CacheMaxAge.Duration > 0
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Market
	if !common.IsHexAddress(c.Market.Address) {
		errs = append(errs, fmt.Sprintf("market: address %q is not a hex address", c.Market.Address))
	}
	if !common.IsHexAddress(c.Market.Token) {
		errs = append(errs, fmt.Sprintf("market: token %q is not a hex address", c.Market.Token))
	}
	if c.Market.OracleAsset == "" {
		errs = append(errs, "market: oracle_asset must not be empty")
	}
	if c.Market.IntervalSeconds == 0 {
		errs = append(errs, "market: interval_seconds must be > 0")
	}
	if c.Market.BufferSeconds >= c.Market.IntervalSeconds {
		errs = append(errs, "market: buffer_seconds must be less than interval_seconds")
	}
	if amt, err := domain.ParseAmount(c.Market.MinBetAmount); err != nil || amt.IsZero() {
		errs = append(errs, fmt.Sprintf("market: min_bet_amount %q must be a positive integer", c.Market.MinBetAmount))
	}
	if c.Market.TreasuryFeeBps > domain.MaxFeeBps {
		errs = append(errs, fmt.Sprintf("market: treasury_fee_bps must be <= %d", domain.MaxFeeBps))
	}
	if c.Market.FlashLoanFeeBps > domain.MaxFeeBps {
		errs = append(errs, fmt.Sprintf("market: flash_loan_fee_bps must be <= %d", domain.MaxFeeBps))
	}

	// Storage
	backend := strings.ToLower(c.Storage.Backend)
	if !validBackends[backend] {
		errs = append(errs, fmt.Sprintf("storage: unknown backend %q (valid: memory, sqlite, postgres, redis)", c.Storage.Backend))
	}
	if c.Storage.Lock && c.Storage.LockTTL.Duration <= 0 {
		errs = append(errs, "storage: lock_ttl must be > 0 when lock is set")
	}
	switch backend {
	case "sqlite":
		if c.SQLite.Path == "" {
			errs = append(errs, "sqlite: path must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.NeedsRedis() {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Oracle
	if !validOracles[strings.ToLower(c.Oracle.Backend)] {
		errs = append(errs, fmt.Sprintf("oracle: unknown backend %q (valid: http, static)", c.Oracle.Backend))
	}
	if strings.EqualFold(c.Oracle.Backend, "http") {
		if c.Oracle.BaseURL == "" {
			errs = append(errs, "oracle: base_url must not be empty")
		}
		if c.Oracle.RatePerSec <= 0 {
			errs = append(errs, "oracle: rate_per_sec must be > 0")
		}
	}

	// Owner
	if c.Owner.EncryptedKeyPath != "" && c.Owner.KeyPassword == "" {
		errs = append(errs, "owner: key_password is required when encrypted_key_path is set")
	}
	if c.Keeper.Enabled && !c.Owner.Configured() {
		errs = append(errs, "keeper: owner.private_key or owner.encrypted_key_path must be set")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	// Archive
	if c.Archive.Enabled {
		if err := archive.ValidateCron(c.Archive.Cron); err != nil {
			errs = append(errs, fmt.Sprintf("archive: %v", err))
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
	}

	// Flash
	for _, a := range c.Flash.Repayers {
		if !common.IsHexAddress(a) {
			errs = append(errs, fmt.Sprintf("flash: repayer %q is not a hex address", a))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
