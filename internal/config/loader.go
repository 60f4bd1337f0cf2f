package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads a TOML or YAML configuration file at path (chosen by extension),
// merges it on top of the built-in defaults, applies PREDICT_* environment
// variable overrides, and returns the final Config. The returned Config has
// NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("config: decoding %s: %w", path, err)
		}
		return nil
	default:
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return fmt.Errorf("config: decoding %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("config: unknown keys in %s: %v", path, undecoded)
		}
		return nil
	}
}

// applyEnvOverrides reads well-known PREDICT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the config file.
func applyEnvOverrides(cfg *Config) {
	// ── Market ──
	setStr(&cfg.Market.Address, "PREDICT_MARKET_ADDRESS")
	setStr(&cfg.Market.Token, "PREDICT_MARKET_TOKEN")
	setStr(&cfg.Market.OracleAsset, "PREDICT_MARKET_ORACLE_ASSET")
	setUint64(&cfg.Market.IntervalSeconds, "PREDICT_MARKET_INTERVAL_SECONDS")
	setUint64(&cfg.Market.BufferSeconds, "PREDICT_MARKET_BUFFER_SECONDS")
	setStr(&cfg.Market.MinBetAmount, "PREDICT_MARKET_MIN_BET_AMOUNT")
	setUint32(&cfg.Market.TreasuryFeeBps, "PREDICT_MARKET_TREASURY_FEE_BPS")
	setUint32(&cfg.Market.FlashLoanFeeBps, "PREDICT_MARKET_FLASH_LOAN_FEE_BPS")

	// ── Storage ──
	setStr(&cfg.Storage.Backend, "PREDICT_STORAGE_BACKEND")
	setBool(&cfg.Storage.Lock, "PREDICT_STORAGE_LOCK")
	setDuration(&cfg.Storage.LockTTL, "PREDICT_STORAGE_LOCK_TTL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PREDICT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "PREDICT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PREDICT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PREDICT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PREDICT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PREDICT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PREDICT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PREDICT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PREDICT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PREDICT_POSTGRES_RUN_MIGRATIONS")

	// ── SQLite ──
	setStr(&cfg.SQLite.Path, "PREDICT_SQLITE_PATH")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PREDICT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PREDICT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PREDICT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PREDICT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PREDICT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PREDICT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "PREDICT_REDIS_KEY_PREFIX")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PREDICT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PREDICT_S3_REGION")
	setStr(&cfg.S3.Bucket, "PREDICT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PREDICT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PREDICT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PREDICT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PREDICT_S3_FORCE_PATH_STYLE")

	// ── Oracle ──
	setStr(&cfg.Oracle.Backend, "PREDICT_ORACLE_BACKEND")
	setStr(&cfg.Oracle.BaseURL, "PREDICT_ORACLE_BASE_URL")
	setStr(&cfg.Oracle.APIKey, "PREDICT_ORACLE_API_KEY")
	setFloat64(&cfg.Oracle.RatePerSec, "PREDICT_ORACLE_RATE_PER_SEC")
	setInt(&cfg.Oracle.Burst, "PREDICT_ORACLE_BURST")
	setDuration(&cfg.Oracle.Timeout, "PREDICT_ORACLE_TIMEOUT")
	setDuration(&cfg.Oracle.RetryBackoff, "PREDICT_ORACLE_RETRY_BACKOFF")
	setDuration(&cfg.Oracle.CacheMaxAge, "PREDICT_ORACLE_CACHE_MAX_AGE")
	setStr(&cfg.Oracle.StaticPrice, "PREDICT_ORACLE_STATIC_PRICE")

	// ── Owner ──
	setStr(&cfg.Owner.PrivateKey, "PREDICT_OWNER_PRIVATE_KEY")
	setStr(&cfg.Owner.EncryptedKeyPath, "PREDICT_OWNER_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Owner.KeyPassword, "PREDICT_OWNER_KEY_PASSWORD")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PREDICT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PREDICT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PREDICT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PREDICT_SERVER_API_KEY")
	setDuration(&cfg.Server.SignatureSkew, "PREDICT_SERVER_SIGNATURE_SKEW")
	setInt(&cfg.Server.RateLimit, "PREDICT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "PREDICT_SERVER_RATE_WINDOW")

	// ── Keeper ──
	setBool(&cfg.Keeper.Enabled, "PREDICT_KEEPER_ENABLED")
	setBool(&cfg.Keeper.Autostart, "PREDICT_KEEPER_AUTOSTART")
	setDuration(&cfg.Keeper.Period, "PREDICT_KEEPER_PERIOD")
	setBool(&cfg.Keeper.Lock, "PREDICT_KEEPER_LOCK")
	setStr(&cfg.Keeper.LockKey, "PREDICT_KEEPER_LOCK_KEY")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "PREDICT_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Cron, "PREDICT_ARCHIVE_CRON")
	setInt(&cfg.Archive.Batch, "PREDICT_ARCHIVE_BATCH")

	// ── Events ──
	setInt(&cfg.Events.Buffer, "PREDICT_EVENTS_BUFFER")
	setBool(&cfg.Events.Bus, "PREDICT_EVENTS_BUS")

	// ── Flash ──
	setStringSlice(&cfg.Flash.Repayers, "PREDICT_FLASH_REPAYERS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PREDICT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PREDICT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PREDICT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PREDICT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "PREDICT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint32(dst *uint32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			*dst = uint32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
