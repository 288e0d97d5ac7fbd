package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBITER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBITER_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "ARBITER_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "ARBITER_CHAIN_ID")
	setStr(&cfg.Chain.MarketContract, "ARBITER_CHAIN_MARKET_CONTRACT")
	setStr(&cfg.Chain.PrivateKey, "ARBITER_CHAIN_PRIVATE_KEY")
	setStr(&cfg.Chain.EncryptedKeyPath, "ARBITER_CHAIN_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Chain.KeyPassword, "ARBITER_CHAIN_KEY_PASSWORD")
	setDuration(&cfg.Chain.TxTimeout, "ARBITER_CHAIN_TX_TIMEOUT")
	setUint64(&cfg.Chain.GasLimit, "ARBITER_CHAIN_GAS_LIMIT")

	// ── Registry ──
	setStr(&cfg.Registry.MinDisputeStakeWei, "ARBITER_REGISTRY_MIN_DISPUTE_STAKE_WEI")
	setStr(&cfg.Registry.MinVoteStakeWei, "ARBITER_REGISTRY_MIN_VOTE_STAKE_WEI")
	setDuration(&cfg.Registry.VotingPeriod, "ARBITER_REGISTRY_VOTING_PERIOD")
	setInt64(&cfg.Registry.PlatformFeeBps, "ARBITER_REGISTRY_PLATFORM_FEE_BPS")
	setStr(&cfg.Registry.ResolutionAuthority, "ARBITER_REGISTRY_RESOLUTION_AUTHORITY")

	// ── Oracle ──
	setStr(&cfg.Oracle.BaseURL, "ARBITER_ORACLE_BASE_URL")
	setStr(&cfg.Oracle.APIKey, "ARBITER_ORACLE_API_KEY")
	setStr(&cfg.Oracle.Model, "ARBITER_ORACLE_MODEL")
	setDuration(&cfg.Oracle.Timeout, "ARBITER_ORACLE_TIMEOUT")
	setStr(&cfg.Oracle.PriceAPIURL, "ARBITER_ORACLE_PRICE_API_URL")
	setStr(&cfg.Oracle.PriceAPIKey, "ARBITER_ORACLE_PRICE_API_KEY")

	// ── Poller ──
	setBool(&cfg.Poller.Enabled, "ARBITER_POLLER_ENABLED")
	setDuration(&cfg.Poller.Interval, "ARBITER_POLLER_INTERVAL")
	setUint8(&cfg.Poller.AutoResolveThreshold, "ARBITER_POLLER_AUTO_RESOLVE_THRESHOLD")
	setDuration(&cfg.Poller.WriteDelay, "ARBITER_POLLER_WRITE_DELAY")
	setDuration(&cfg.Poller.CallTimeout, "ARBITER_POLLER_CALL_TIMEOUT")
	setInt(&cfg.Poller.MaxRetries, "ARBITER_POLLER_MAX_RETRIES")
	setInt(&cfg.Poller.ScanLimit, "ARBITER_POLLER_SCAN_LIMIT")
	setInt(&cfg.Poller.FailureAlertThreshold, "ARBITER_POLLER_FAILURE_ALERT_THRESHOLD")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ARBITER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARBITER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBITER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBITER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBITER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBITER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBITER_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBITER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBITER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBITER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ARBITER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBITER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBITER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBITER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBITER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBITER_REDIS_TLS_ENABLED")
	setInt(&cfg.Redis.CacheTTLMinutes, "ARBITER_REDIS_CACHE_TTL_MINUTES")
	setInt(&cfg.Redis.StreamMaxLen, "ARBITER_REDIS_STREAM_MAX_LEN")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "ARBITER_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Endpoint, "ARBITER_ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.Region, "ARBITER_ARCHIVE_REGION")
	setStr(&cfg.Archive.Bucket, "ARBITER_ARCHIVE_BUCKET")
	setStr(&cfg.Archive.AccessKey, "ARBITER_ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "ARBITER_ARCHIVE_SECRET_KEY")
	setBool(&cfg.Archive.UseSSL, "ARBITER_ARCHIVE_USE_SSL")
	setBool(&cfg.Archive.ForcePathStyle, "ARBITER_ARCHIVE_FORCE_PATH_STYLE")
	setInt(&cfg.Archive.RetentionDays, "ARBITER_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "ARBITER_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBITER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBITER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBITER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ARBITER_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBITER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBITER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBITER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBITER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBITER_MODE")
	setStr(&cfg.LogLevel, "ARBITER_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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

func setUint8(dst *uint8, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 8); err == nil {
			*dst = uint8(n)
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
