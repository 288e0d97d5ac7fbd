// Package config defines the top-level configuration for arbiterd and
// provides validation helpers.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ARBITER_* environment
// variables.
type Config struct {
	Chain    ChainConfig    `toml:"chain"`
	Registry RegistryConfig `toml:"registry"`
	Oracle   OracleConfig   `toml:"oracle"`
	Poller   PollerConfig   `toml:"poller"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ChainConfig holds RPC endpoint, contract, and wallet parameters for the
// market chain.
type ChainConfig struct {
	RPCURL           string   `toml:"rpc_url"`
	ChainID          int64    `toml:"chain_id"`
	MarketContract   string   `toml:"market_contract"`
	PrivateKey       string   `toml:"private_key"`
	EncryptedKeyPath string   `toml:"encrypted_key_path"`
	KeyPassword      string   `toml:"key_password"`
	TxTimeout        duration `toml:"tx_timeout"`
	GasLimit         uint64   `toml:"gas_limit"`
}

// RegistryConfig holds the dispute registry's economic parameters. Stake
// minimums are decimal wei strings so full 256-bit precision survives the
// TOML boundary.
type RegistryConfig struct {
	MinDisputeStakeWei  string   `toml:"min_dispute_stake_wei"`
	MinVoteStakeWei     string   `toml:"min_vote_stake_wei"`
	VotingPeriod        duration `toml:"voting_period"`
	PlatformFeeBps      int64    `toml:"platform_fee_bps"`
	ResolutionAuthority string   `toml:"resolution_authority"`
}

// MinDisputeStake parses the configured minimum dispute stake.
func (r RegistryConfig) MinDisputeStake() (*big.Int, bool) {
	return new(big.Int).SetString(strings.TrimSpace(r.MinDisputeStakeWei), 10)
}

// MinVoteStake parses the configured minimum vote stake.
func (r RegistryConfig) MinVoteStake() (*big.Int, bool) {
	return new(big.Int).SetString(strings.TrimSpace(r.MinVoteStakeWei), 10)
}

// OracleConfig holds the LLM reasoner and price API parameters.
type OracleConfig struct {
	BaseURL     string   `toml:"base_url"`
	APIKey      string   `toml:"api_key"`
	Model       string   `toml:"model"`
	Timeout     duration `toml:"timeout"`
	PriceAPIURL string   `toml:"price_api_url"`
	PriceAPIKey string   `toml:"price_api_key"`
}

// PollerConfig holds resolution poller parameters.
type PollerConfig struct {
	Enabled bool `toml:"enabled"`
	// Interval between scan cycles.
	Interval duration `toml:"interval"`
	// AutoResolveThreshold is the minimum oracle confidence (0-100) required
	// before a resolution is submitted on-chain.
	AutoResolveThreshold uint8 `toml:"auto_resolve_threshold"`
	// WriteDelay is the pause inserted between consecutive chain writes.
	WriteDelay duration `toml:"write_delay"`
	// CallTimeout bounds a single oracle or chain call.
	CallTimeout duration `toml:"call_timeout"`
	// MaxRetries bounds attempts per market per cycle before it is skipped
	// until the next tick.
	MaxRetries int `toml:"max_retries"`
	// ScanLimit caps markets examined per cycle.
	ScanLimit int `toml:"scan_limit"`
	// FailureAlertThreshold is the number of consecutive failed cycles that
	// triggers an operator alert.
	FailureAlertThreshold int `toml:"failure_alert_threshold"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr            string `toml:"addr"`
	Password        string `toml:"password"`
	DB              int    `toml:"db"`
	PoolSize        int    `toml:"pool_size"`
	MaxRetries      int    `toml:"max_retries"`
	TLSEnabled      bool   `toml:"tls_enabled"`
	CacheTTLMinutes int    `toml:"cache_ttl_minutes"`
	StreamMaxLen    int    `toml:"stream_max_len"`
}

// ArchiveConfig holds S3 cold-storage parameters for oracle evidence and
// settled dispute snapshots.
type ArchiveConfig struct {
	Enabled        bool     `toml:"enabled"`
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	UseSSL         bool     `toml:"use_ssl"`
	ForcePathStyle bool     `toml:"force_path_style"`
	RetentionDays  int      `toml:"retention_days"`
	Interval       duration `toml:"interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:    "https://bsc-testnet-rpc.publicnode.com",
			ChainID:   97,
			TxTimeout: duration{2 * time.Minute},
			GasLimit:  500_000,
		},
		Registry: RegistryConfig{
			MinDisputeStakeWei: "10000000000000000", // 0.01 BNB
			MinVoteStakeWei:    "5000000000000000",  // 0.005 BNB
			VotingPeriod:       duration{72 * time.Hour},
			PlatformFeeBps:     500,
		},
		Oracle: OracleConfig{
			Model:       "sonar-pro",
			Timeout:     duration{45 * time.Second},
			PriceAPIURL: "https://api.coingecko.com/api/v3",
		},
		Poller: PollerConfig{
			Enabled:               true,
			Interval:              duration{60 * time.Second},
			AutoResolveThreshold:  70,
			WriteDelay:            duration{3 * time.Second},
			CallTimeout:           duration{90 * time.Second},
			MaxRetries:            2,
			ScanLimit:             200,
			FailureAlertThreshold: 3,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "arbiterd",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:            "localhost:6379",
			PoolSize:        20,
			MaxRetries:      3,
			CacheTTLMinutes: 10,
			StreamMaxLen:    10_000,
		},
		Archive: ArchiveConfig{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arbiterd-archive",
			ForcePathStyle: true,
			RetentionDays:  30,
			Interval:       duration{6 * time.Hour},
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// Validate checks the configuration for required fields and consistent
// values. It is intended to be called once after Load.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "serve", "poll", "full":
	default:
		return fmt.Errorf("config: unsupported mode %q (want serve, poll, or full)", c.Mode)
	}

	if c.Chain.RPCURL == "" {
		return fmt.Errorf("config: chain.rpc_url is required")
	}
	if c.Chain.ChainID <= 0 {
		return fmt.Errorf("config: chain.chain_id must be positive")
	}
	if c.Chain.MarketContract == "" {
		return fmt.Errorf("config: chain.market_contract is required")
	}

	if _, ok := c.Registry.MinDisputeStake(); !ok {
		return fmt.Errorf("config: registry.min_dispute_stake_wei %q is not a decimal integer", c.Registry.MinDisputeStakeWei)
	}
	if _, ok := c.Registry.MinVoteStake(); !ok {
		return fmt.Errorf("config: registry.min_vote_stake_wei %q is not a decimal integer", c.Registry.MinVoteStakeWei)
	}
	if c.Registry.VotingPeriod.Duration <= 0 {
		return fmt.Errorf("config: registry.voting_period must be positive")
	}
	if c.Registry.PlatformFeeBps < 0 || c.Registry.PlatformFeeBps >= 10_000 {
		return fmt.Errorf("config: registry.platform_fee_bps must be in [0, 10000)")
	}
	if c.Registry.ResolutionAuthority == "" {
		return fmt.Errorf("config: registry.resolution_authority is required")
	}

	if c.Poller.Enabled {
		if c.Poller.Interval.Duration <= 0 {
			return fmt.Errorf("config: poller.interval must be positive")
		}
		if c.Poller.AutoResolveThreshold > 100 {
			return fmt.Errorf("config: poller.auto_resolve_threshold must be 0-100")
		}
		if c.Oracle.BaseURL == "" {
			return fmt.Errorf("config: oracle.base_url is required when the poller is enabled")
		}
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}

	return nil
}
