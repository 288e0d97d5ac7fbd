package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "poll"

[chain]
rpc_url = "https://rpc.example.org"
chain_id = 56
market_contract = "0x1111111111111111111111111111111111111111"

[registry]
resolution_authority = "0x2222222222222222222222222222222222222222"
voting_period = "48h"

[oracle]
base_url = "https://oracle.example.org"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "poll", cfg.Mode)
	require.Equal(t, int64(56), cfg.Chain.ChainID)
	require.Equal(t, 48*time.Hour, cfg.Registry.VotingPeriod.Duration)

	// Untouched fields keep their defaults.
	require.Equal(t, int64(500), cfg.Registry.PlatformFeeBps)
	require.Equal(t, uint8(70), cfg.Poller.AutoResolveThreshold)
	require.Equal(t, 60*time.Second, cfg.Poller.Interval.Duration)

	require.NoError(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
[chain]
rpc_url = "https://rpc.example.org"
chain_id = 97
market_contract = "0x1111111111111111111111111111111111111111"

[registry]
resolution_authority = "0x2222222222222222222222222222222222222222"

[oracle]
base_url = "https://oracle.example.org"
`)

	t.Setenv("ARBITER_CHAIN_PRIVATE_KEY", "0xdeadbeef")
	t.Setenv("ARBITER_REGISTRY_PLATFORM_FEE_BPS", "250")
	t.Setenv("ARBITER_POLLER_AUTO_RESOLVE_THRESHOLD", "85")
	t.Setenv("ARBITER_POLLER_INTERVAL", "30s")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "0xdeadbeef", cfg.Chain.PrivateKey)
	require.Equal(t, int64(250), cfg.Registry.PlatformFeeBps)
	require.Equal(t, uint8(85), cfg.Poller.AutoResolveThreshold)
	require.Equal(t, 30*time.Second, cfg.Poller.Interval.Duration)
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	base := func() Config {
		cfg := Defaults()
		cfg.Chain.MarketContract = "0x1111111111111111111111111111111111111111"
		cfg.Registry.ResolutionAuthority = "0x2222222222222222222222222222222222222222"
		cfg.Oracle.BaseURL = "https://oracle.example.org"
		return cfg
	}

	cfg := base()
	require.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Mode = "trade"
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Registry.MinDisputeStakeWei = "0.01"
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Registry.PlatformFeeBps = 10_000
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Poller.AutoResolveThreshold = 101
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Chain.MarketContract = ""
	require.Error(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Chain.PrivateKey = "0xsecret"
	cfg.Oracle.APIKey = "sk-123"
	cfg.Postgres.Password = "hunter2"

	red := RedactedConfig(&cfg)
	require.Equal(t, "***", red.Chain.PrivateKey)
	require.Equal(t, "***", red.Oracle.APIKey)
	require.Equal(t, "***", red.Postgres.Password)

	// Original untouched.
	require.Equal(t, "0xsecret", cfg.Chain.PrivateKey)
}
