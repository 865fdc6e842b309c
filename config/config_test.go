package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redbank.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(defaultCloseFactorBps), cfg.CloseFactorBps)
	require.Equal(t, defaultRewardDenom, cfg.RewardDenom)
	require.Equal(t, uint64(defaultOracleMaxAge), cfg.OracleMaxAgeSeconds)
	require.FileExists(t, path)

	// Loading the generated file round-trips.
	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, again)
}

func TestLoadParsesAndValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redbank.toml")
	body := `AdminAddress = "0x0000000000000000000000000000000000000001"
CloseFactorBps = 2500
RewardDenom = "ureward"
OracleMaxAgeSeconds = 60
DataDir = "/tmp/rb"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(2500), cfg.CloseFactorBps)
	require.Equal(t, "ureward", cfg.RewardDenom)

	admin, err := cfg.Admin()
	require.NoError(t, err)
	require.Equal(t, byte(0x01), admin[19])
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := &Config{AdminAddress: "not-hex", CloseFactorBps: 100}
	require.Error(t, cfg.Validate())

	cfg = &Config{CloseFactorBps: 10_001}
	require.Error(t, cfg.Validate())
}
