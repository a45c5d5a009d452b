package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().ChainID, cfg.ChainID)
}

func TestLoadParsesTOMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.toml")
	contents := `
chainId = "custom-chain"
p2pPort = 40404
anchorEndpoints = ["https://a.example", "https://b.example"]
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "custom-chain", cfg.ChainID)
	assert.Equal(t, uint16(40404), cfg.P2PPort)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AnchorEndpoints)
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.toml")
	require.NoError(t, os.WriteFile(path, []byte("notAField = 1\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestWitnessEnabledRequiresBothEnvVars(t *testing.T) {
	cfg := Config{}
	assert.False(t, cfg.WitnessEnabled())

	cfg.Account = "alice"
	assert.False(t, cfg.WitnessEnabled())

	cfg.ActiveSigningKey = "deadbeef"
	assert.True(t, cfg.WitnessEnabled())
}

func TestApplyEnvReadsProcessEnvironment(t *testing.T) {
	t.Setenv("ACCOUNT", "witness-1")
	t.Setenv("ACTIVE_SIGNING_KEY", "abcd1234")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "witness-1", cfg.Account)
	assert.True(t, cfg.WitnessEnabled())
}
