package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
[electrum]
endpoint = "umbrel.local:50002"
certificate_validation = false

[group]
max_time = 3600
max_size = 5

[dust]
limit = 2000

[fee]
range = 1.0

[server]
ip = "0.0.0.0"
port = "7878"

[network]
name = "signet"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "umbrel.local:50002", cfg.Electrum.Endpoint)
	assert.False(t, cfg.Electrum.CertificateValidation)
	assert.EqualValues(t, 3600, cfg.Group.MaxTime)
	assert.Equal(t, 5, cfg.Group.MaxSize)
	assert.EqualValues(t, 2000, cfg.Dust.Limit)
	assert.Equal(t, 1.0, cfg.Fee.Range)
	assert.Equal(t, "0.0.0.0", cfg.Server.IP)
	assert.Equal(t, "7878", cfg.Server.Port)
	assert.Equal(t, "signet", cfg.Network.Name)
}

func TestLoadAppliesDefaultsForMissingSections(t *testing.T) {
	path := writeConfig(t, `
[electrum]
endpoint = "umbrel.local:50002"
certificate_validation = true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.EqualValues(t, 43200, cfg.Group.MaxTime)
	assert.Equal(t, 20, cfg.Group.MaxSize)
	assert.EqualValues(t, 1000, cfg.Dust.Limit)
	assert.Equal(t, 2.0, cfg.Fee.Range)
	assert.Equal(t, "testnet", cfg.Network.Name)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantIn  string
	}{
		{
			name:    "missing endpoint",
			content: "[network]\nname = \"mainnet\"\n",
			wantIn:  "electrum.endpoint",
		},
		{
			name:    "unknown network",
			content: "[electrum]\nendpoint = \"x:1\"\n[network]\nname = \"regtest\"\n",
			wantIn:  "network.name",
		},
		{
			name:    "non-positive bucket width",
			content: "[electrum]\nendpoint = \"x:1\"\n[fee]\nrange = 0.0\n",
			wantIn:  "fee.range",
		},
		{
			name:    "non-positive group size",
			content: "[electrum]\nendpoint = \"x:1\"\n[group]\nmax_size = 0\nmax_time = 60\n",
			wantIn:  "group.max_size",
		},
		{
			name:    "malformed toml",
			content: "[electrum\nendpoint=",
			wantIn:  "failed to parse",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantIn)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
