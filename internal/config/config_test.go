package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const validConfig = `
exchange:
  mode: futures
  network: testnet
  api_key: key
  secret_key: secret
trading:
  watch_symbols: [BTCUSDT]
  balance_pct: 10
`

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, ModeFutures, cfg.Exchange.Mode)
	assert.Equal(t, NetworkTestnet, cfg.Exchange.Network)
	assert.Equal(t, []string{"BTCUSDT"}, cfg.Trading.WatchSymbols)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
exchange:
  api_key: key
  secret_key: secret
`))
	require.NoError(t, err)

	assert.Equal(t, ModeFutures, cfg.Exchange.Mode)
	assert.Equal(t, NetworkProduction, cfg.Exchange.Network)
	assert.Equal(t, 2, cfg.Timing.WebsocketReconnectDelay)
	assert.Equal(t, 30, cfg.Timing.WebsocketPingInterval)
	assert.Equal(t, 10, cfg.Timing.RestTimeout)
	assert.Equal(t, []string{"bookTicker", "aggTrade"}, cfg.Trading.Channels)
	assert.Equal(t, "INFO", cfg.System.LogLevel)
}

func TestLoadConfigEnvExpansion(t *testing.T) {
	t.Setenv("TEST_CONN_KEY", "expanded-key")
	t.Setenv("TEST_CONN_SECRET", "expanded-secret")

	cfg, err := LoadConfig(writeConfig(t, `
exchange:
  api_key: "${TEST_CONN_KEY}"
  secret_key: "${TEST_CONN_SECRET}"
`))
	require.NoError(t, err)

	assert.Equal(t, "expanded-key", cfg.Exchange.APIKey)
	assert.Equal(t, Secret("expanded-secret"), cfg.Exchange.SecretKey)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		config string
		field  string
	}{
		{"bad mode", `
exchange:
  mode: margin
  api_key: key
  secret_key: secret
`, "exchange.mode"},
		{"bad network", `
exchange:
  network: staging
  api_key: key
  secret_key: secret
`, "exchange.network"},
		{"missing credentials", `
exchange:
  mode: futures
`, "exchange.api_key"},
		{"balance pct out of range", `
exchange:
  api_key: key
  secret_key: secret
trading:
  balance_pct: 150
`, "trading.balance_pct"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.config))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("super-secret")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, `"[REDACTED]"`, fmt.Sprintf("%#v", s))
	assert.NotContains(t, fmt.Sprintf("%s %v %#v", s, s, s), "super-secret")

	json, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"[REDACTED]"`, string(json))

	// The raw value stays reachable for signing
	assert.Equal(t, "super-secret", string(s))
}

func TestSecretEmpty(t *testing.T) {
	assert.Equal(t, "", Secret("").String())
}
