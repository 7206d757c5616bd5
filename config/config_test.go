package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_FileWithDefaults(t *testing.T) {
	path := writeConfig(t, `
nats:
  url: nats://localhost:4222
backend:
  url: http://ledger:8080
live_table:
  enabled: true
  admin_key_hex: "00"
  betting_duration: 20s
  max_bet: 500
  bot_count: 4
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, 20*time.Second, cfg.LiveTable.BettingDuration)
	assert.Equal(t, uint64(500), cfg.LiveTable.MaxBet)
	assert.Equal(t, 4, cfg.LiveTable.BotCount)

	assert.Equal(t, DefaultLockDuration, cfg.LiveTable.LockDuration)
	assert.Equal(t, uint64(DefaultMinBet), cfg.LiveTable.MinBet)
	assert.Equal(t, DefaultSettleMaxAttempts, cfg.LiveTable.SettleMaxAttempts)
	assert.Equal(t, DefaultBotParticipation, cfg.LiveTable.BotParticipation)
	assert.Equal(t, DefaultEventSubject, cfg.NATS.EventSubject)
	assert.Equal(t, DefaultCommandSubject, cfg.NATS.CommandSubject)
	assert.Equal(t, DefaultBackendTimeout, cfg.Backend.Timeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
nats:
  url: nats://file:4222
live_table:
  min_bet: 5
`)
	t.Setenv("NATS_URL", "nats://env:4222")
	t.Setenv("LIVE_TABLE_MIN_BET", "25")
	t.Setenv("LIVE_TABLE_BETTING_MS", "1500")
	t.Setenv("LIVE_TABLE_BOT_PARTICIPATION", "0.25")
	t.Setenv("LIVE_TABLE_ENABLED", "true")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "nats://env:4222", cfg.NATS.URL)
	assert.Equal(t, uint64(25), cfg.LiveTable.MinBet)
	assert.Equal(t, 1500*time.Millisecond, cfg.LiveTable.BettingDuration)
	assert.Equal(t, 0.25, cfg.LiveTable.BotParticipation)
	assert.True(t, cfg.LiveTable.Enabled)
}

func TestLoadConfig_EnvOnly(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")

	t.Run("requires nats url", func(t *testing.T) {
		t.Setenv("NATS_URL", "")
		_, err := LoadConfig(missing)
		assert.ErrorIs(t, err, ErrMissingNATSURL)
	})

	t.Run("reads environment", func(t *testing.T) {
		t.Setenv("NATS_URL", "nats://env:4222")
		t.Setenv("BACKEND_URL", "http://ledger")
		t.Setenv("LIVE_TABLE_NONCE_FILE", "/tmp/n.json")
		cfg, err := LoadConfig(missing)
		require.NoError(t, err)
		assert.Equal(t, "http://ledger", cfg.Backend.URL)
		assert.Equal(t, "/tmp/n.json", cfg.LiveTable.NonceFile)
	})

	t.Run("rejects malformed numbers", func(t *testing.T) {
		t.Setenv("NATS_URL", "nats://env:4222")
		t.Setenv("LIVE_TABLE_TICK_MS", "soon")
		t.Setenv("LIVE_TABLE_BOT_COUNT", "many")
		_, err := LoadConfig(missing)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "LIVE_TABLE_TICK_MS")
		assert.Contains(t, err.Error(), "LIVE_TABLE_BOT_COUNT")
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		c := &Config{Backend: BackendConfig{URL: "http://ledger"}}
		c.LiveTable.Enabled = true
		c.LiveTable.AdminKeyHex = "ab"
		c.ApplyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing backend", mutate: func(c *Config) { c.Backend.URL = "" }, wantErr: ErrMissingBackendURL},
		{name: "missing admin key", mutate: func(c *Config) { c.LiveTable.AdminKeyHex = "" }, wantErr: ErrMissingAdminKey},
		{name: "admin key not needed when disabled", mutate: func(c *Config) {
			c.LiveTable.Enabled = false
			c.LiveTable.AdminKeyHex = ""
		}},
		{name: "min above max", mutate: func(c *Config) { c.LiveTable.MinBet = 2000 }, wantErr: ErrInvalidBetRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	c := valid()
	c.LiveTable.BotBetsMin, c.LiveTable.BotBetsMax = 5, 2
	assert.ErrorContains(t, c.Validate(), "bot bets min")
}
