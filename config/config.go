package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config struct to hold the configuration settings
type Config struct {
	Postgres      PostgresConfig      `yaml:"postgres"`
	NATS          NATSConfig          `yaml:"nats"`
	Backend       BackendConfig       `yaml:"backend"`
	LiveTable     LiveTableConfig     `yaml:"live_table"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// PostgresConfig holds Postgres configuration. An empty DSN keeps nonces in
// a local file instead.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// NATSConfig holds NATS configuration.
type NATSConfig struct {
	URL               string `yaml:"url"`
	NKeySeed          string `yaml:"nkey_seed"`
	EventSubject      string `yaml:"event_subject"`
	EventStream       string `yaml:"event_stream"`
	CommandSubject    string `yaml:"command_subject"`
	PushSubjectPrefix string `yaml:"push_subject_prefix"`
	QueueGroup        string `yaml:"queue_group"`
}

// BackendConfig points at the ledger's HTTP API.
type BackendConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// LiveTableConfig holds the round coordinator's settings.
type LiveTableConfig struct {
	Enabled     bool   `yaml:"enabled"`
	AdminKeyHex string `yaml:"admin_key_hex"`
	InitOnStart bool   `yaml:"init_on_start"`

	BettingDuration  time.Duration `yaml:"betting_duration"`
	LockDuration     time.Duration `yaml:"lock_duration"`
	PayoutDuration   time.Duration `yaml:"payout_duration"`
	CooldownDuration time.Duration `yaml:"cooldown_duration"`
	TickInterval     time.Duration `yaml:"tick_interval"`

	MinBet          uint64 `yaml:"min_bet"`
	MaxBet          uint64 `yaml:"max_bet"`
	MaxBetsPerRound int    `yaml:"max_bets_per_round"`

	SettleBatchSize    int           `yaml:"settle_batch_size"`
	SettleMaxAttempts  int           `yaml:"settle_max_attempts"`
	AdminRetryInterval time.Duration `yaml:"admin_retry_interval"`
	AdminGracePeriod   time.Duration `yaml:"admin_grace_period"`

	BroadcastInterval  time.Duration `yaml:"broadcast_interval"`
	BroadcastBatchSize int           `yaml:"broadcast_batch_size"`

	BotCount         int     `yaml:"bot_count"`
	BotBatchSize     int     `yaml:"bot_batch_size"`
	BotBetMin        uint64  `yaml:"bot_bet_min"`
	BotBetMax        uint64  `yaml:"bot_bet_max"`
	BotBetsMin       int     `yaml:"bot_bets_min"`
	BotBetsMax       int     `yaml:"bot_bets_max"`
	BotMaxActiveBets int     `yaml:"bot_max_active_bets"`
	BotParticipation float64 `yaml:"bot_participation"`
	BotSeed          int64   `yaml:"bot_seed"`

	NoncePersistInterval time.Duration `yaml:"nonce_persist_interval"`
	NonceFile            string        `yaml:"nonce_file"`
	EventBuffer          int           `yaml:"event_buffer"`
}

// ObservabilityConfig holds configuration for observability components
type ObservabilityConfig struct {
	MetricsAddress string `yaml:"metrics_address"`
	Environment    string `yaml:"environment"`
	LogLevel       string `yaml:"log_level"`
}

// Defaults for every optional setting.
const (
	DefaultBettingDuration      = 18 * time.Second
	DefaultLockDuration         = 2 * time.Second
	DefaultPayoutDuration       = 2 * time.Second
	DefaultCooldownDuration     = 8 * time.Second
	DefaultTickInterval         = time.Second
	DefaultMinBet               = 5
	DefaultMaxBet               = 1000
	DefaultMaxBetsPerRound      = 12
	DefaultSettleBatchSize      = 25
	DefaultSettleMaxAttempts    = 3
	DefaultBotBatchSize         = 10
	DefaultAdminRetryInterval   = 1500 * time.Millisecond
	DefaultAdminGracePeriod     = 250 * time.Millisecond
	DefaultBroadcastInterval    = 150 * time.Millisecond
	DefaultBroadcastBatchSize   = 200
	DefaultBotBetMin            = 10
	DefaultBotBetMax            = 200
	DefaultBotBetsMin           = 1
	DefaultBotBetsMax           = 3
	DefaultBotMaxActiveBets     = 12
	DefaultBotParticipation     = 0.7
	DefaultBotSeed              = 42
	DefaultNoncePersistInterval = 15 * time.Second
	DefaultNonceFile            = "data/nonces.json"
	DefaultEventBuffer          = 256
	DefaultBackendTimeout       = 5 * time.Second
	DefaultEventSubject         = "ledger.events.global_table"
	DefaultCommandSubject       = "livetable.commands"
	DefaultPushSubjectPrefix    = "livetable.push"
	DefaultQueueGroup           = "livetable-gateway"
)

var (
	ErrMissingBackendURL = errors.New("backend url is required")
	ErrMissingNATSURL    = errors.New("NATS_URL environment variable not set")
	ErrMissingAdminKey   = errors.New("live table enabled without an admin signing key")
	ErrInvalidBetRange   = errors.New("min bet must be positive and not above max bet")
)

// LoadConfig loads the configuration from a YAML file.
func LoadConfig(filename string) (*Config, error) {
	// Try reading configuration from the file first
	data, err := os.ReadFile(filename)
	if err != nil {
		// If the file is not found, try loading from environment variables
		return loadConfigFromEnv()
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// --- OVERRIDE WITH ENV VARS IF PRESENT ---
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// loadConfigFromEnv loads the configuration from environment variables.
func loadConfigFromEnv() (*Config, error) {
	var cfg Config
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if cfg.NATS.URL == "" {
		return nil, ErrMissingNATSURL
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.NKeySeed, "NATS_NKEY_SEED")
	setString(&cfg.NATS.EventSubject, "LIVE_TABLE_EVENT_SUBJECT")
	setString(&cfg.NATS.EventStream, "LIVE_TABLE_EVENT_STREAM")
	setString(&cfg.NATS.CommandSubject, "LIVE_TABLE_COMMAND_SUBJECT")
	setString(&cfg.NATS.PushSubjectPrefix, "LIVE_TABLE_PUSH_PREFIX")
	setString(&cfg.NATS.QueueGroup, "LIVE_TABLE_QUEUE_GROUP")
	setString(&cfg.Backend.URL, "BACKEND_URL")
	setString(&cfg.LiveTable.AdminKeyHex, "LIVE_TABLE_ADMIN_KEY")
	setString(&cfg.LiveTable.NonceFile, "LIVE_TABLE_NONCE_FILE")
	setString(&cfg.Observability.MetricsAddress, "METRICS_ADDRESS")
	setString(&cfg.Observability.Environment, "ENV")
	setString(&cfg.Observability.LogLevel, "LOG_LEVEL")

	lt := &cfg.LiveTable
	return errors.Join(
		setBool(&lt.Enabled, "LIVE_TABLE_ENABLED"),
		setBool(&lt.InitOnStart, "LIVE_TABLE_INIT_ON_START"),
		setMillis(&cfg.Backend.Timeout, "BACKEND_TIMEOUT_MS"),
		setMillis(&lt.BettingDuration, "LIVE_TABLE_BETTING_MS"),
		setMillis(&lt.LockDuration, "LIVE_TABLE_LOCK_MS"),
		setMillis(&lt.PayoutDuration, "LIVE_TABLE_PAYOUT_MS"),
		setMillis(&lt.CooldownDuration, "LIVE_TABLE_COOLDOWN_MS"),
		setMillis(&lt.TickInterval, "LIVE_TABLE_TICK_MS"),
		setUint(&lt.MinBet, "LIVE_TABLE_MIN_BET"),
		setUint(&lt.MaxBet, "LIVE_TABLE_MAX_BET"),
		setInt(&lt.MaxBetsPerRound, "LIVE_TABLE_MAX_BETS_PER_ROUND"),
		setInt(&lt.SettleBatchSize, "LIVE_TABLE_SETTLE_BATCH"),
		setInt(&lt.SettleMaxAttempts, "LIVE_TABLE_SETTLE_MAX_ATTEMPTS"),
		setMillis(&lt.AdminRetryInterval, "LIVE_TABLE_ADMIN_RETRY_MS"),
		setMillis(&lt.AdminGracePeriod, "LIVE_TABLE_ADMIN_GRACE_MS"),
		setMillis(&lt.BroadcastInterval, "LIVE_TABLE_BROADCAST_MS"),
		setInt(&lt.BroadcastBatchSize, "LIVE_TABLE_BROADCAST_BATCH"),
		setInt(&lt.BotCount, "LIVE_TABLE_BOT_COUNT"),
		setInt(&lt.BotBatchSize, "LIVE_TABLE_BOT_BATCH"),
		setUint(&lt.BotBetMin, "LIVE_TABLE_BOT_BET_MIN"),
		setUint(&lt.BotBetMax, "LIVE_TABLE_BOT_BET_MAX"),
		setInt(&lt.BotBetsMin, "LIVE_TABLE_BOT_BETS_MIN"),
		setInt(&lt.BotBetsMax, "LIVE_TABLE_BOT_BETS_MAX"),
		setInt(&lt.BotMaxActiveBets, "LIVE_TABLE_BOT_MAX_ACTIVE_BETS"),
		setFloat(&lt.BotParticipation, "LIVE_TABLE_BOT_PARTICIPATION"),
		setInt64(&lt.BotSeed, "LIVE_TABLE_BOT_SEED"),
		setMillis(&lt.NoncePersistInterval, "LIVE_TABLE_NONCE_PERSIST_MS"),
		setInt(&lt.EventBuffer, "LIVE_TABLE_EVENT_BUFFER"),
	)
}

// ApplyDefaults fills every unset setting with its default.
func (c *Config) ApplyDefaults() {
	lt := &c.LiveTable
	defaultDuration(&lt.BettingDuration, DefaultBettingDuration)
	defaultDuration(&lt.LockDuration, DefaultLockDuration)
	defaultDuration(&lt.PayoutDuration, DefaultPayoutDuration)
	defaultDuration(&lt.CooldownDuration, DefaultCooldownDuration)
	defaultDuration(&lt.TickInterval, DefaultTickInterval)
	defaultDuration(&lt.AdminRetryInterval, DefaultAdminRetryInterval)
	defaultDuration(&lt.AdminGracePeriod, DefaultAdminGracePeriod)
	defaultDuration(&lt.BroadcastInterval, DefaultBroadcastInterval)
	defaultDuration(&lt.NoncePersistInterval, DefaultNoncePersistInterval)
	defaultDuration(&c.Backend.Timeout, DefaultBackendTimeout)

	defaultUint(&lt.MinBet, DefaultMinBet)
	defaultUint(&lt.MaxBet, DefaultMaxBet)
	defaultUint(&lt.BotBetMin, DefaultBotBetMin)
	defaultUint(&lt.BotBetMax, DefaultBotBetMax)

	defaultInt(&lt.MaxBetsPerRound, DefaultMaxBetsPerRound)
	defaultInt(&lt.SettleBatchSize, DefaultSettleBatchSize)
	defaultInt(&lt.SettleMaxAttempts, DefaultSettleMaxAttempts)
	defaultInt(&lt.BroadcastBatchSize, DefaultBroadcastBatchSize)
	defaultInt(&lt.BotBatchSize, DefaultBotBatchSize)
	defaultInt(&lt.BotBetsMin, DefaultBotBetsMin)
	defaultInt(&lt.BotBetsMax, DefaultBotBetsMax)
	defaultInt(&lt.BotMaxActiveBets, DefaultBotMaxActiveBets)
	defaultInt(&lt.EventBuffer, DefaultEventBuffer)

	if lt.BotParticipation <= 0 {
		lt.BotParticipation = DefaultBotParticipation
	}
	if lt.BotSeed == 0 {
		lt.BotSeed = DefaultBotSeed
	}
	if lt.NonceFile == "" {
		lt.NonceFile = DefaultNonceFile
	}
	if c.NATS.EventSubject == "" {
		c.NATS.EventSubject = DefaultEventSubject
	}
	if c.NATS.CommandSubject == "" {
		c.NATS.CommandSubject = DefaultCommandSubject
	}
	if c.NATS.PushSubjectPrefix == "" {
		c.NATS.PushSubjectPrefix = DefaultPushSubjectPrefix
	}
	if c.NATS.QueueGroup == "" {
		c.NATS.QueueGroup = DefaultQueueGroup
	}
}

// Validate reports settings the gateway cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Backend.URL == "" {
		errs = append(errs, ErrMissingBackendURL)
	}
	if c.LiveTable.Enabled && c.LiveTable.AdminKeyHex == "" {
		errs = append(errs, ErrMissingAdminKey)
	}
	if c.LiveTable.MinBet == 0 || c.LiveTable.MinBet > c.LiveTable.MaxBet {
		errs = append(errs, ErrInvalidBetRange)
	}
	if c.LiveTable.BotBetMin > c.LiveTable.BotBetMax {
		errs = append(errs, fmt.Errorf("bot bet min %d above max %d", c.LiveTable.BotBetMin, c.LiveTable.BotBetMax))
	}
	if c.LiveTable.BotBetsMin > c.LiveTable.BotBetsMax {
		errs = append(errs, fmt.Errorf("bot bets min %d above max %d", c.LiveTable.BotBetsMin, c.LiveTable.BotBetsMax))
	}
	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s value: %w", key, err)
	}
	*dst = b
	return nil
}

func setMillis(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	ms, err := strconv.ParseUint(v, 10, 63)
	if err != nil {
		return fmt.Errorf("invalid %s value: %w", key, err)
	}
	*dst = time.Duration(ms) * time.Millisecond
	return nil
}

func setUint(dst *uint64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s value: %w", key, err)
	}
	*dst = n
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s value: %w", key, err)
	}
	*dst = n
	return nil
}

func setInt64(dst *int64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s value: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s value: %w", key, err)
	}
	*dst = f
	return nil
}

func defaultDuration(dst *time.Duration, def time.Duration) {
	if *dst <= 0 {
		*dst = def
	}
}

func defaultUint(dst *uint64, def uint64) {
	if *dst == 0 {
		*dst = def
	}
}

func defaultInt(dst *int, def int) {
	if *dst <= 0 {
		*dst = def
	}
}
