package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"guildbot/adapters/redis"
	"guildbot/adapters/sqlstore"
	"guildbot/core"
	"guildbot/engine"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds the complete application configuration
type Config struct {
	Environment Environment `json:"environment" env:"GUILDBOT_ENV"`
	Profile     string      `json:"profile" env:"GUILDBOT_PROFILE"`

	Server   ServerConfig   `json:"server"`
	Storage  StorageConfig  `json:"storage"`
	Logging  LoggingConfig  `json:"logging"`
	Security SecurityConfig `json:"security"`

	// Bot holds every engagement subsystem's policy.
	Bot BotConfig `json:"bot"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Address           string        `json:"address" env:"GUILDBOT_SERVER_ADDR"`
	PathPrefix        string        `json:"path_prefix" env:"GUILDBOT_SERVER_PATH_PREFIX"`
	CORSOrigin        string        `json:"cors_origin" env:"GUILDBOT_SERVER_CORS_ORIGIN"`
	ReadTimeout       time.Duration `json:"read_timeout" env:"GUILDBOT_SERVER_READ_TIMEOUT"`
	WriteTimeout      time.Duration `json:"write_timeout" env:"GUILDBOT_SERVER_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `json:"idle_timeout" env:"GUILDBOT_SERVER_IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" env:"GUILDBOT_SERVER_READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" env:"GUILDBOT_SERVER_SHUTDOWN_TIMEOUT"`
}

// StorageConfig holds storage adapter configuration
type StorageConfig struct {
	Adapter string          `json:"adapter" env:"GUILDBOT_STORAGE_ADAPTER"`
	Redis   redis.Config    `json:"redis,omitempty"`
	SQL     sqlstore.Config `json:"sql,omitempty"`
	File    FileConfig      `json:"file,omitempty"`
}

// FileConfig holds JSON file storage configuration
type FileConfig struct {
	Path string `json:"path" env:"GUILDBOT_STORAGE_FILE_PATH"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string            `json:"level" env:"GUILDBOT_LOG_LEVEL"`
	Format     string            `json:"format" env:"GUILDBOT_LOG_FORMAT"`
	Output     string            `json:"output" env:"GUILDBOT_LOG_OUTPUT"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRateLimit bool            `json:"enable_rate_limit" env:"GUILDBOT_SECURITY_RATE_LIMIT_ENABLED"`
	RateLimit       RateLimitConfig `json:"rate_limit,omitempty"`
	APIKeys         []string        `json:"api_keys,omitempty" env:"GUILDBOT_SECURITY_API_KEYS"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `json:"requests_per_minute" env:"GUILDBOT_SECURITY_RATE_LIMIT_RPM"`
	BurstSize         int           `json:"burst_size" env:"GUILDBOT_SECURITY_RATE_LIMIT_BURST"`
	CleanupInterval   time.Duration `json:"cleanup_interval" env:"GUILDBOT_SECURITY_RATE_LIMIT_CLEANUP"`
}

// ThresholdRole couples a numeric threshold with a reward role.
type ThresholdRole struct {
	Threshold int64  `json:"threshold"`
	Role      string `json:"role"`
}

// MessageXPConfig holds the per-message XP policy.
type MessageXPConfig struct {
	Enabled         bool  `json:"enabled" env:"GUILDBOT_XP_MESSAGES_ENABLED"`
	BaseXP          int64 `json:"base_xp"`
	AttachmentBonus int64 `json:"attachment_bonus"`
	CharsPerBonusXP int64 `json:"chars_per_bonus_xp"`
	MaxLengthBonus  int64 `json:"max_length_bonus"`
}

// MilestonesConfig holds one family of milestone rewards.
type MilestonesConfig struct {
	Enabled     bool            `json:"enabled"`
	Thresholds  []int64         `json:"thresholds"`
	RewardXP    int64           `json:"reward_xp"`
	RewardRoles []ThresholdRole `json:"reward_roles,omitempty"`
}

// StreaksConfig holds the consecutive-day chat streak policy.
type StreaksConfig struct {
	Enabled              bool   `json:"enabled"`
	ResetIfInactiveHours int    `json:"reset_if_inactive_hours"`
	TargetDays           int64  `json:"target_days"`
	RewardXP             int64  `json:"reward_xp"`
	RewardRole           string `json:"reward_role"`
}

// LevelingSection holds message XP, leveling and tier-role policy.
type LevelingSection struct {
	Message         MessageXPConfig  `json:"message"`
	CooldownSeconds int64            `json:"cooldown_seconds"`
	LevelPower      float64          `json:"level_power"`
	LevelUpChannel  string           `json:"level_up_channel" env:"GUILDBOT_LEVEL_UP_CHANNEL"`
	LevelRoles      []ThresholdRole  `json:"level_roles,omitempty"`
	BlockedChannels []string         `json:"blocked_channels,omitempty"`
	Milestones      MilestonesConfig `json:"milestones"`
	Streaks         StreaksConfig    `json:"streaks"`
}

// PowerUpSection holds the weekly double-XP window for counting.
type PowerUpSection struct {
	Enabled         bool   `json:"enabled"`
	DayOfWeek       int    `json:"day_of_week"`
	MinStartHour    int    `json:"min_start_hour"`
	MaxStartHour    int    `json:"max_start_hour"`
	DurationMinutes int    `json:"duration_minutes"`
	NotifyRole      string `json:"notify_role"`
}

// CountingSection holds the counting mini-game policy.
type CountingSection struct {
	Enabled          bool             `json:"enabled" env:"GUILDBOT_COUNTING_ENABLED"`
	Channel          string           `json:"channel" env:"GUILDBOT_COUNTING_CHANNEL"`
	Target           int64            `json:"target"`
	SuccessXPPerUser int64            `json:"success_xp_per_user"`
	XPLossPercent    float64          `json:"xp_loss_percent"`
	LevelLossPercent float64          `json:"level_loss_percent"`
	Milestones       MilestonesConfig `json:"milestones"`
	PowerUp          PowerUpSection   `json:"power_up"`
}

// VoiceSection holds the voice-time XP policy.
type VoiceSection struct {
	Enabled         bool  `json:"enabled" env:"GUILDBOT_VOICE_ENABLED"`
	XPPerMinute     int64 `json:"xp_per_minute"`
	TickSeconds     int64 `json:"tick_seconds"`
	RequireNotAlone bool  `json:"require_not_alone"`
}

// BirthdaySection holds the birthday announcement policy.
type BirthdaySection struct {
	Enabled             bool   `json:"enabled" env:"GUILDBOT_BIRTHDAYS_ENABLED"`
	Channel             string `json:"channel"`
	Role                string `json:"role"`
	Message             string `json:"message"`
	CheckTime           string `json:"check_time"`
	TimezoneOffsetHours int    `json:"timezone_offset_hours"`
}

// NicknameSection holds the nickname change policy.
type NicknameSection struct {
	Enabled              bool `json:"enabled" env:"GUILDBOT_NICKNAMES_ENABLED"`
	CooldownDays         int  `json:"cooldown_days"`
	MaxLength            int  `json:"max_length"`
	AllowResetToUsername bool `json:"allow_reset_to_username"`
}

// StickyChannelConfig pins a sticky message to one channel.
type StickyChannelConfig struct {
	Channel string   `json:"channel"`
	Lines   []string `json:"lines"`
}

// StickySection holds the sticky message policy.
type StickySection struct {
	Enabled  bool                  `json:"enabled" env:"GUILDBOT_STICKY_ENABLED"`
	Channels []StickyChannelConfig `json:"channels,omitempty"`
}

// FeedsSection holds the social feed polling policy.
type FeedsSection struct {
	Enabled      bool          `json:"enabled" env:"GUILDBOT_FEEDS_ENABLED"`
	PollInterval time.Duration `json:"poll_interval"`
}

// WelcomeSection holds the member-join greeting policy.
type WelcomeSection struct {
	Enabled bool   `json:"enabled" env:"GUILDBOT_WELCOME_ENABLED"`
	Channel string `json:"channel"`
	Message string `json:"message"`
}

// WebhookSection holds the outbound webhook sink configuration.
type WebhookSection struct {
	Enabled bool          `json:"enabled" env:"GUILDBOT_WEBHOOK_ENABLED"`
	URL     string        `json:"url" env:"GUILDBOT_WEBHOOK_URL"`
	Timeout time.Duration `json:"timeout"`
}

// BotConfig groups every engagement subsystem.
type BotConfig struct {
	Leveling  LevelingSection `json:"leveling"`
	Counting  CountingSection `json:"counting"`
	Voice     VoiceSection    `json:"voice"`
	Birthdays BirthdaySection `json:"birthdays"`
	Nicknames NicknameSection `json:"nicknames"`
	Sticky    StickySection   `json:"sticky"`
	Feeds     FeedsSection    `json:"feeds"`
	Welcome   WelcomeSection  `json:"welcome"`
	Webhook   WebhookSection  `json:"webhook"`
}

func thresholdRoles(in []ThresholdRole) map[int64]core.RoleID {
	if len(in) == 0 {
		return nil
	}
	out := make(map[int64]core.RoleID, len(in))
	for _, tr := range in {
		out[tr.Threshold] = core.RoleID(tr.Role)
	}
	return out
}

func (m MilestonesConfig) Engine() engine.MilestoneRule {
	return engine.MilestoneRule{
		Enabled:     m.Enabled,
		Thresholds:  append([]int64(nil), m.Thresholds...),
		RewardXP:    m.RewardXP,
		RewardRoles: thresholdRoles(m.RewardRoles),
	}
}

// Engine maps the leveling section onto the engine's config type.
func (l LevelingSection) Engine() engine.LevelingConfig {
	roles := make([]core.LevelRole, 0, len(l.LevelRoles))
	for _, tr := range l.LevelRoles {
		roles = append(roles, core.LevelRole{Threshold: tr.Threshold, Role: core.RoleID(tr.Role)})
	}
	blocked := make([]core.ChannelID, 0, len(l.BlockedChannels))
	for _, ch := range l.BlockedChannels {
		blocked = append(blocked, core.ChannelID(ch))
	}
	return engine.LevelingConfig{
		Message: core.MessagePolicy{
			Enabled:         l.Message.Enabled,
			BaseXP:          l.Message.BaseXP,
			AttachmentBonus: l.Message.AttachmentBonus,
			CharsPerBonusXP: l.Message.CharsPerBonusXP,
			MaxLengthBonus:  l.Message.MaxLengthBonus,
		},
		CooldownSeconds:   l.CooldownSeconds,
		LevelPower:        l.LevelPower,
		LevelUpChannel:    core.ChannelID(l.LevelUpChannel),
		LevelRoles:        roles,
		BlockedChannels:   blocked,
		MessageMilestones: l.Milestones.Engine(),
		Streaks: engine.StreakRule{
			Enabled:              l.Streaks.Enabled,
			ResetIfInactiveHours: l.Streaks.ResetIfInactiveHours,
			TargetDays:           l.Streaks.TargetDays,
			RewardXP:             l.Streaks.RewardXP,
			RewardRole:           core.RoleID(l.Streaks.RewardRole),
		},
	}
}

// EngineCounting maps the counting section onto the engine's config type.
// The level exponent is shared with the leveling section so penalties and
// level-ups agree on the curve.
func (b BotConfig) EngineCounting() engine.CountingConfig {
	c := b.Counting
	return engine.CountingConfig{
		Enabled:          c.Enabled,
		Channel:          core.ChannelID(c.Channel),
		Target:           c.Target,
		SuccessXPPerUser: c.SuccessXPPerUser,
		XPLossPercent:    c.XPLossPercent,
		LevelLossPercent: c.LevelLossPercent,
		LevelPower:       b.Leveling.LevelPower,
		Milestones:       c.Milestones.Engine(),
		PowerUp: engine.PowerUpRule{
			Enabled:         c.PowerUp.Enabled,
			DayOfWeek:       time.Weekday(c.PowerUp.DayOfWeek),
			MinStartHour:    c.PowerUp.MinStartHour,
			MaxStartHour:    c.PowerUp.MaxStartHour,
			DurationMinutes: c.PowerUp.DurationMinutes,
			NotifyRole:      core.RoleID(c.PowerUp.NotifyRole),
		},
	}
}

func (v VoiceSection) Engine() engine.VoiceConfig {
	return engine.VoiceConfig{
		Enabled:         v.Enabled,
		XPPerMinute:     v.XPPerMinute,
		TickSeconds:     v.TickSeconds,
		RequireNotAlone: v.RequireNotAlone,
	}
}

func (b BirthdaySection) Engine() engine.BirthdayConfig {
	return engine.BirthdayConfig{
		Enabled:             b.Enabled,
		AnnouncementChannel: core.ChannelID(b.Channel),
		Role:                core.RoleID(b.Role),
		Message:             b.Message,
		CheckTimeUTC:        b.CheckTime,
		TimezoneOffsetHours: b.TimezoneOffsetHours,
	}
}

func (n NicknameSection) Engine() engine.NicknameConfig {
	return engine.NicknameConfig{
		Enabled:              n.Enabled,
		CooldownDays:         n.CooldownDays,
		MaxLength:            n.MaxLength,
		AllowResetToUsername: n.AllowResetToUsername,
	}
}

func (s StickySection) Engine() engine.StickyConfig {
	channels := make([]engine.StickyChannel, 0, len(s.Channels))
	for _, ch := range s.Channels {
		channels = append(channels, engine.StickyChannel{Channel: core.ChannelID(ch.Channel), Lines: append([]string(nil), ch.Lines...)})
	}
	return engine.StickyConfig{Enabled: s.Enabled, Channels: channels}
}

// Load loads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := DefaultConfig()
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// validateConfigPath validates that the config file path is safe
func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("config file path cannot be empty")
	}
	cleanPath := filepath.Clean(path)
	if !strings.HasSuffix(strings.ToLower(cleanPath), ".json") {
		return errors.New("config file must have .json extension")
	}
	if _, err := os.Stat(cleanPath); err != nil {
		return fmt.Errorf("config file not accessible: %w", err)
	}
	return nil
}

// LoadFromFile loads configuration from a JSON file; environment variables
// override file values.
func LoadFromFile(path string) (*Config, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config file path: %w", err)
	}
	file, err := os.Open(path) // #nosec G304 - Path validated above
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the configuration as indented JSON via a temp-file
// rename so readers never observe a partial document.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ParseAndValidate decodes a full configuration document over the defaults
// and validates it. Used by the config update API.
func ParseAndValidate(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config document: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Profile:     "default",
		Server: ServerConfig{
			Address:           ":8080",
			PathPrefix:        "/api",
			CORSOrigin:        "*",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Storage: StorageConfig{
			Adapter: "memory",
			Redis:   redis.DefaultConfig(),
			SQL:     sqlstore.DefaultConfig(sqlstore.DriverSQLite),
			File: FileConfig{
				Path: "./data/guildbot.json",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			EnableRateLimit: false,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				BurstSize:         10,
				CleanupInterval:   5 * time.Minute,
			},
			APIKeys: []string{},
		},
		Bot: BotConfig{
			Leveling: LevelingSection{
				Message: MessageXPConfig{
					Enabled:         true,
					BaseXP:          8,
					AttachmentBonus: 3,
					CharsPerBonusXP: 100,
					MaxLengthBonus:  5,
				},
				CooldownSeconds: 60,
				LevelPower:      0.25,
				Milestones: MilestonesConfig{
					Enabled:    true,
					Thresholds: []int64{100, 1000, 10000},
					RewardXP:   100,
				},
				Streaks: StreaksConfig{
					Enabled:    true,
					TargetDays: 7,
					RewardXP:   150,
				},
			},
			Counting: CountingSection{
				Enabled:          false,
				Target:           100,
				SuccessXPPerUser: 25,
				XPLossPercent:    50,
				LevelLossPercent: 20,
				Milestones: MilestonesConfig{
					Enabled:    true,
					Thresholds: []int64{10, 50, 100},
					RewardXP:   50,
				},
				PowerUp: PowerUpSection{
					Enabled:         false,
					DayOfWeek:       int(time.Saturday),
					MinStartHour:    17,
					MaxStartHour:    22,
					DurationMinutes: 60,
				},
			},
			Voice: VoiceSection{
				Enabled:     true,
				XPPerMinute: 2,
				TickSeconds: 60,
			},
			Birthdays: BirthdaySection{
				Enabled:   false,
				Message:   "Happy Birthday!",
				CheckTime: "09:00",
			},
			Nicknames: NicknameSection{
				Enabled:              true,
				CooldownDays:         7,
				MaxLength:            32,
				AllowResetToUsername: true,
			},
			Sticky: StickySection{Enabled: false},
			Feeds: FeedsSection{
				Enabled:      false,
				PollInterval: 5 * time.Minute,
			},
			Welcome: WelcomeSection{
				Enabled: false,
				Message: "Welcome to the community!",
			},
			Webhook: WebhookSection{
				Enabled: false,
				Timeout: 10 * time.Second,
			},
		},
	}
}

// Validate validates the configuration and returns detailed error messages
func (c *Config) Validate() error {
	var errs []string

	if c.Environment == "" {
		errs = append(errs, "environment cannot be empty")
	}
	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("storage config: %v", err))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("logging config: %v", err))
	}
	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}
	if err := c.Bot.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("bot config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// String returns a JSON representation of the config (with secrets redacted)
func (c *Config) String() string {
	cfg := *c
	if cfg.Storage.SQL.DSN != "" {
		cfg.Storage.SQL.DSN = "[REDACTED]"
	}
	if cfg.Storage.Redis.Password != "" {
		cfg.Storage.Redis.Password = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(cfg, "", "  ")
	return string(data)
}
