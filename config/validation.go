package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	var errs []string

	if s.Address == "" {
		errs = append(errs, "address cannot be empty")
	}
	if s.ReadTimeout <= 0 {
		errs = append(errs, "read_timeout must be positive")
	}
	if s.WriteTimeout <= 0 {
		errs = append(errs, "write_timeout must be positive")
	}
	if s.IdleTimeout <= 0 {
		errs = append(errs, "idle_timeout must be positive")
	}
	if s.ReadHeaderTimeout <= 0 {
		errs = append(errs, "read_header_timeout must be positive")
	}
	if s.ShutdownTimeout <= 0 {
		errs = append(errs, "shutdown_timeout must be positive")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	var errs []string

	validAdapters := []string{"memory", "redis", "sql", "file"}
	isValidAdapter := false
	for _, adapter := range validAdapters {
		if s.Adapter == adapter {
			isValidAdapter = true
			break
		}
	}
	if !isValidAdapter {
		errs = append(errs, fmt.Sprintf("adapter must be one of: %s", strings.Join(validAdapters, ", ")))
	}

	switch s.Adapter {
	case "file":
		if err := s.File.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("file config: %v", err))
		}
	case "sql":
		if s.SQL.DSN == "" {
			errs = append(errs, "sql config: dsn cannot be empty")
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate validates file storage configuration
func (f *FileConfig) Validate() error {
	if f.Path == "" {
		return errors.New("path cannot be empty")
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	var errs []string

	validLevels := []string{"debug", "info", "warn", "error"}
	isValidLevel := false
	for _, level := range validLevels {
		if l.Level == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		errs = append(errs, fmt.Sprintf("level must be one of: %s", strings.Join(validLevels, ", ")))
	}

	validFormats := []string{"json", "text"}
	isValidFormat := false
	for _, format := range validFormats {
		if l.Format == format {
			isValidFormat = true
			break
		}
	}
	if !isValidFormat {
		errs = append(errs, fmt.Sprintf("format must be one of: %s", strings.Join(validFormats, ", ")))
	}

	validOutputs := []string{"stdout", "stderr"}
	isValidOutput := false
	for _, output := range validOutputs {
		if l.Output == output {
			isValidOutput = true
			break
		}
	}
	if !isValidOutput {
		errs = append(errs, fmt.Sprintf("output must be one of: %s", strings.Join(validOutputs, ", ")))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate validates security settings.
func (s *SecurityConfig) Validate() error {
	var errs []string
	if s.EnableRateLimit {
		if s.RateLimit.RequestsPerMinute <= 0 {
			errs = append(errs, "rate_limit.requests_per_minute must be > 0 when rate limiting is enabled")
		}
		if s.RateLimit.BurstSize <= 0 {
			errs = append(errs, "rate_limit.burst_size must be > 0 when rate limiting is enabled")
		}
	}
	for i, key := range s.APIKeys {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, fmt.Sprintf("api_keys[%d] is empty", i))
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func percentInRange(p float64) bool { return p >= 0 && p <= 100 }

// Validate validates every bot subsystem's policy.
func (b *BotConfig) Validate() error {
	var errs []string

	l := b.Leveling
	if l.LevelPower < 0 {
		errs = append(errs, "leveling.level_power must be >= 0")
	}
	if l.CooldownSeconds < 0 {
		errs = append(errs, "leveling.cooldown_seconds must be >= 0")
	}
	if l.Message.Enabled && l.Message.BaseXP < 0 {
		errs = append(errs, "leveling.message.base_xp must be >= 0")
	}
	if l.Streaks.Enabled && l.Streaks.ResetIfInactiveHours < 0 {
		errs = append(errs, "leveling.streaks.reset_if_inactive_hours must be >= 0")
	}

	c := b.Counting
	if c.Enabled {
		if c.Channel == "" {
			errs = append(errs, "counting.channel cannot be empty when counting is enabled")
		}
		if c.Target <= 0 {
			errs = append(errs, "counting.target must be > 0 when counting is enabled")
		}
		if !percentInRange(c.XPLossPercent) {
			errs = append(errs, "counting.xp_loss_percent must be between 0 and 100")
		}
		if !percentInRange(c.LevelLossPercent) {
			errs = append(errs, "counting.level_loss_percent must be between 0 and 100")
		}
	}
	p := c.PowerUp
	if p.Enabled {
		if p.DayOfWeek < 0 || p.DayOfWeek > 6 {
			errs = append(errs, "counting.power_up.day_of_week must be between 0 (Sunday) and 6 (Saturday)")
		}
		if p.MinStartHour < 0 || p.MinStartHour > 23 || p.MaxStartHour < 0 || p.MaxStartHour > 23 {
			errs = append(errs, "counting.power_up hours must be between 0 and 23")
		}
		if p.MinStartHour > p.MaxStartHour {
			errs = append(errs, "counting.power_up.min_start_hour must be <= max_start_hour")
		}
		if p.DurationMinutes <= 0 {
			errs = append(errs, "counting.power_up.duration_minutes must be > 0")
		}
	}

	if b.Voice.Enabled {
		if b.Voice.XPPerMinute < 0 {
			errs = append(errs, "voice.xp_per_minute must be >= 0")
		}
		if b.Voice.TickSeconds <= 0 {
			errs = append(errs, "voice.tick_seconds must be > 0 when voice tracking is enabled")
		}
	}

	if b.Birthdays.Enabled {
		if !validCheckTime(b.Birthdays.CheckTime) {
			errs = append(errs, "birthdays.check_time must be HH:MM")
		}
	}

	if b.Nicknames.Enabled {
		if b.Nicknames.CooldownDays < 0 {
			errs = append(errs, "nicknames.cooldown_days must be >= 0")
		}
		if b.Nicknames.MaxLength <= 0 {
			errs = append(errs, "nicknames.max_length must be > 0")
		}
	}

	if b.Sticky.Enabled {
		for i, ch := range b.Sticky.Channels {
			if ch.Channel == "" {
				errs = append(errs, fmt.Sprintf("sticky.channels[%d].channel cannot be empty", i))
			}
			if len(ch.Lines) == 0 {
				errs = append(errs, fmt.Sprintf("sticky.channels[%d].lines cannot be empty", i))
			}
		}
	}

	if b.Feeds.Enabled && b.Feeds.PollInterval <= 0 {
		errs = append(errs, "feeds.poll_interval must be positive when feeds are enabled")
	}

	if b.Webhook.Enabled && b.Webhook.URL == "" {
		errs = append(errs, "webhook.url cannot be empty when the webhook sink is enabled")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validCheckTime(s string) bool {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return false
	}
	return true
}
