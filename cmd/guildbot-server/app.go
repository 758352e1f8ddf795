package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"guildbot/adapters/jsonfile"
	mem "guildbot/adapters/memory"
	redisAdapter "guildbot/adapters/redis"
	"guildbot/adapters/sqlstore"
	"guildbot/analytics"
	"guildbot/api/httpapi"
	"guildbot/bot"
	"guildbot/config"
	"guildbot/core"
	"guildbot/engine"
	"guildbot/integrations/webhook"
	"guildbot/realtime"
)

// App aggregates the assembled server components.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Hub     *realtime.Hub
	Bot     *bot.Bot
	Metrics *analytics.EngagementMetrics
	Handler http.Handler
	Server  *http.Server
}

func provideConfig(_ context.Context) (*config.Config, error) {
	if path := os.Getenv("GUILDBOT_CONFIG"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideStorage(ctx context.Context, cfg *config.Config) (bot.Store, error) {
	return setupStorage(ctx, cfg)
}

func provideBot(cfg *config.Config, store bot.Store, hub *realtime.Hub, logger *slog.Logger) (*bot.Bot, error) {
	opts := []bot.Option{
		bot.WithStore(store),
		bot.WithRealtime(hub),
		bot.WithLogger(logger),
		bot.WithDispatchMode(engine.DispatchAsync),
	}
	if cfg.Bot.Webhook.Enabled {
		sink, err := webhook.New(cfg.Bot.Webhook.URL, webhook.WithTimeout(cfg.Bot.Webhook.Timeout))
		if err != nil {
			return nil, fmt.Errorf("webhook sink: %w", err)
		}
		opts = append(opts, bot.WithAnnouncer(sink), bot.WithFeedNotifier(sink))
	}

	b := cfg.Bot
	return bot.New(bot.Config{
		Leveling:  b.Leveling.Engine(),
		Counting:  b.EngineCounting(),
		Voice:     b.Voice.Engine(),
		Birthdays: b.Birthdays.Engine(),
		Nicknames: b.Nicknames.Engine(),
		Sticky:    b.Sticky.Engine(),
		Welcome: bot.WelcomeRule{
			Enabled: b.Welcome.Enabled,
			Channel: core.ChannelID(b.Welcome.Channel),
			Message: b.Welcome.Message,
		},
		FeedPollInterval: b.Feeds.PollInterval,
	}, opts...), nil
}

func provideMetrics(b *bot.Bot) *analytics.EngagementMetrics {
	m := analytics.NewEngagementMetrics()
	analytics.Attach(b.Bus, m, analytics.NewDAU())
	return m
}

func provideHandler(b *bot.Bot, hub *realtime.Hub, cfg *config.Config) http.Handler {
	return httpapi.NewMux(b.Store, b.Leveling, hub, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		APIKeys:          cfg.Security.APIKeys,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
		Config:           cfg,
		UpdateConfig:     updateConfig,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// updateConfig validates a posted config document and persists it to the
// config file when one is in use. The running process keeps its current
// policy; changes take effect on restart.
func updateConfig(data []byte) error {
	next, err := config.ParseAndValidate(data)
	if err != nil {
		return err
	}
	if path := os.Getenv("GUILDBOT_CONFIG"); path != "" {
		return next.SaveToFile(path)
	}
	return nil
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	if len(cfg.Logging.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(cfg.Logging.Attributes))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// convertAttributes converts map[string]string to []slog.Attr.
func convertAttributes(attrs map[string]string) []slog.Attr {
	var result []slog.Attr
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}

// setupStorage creates the appropriate storage adapter based on configuration.
func setupStorage(_ context.Context, cfg *config.Config) (bot.Store, error) {
	switch cfg.Storage.Adapter {
	case "memory":
		return mem.New(), nil
	case "redis":
		return redisAdapter.New(cfg.Storage.Redis)
	case "sql":
		return sqlstore.New(cfg.Storage.SQL.Driver, cfg.Storage.SQL.DSN)
	case "file":
		return jsonfile.New(cfg.Storage.File.Path)
	default:
		return nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}
