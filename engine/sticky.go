package engine

import (
	"context"
	"log/slog"
	"strings"

	"guildbot/core"
)

// StickyChannel pairs a channel with the sticky message lines pinned to its
// bottom.
type StickyChannel struct {
	Channel core.ChannelID
	Lines   []string
}

// StickyConfig holds the sticky message policy.
type StickyConfig struct {
	Enabled  bool
	Channels []StickyChannel
}

// StickyKeeper keeps one bot message glued to the bottom of configured
// channels: whenever members chat, the previous sticky is deleted and
// re-posted.
type StickyKeeper struct {
	cfg       StickyConfig
	store     StickyStore
	messenger Messenger
	logger    *slog.Logger
	channels  map[core.ChannelID][]string
}

func NewStickyKeeper(cfg StickyConfig, store StickyStore, messenger Messenger, logger *slog.Logger) *StickyKeeper {
	if store == nil || messenger == nil {
		panic("NewStickyKeeper requires non-nil store and messenger")
	}
	if logger == nil {
		logger = slog.Default()
	}
	k := &StickyKeeper{cfg: cfg, store: store, messenger: messenger, logger: logger, channels: map[core.ChannelID][]string{}}
	for _, ch := range cfg.Channels {
		k.channels[ch.Channel] = ch.Lines
	}
	return k
}

// EnsureAll posts the sticky in every configured channel that has none
// recorded yet. Run once at startup.
func (k *StickyKeeper) EnsureAll(ctx context.Context) {
	if !k.cfg.Enabled {
		return
	}
	for channel, lines := range k.channels {
		if _, ok, err := k.store.GetStickyMessage(ctx, channel); err != nil || ok {
			if err != nil {
				k.logger.Warn("sticky lookup failed", "channel", channel, "error", err)
			}
			continue
		}
		k.repost(ctx, channel, lines)
	}
}

// HandleMessage refreshes the sticky after member activity in a configured
// channel. Messages authored by the bot itself must be filtered by the
// caller to avoid repost loops.
func (k *StickyKeeper) HandleMessage(ctx context.Context, msg core.Message) {
	if !k.cfg.Enabled {
		return
	}
	lines, ok := k.channels[msg.Channel]
	if !ok {
		return
	}
	k.Refresh(ctx, msg.Channel, lines)
}

// Refresh deletes the recorded sticky (if any) and posts a fresh one.
func (k *StickyKeeper) Refresh(ctx context.Context, channel core.ChannelID, lines []string) {
	old, ok, err := k.store.GetStickyMessage(ctx, channel)
	if err != nil {
		k.logger.Warn("sticky lookup failed", "channel", channel, "error", err)
	}
	if ok {
		if err := k.messenger.Delete(ctx, channel, old); err != nil {
			k.logger.Warn("sticky delete failed", "channel", channel, "message", old, "error", err)
		}
	}
	k.repost(ctx, channel, lines)
}

func (k *StickyKeeper) repost(ctx context.Context, channel core.ChannelID, lines []string) {
	id, err := k.messenger.Post(ctx, channel, strings.Join(lines, "\n"))
	if err != nil {
		k.logger.Warn("sticky post failed", "channel", channel, "error", err)
		return
	}
	if err := k.store.SetStickyMessage(ctx, channel, id); err != nil {
		k.logger.Warn("sticky record failed", "channel", channel, "error", err)
	}
}
