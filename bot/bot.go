package bot

import (
	"context"
	"log/slog"
	"time"

	mem "guildbot/adapters/memory"
	"guildbot/core"
	"guildbot/engine"
	"guildbot/realtime"
)

// Store is the full persistence surface the bot needs. Every storage
// adapter in this module satisfies it.
type Store interface {
	engine.Storage
	engine.BirthdayStore
	engine.StickyStore
	engine.FeedStateStore
}

// WelcomeRule configures the member-join greeting.
type WelcomeRule struct {
	Enabled bool
	Channel core.ChannelID
	Message string
}

// Config carries the policy for every subsystem the facade assembles.
type Config struct {
	Leveling  engine.LevelingConfig
	Counting  engine.CountingConfig
	Voice     engine.VoiceConfig
	Birthdays engine.BirthdayConfig
	Nicknames engine.NicknameConfig
	Sticky    engine.StickyConfig
	Welcome   WelcomeRule

	FeedPollInterval time.Duration
}

// Option configures the bot builder.
type Option func(*options)

type options struct {
	store     Store
	mode      engine.DispatchMode
	roles     engine.RoleManager
	announcer engine.Announcer
	messenger engine.Messenger
	presence  engine.Presence
	notifier  engine.FeedNotifier
	sources   []engine.FeedSource
	hub       *realtime.Hub
	logger    *slog.Logger
}

// WithStore sets the persistence adapter.
func WithStore(s Store) Option { return func(o *options) { o.store = s } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(o *options) { o.mode = m } }

// WithRoleManager sets the chat-platform role boundary.
func WithRoleManager(r engine.RoleManager) Option { return func(o *options) { o.roles = r } }

// WithAnnouncer sets the announcement sink.
func WithAnnouncer(a engine.Announcer) Option { return func(o *options) { o.announcer = a } }

// WithMessenger sets the plain-message boundary (required for stickies).
func WithMessenger(m engine.Messenger) Option { return func(o *options) { o.messenger = m } }

// WithPresence sets the voice occupancy oracle.
func WithPresence(p engine.Presence) Option { return func(o *options) { o.presence = p } }

// WithFeedNotifier sets the sink for new feed items.
func WithFeedNotifier(n engine.FeedNotifier) Option { return func(o *options) { o.notifier = n } }

// WithFeedSources registers pollable social feeds.
func WithFeedSources(srcs ...engine.FeedSource) Option {
	return func(o *options) { o.sources = append(o.sources, srcs...) }
}

// WithRealtime wires a realtime hub to receive all engine events.
func WithRealtime(h *realtime.Hub) Option { return func(o *options) { o.hub = h } }

// WithLogger sets the logger shared by all subsystems.
func WithLogger(lg *slog.Logger) Option { return func(o *options) { o.logger = lg } }

// Bot bundles every engagement subsystem behind gateway-shaped entry points:
// message, voice update, member join, plus the periodic Run loop.
type Bot struct {
	Leveling  *engine.Leveling
	Counting  *engine.Counting
	Voice     *engine.VoiceTracker
	Birthdays *engine.BirthdayTracker
	Nicknames *engine.NicknameManager
	Sticky    *engine.StickyKeeper
	Feeds     *engine.FeedPoller
	Bus       *engine.EventBus
	Store     Store

	welcome   WelcomeRule
	announcer engine.Announcer
	logger    *slog.Logger
}

// New assembles a Bot. Defaults: in-memory storage, async dispatch,
// slog.Default(). The announcer, messenger, roles, presence, and feed
// collaborators are optional; subsystems degrade the way the engine
// documents when they are absent.
func New(cfg Config, opts ...Option) *Bot {
	o := &options{mode: engine.DispatchAsync, logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if o.store == nil {
		o.store = mem.New()
	}

	bus := engine.NewEventBus(o.mode)
	if o.hub != nil {
		bus.SubscribeAll(func(ctx context.Context, e core.Event) { o.hub.Broadcast(ctx, e) })
	}

	leveling := engine.NewLeveling(cfg.Leveling, o.store,
		engine.WithRoleManager(o.roles),
		engine.WithAnnouncer(o.announcer),
		engine.WithEventBus(bus),
		engine.WithLogger(o.logger),
	)
	counting := engine.NewCounting(cfg.Counting, o.store,
		engine.CountingWithXPApplier(leveling),
		engine.CountingWithRoleSyncer(leveling),
		engine.CountingWithAnnouncer(o.announcer),
		engine.CountingWithEventBus(bus),
		engine.CountingWithLogger(o.logger),
	)
	voice := engine.NewVoiceTracker(cfg.Voice, o.store,
		engine.VoiceWithXPApplier(leveling),
		engine.VoiceWithPresence(o.presence),
		engine.VoiceWithLogger(o.logger),
	)
	birthdays := engine.NewBirthdayTracker(cfg.Birthdays, o.store, o.roles, o.announcer, o.logger)
	nicknames := engine.NewNicknameManager(cfg.Nicknames, o.store)

	b := &Bot{
		Leveling:  leveling,
		Counting:  counting,
		Voice:     voice,
		Birthdays: birthdays,
		Nicknames: nicknames,
		Bus:       bus,
		Store:     o.store,
		welcome:   cfg.Welcome,
		announcer: o.announcer,
		logger:    o.logger,
	}
	if o.messenger != nil {
		b.Sticky = engine.NewStickyKeeper(cfg.Sticky, o.store, o.messenger, o.logger)
	}
	if len(o.sources) > 0 {
		b.Feeds = engine.NewFeedPoller(o.store, o.notifier, o.logger, o.sources...)
		if cfg.FeedPollInterval > 0 {
			b.Feeds.Interval = cfg.FeedPollInterval
		}
	}
	return b
}

// HandleMessage routes one chat message: the counting channel goes to the
// counting game, everything else earns message XP, and stickies refresh
// either way.
func (b *Bot) HandleMessage(ctx context.Context, msg core.Message) error {
	var err error
	if msg.Channel != "" && msg.Channel == b.Counting.Channel() {
		err = b.Counting.HandleMessage(ctx, msg)
	} else {
		err = b.Leveling.HandleMessage(ctx, msg)
	}
	if b.Sticky != nil {
		b.Sticky.HandleMessage(ctx, msg)
	}
	return err
}

// HandleVoiceUpdate forwards a voice join/leave/move to the tracker.
func (b *Bot) HandleVoiceUpdate(ctx context.Context, user core.UserID, joinedEligible bool, now time.Time) error {
	return b.Voice.HandleVoiceUpdate(ctx, user, joinedEligible, now)
}

// HandleMemberJoin greets the new member and publishes the join event.
func (b *Bot) HandleMemberJoin(ctx context.Context, user core.UserID) {
	if b.welcome.Enabled && b.welcome.Channel != "" && b.announcer != nil {
		a := engine.Announcement{
			Channel: b.welcome.Channel,
			Body:    b.welcome.Message,
			Mention: user,
		}
		if err := b.announcer.Announce(ctx, a); err != nil {
			b.logger.Warn("welcome announcement failed", "user", user, "error", err)
		}
	}
	b.Bus.Publish(ctx, core.NewMemberJoined(user))
}

// Run drives the periodic loops (voice settle, power-up window, birthdays,
// feed polling) until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	if b.Sticky != nil {
		b.Sticky.EnsureAll(ctx)
	}
	if b.Feeds != nil {
		go b.Feeds.Run(ctx)
	}

	voiceTick := time.Minute
	if s := b.Voice.TickSeconds(); s > 0 {
		voiceTick = time.Duration(s) * time.Second
	}
	voice := time.NewTicker(voiceTick)
	housekeeping := time.NewTicker(time.Minute)
	defer voice.Stop()
	defer housekeeping.Stop()

	for {
		select {
		case now := <-voice.C:
			b.Voice.Tick(ctx, now)
		case now := <-housekeeping.C:
			b.Counting.TickPowerUp(ctx, now)
			if err := b.Birthdays.Tick(ctx, now); err != nil {
				b.logger.Warn("birthday tick failed", "error", err)
			}
		case <-ctx.Done():
			b.Bus.Close()
			return
		}
	}
}
