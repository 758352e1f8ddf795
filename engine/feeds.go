package engine

import (
	"context"
	"log/slog"
	"time"
)

// FeedItem is one entry of a polled social feed, newest first.
type FeedItem struct {
	ID    string
	Title string
	URL   string
}

// FeedSource is one pollable social feed (a video channel, a live stream
// listing). Key must be stable across restarts; it keys the persisted
// last-seen state. Fetching internals stay behind this boundary.
type FeedSource interface {
	Key() string
	Latest(ctx context.Context) ([]FeedItem, error)
}

// FeedNotification is emitted for every item newer than the persisted
// last-seen marker.
type FeedNotification struct {
	FeedKey string
	Item    FeedItem
}

// FeedNotifier receives new-item notifications (typically a webhook sink).
type FeedNotifier interface {
	NotifyFeedItem(ctx context.Context, n FeedNotification) error
}

// FeedPoller walks registered feed sources and announces items not yet
// seen, persisting the newest id per feed so restarts never re-announce.
type FeedPoller struct {
	store    FeedStateStore
	notifier FeedNotifier
	sources  []FeedSource
	logger   *slog.Logger
	Interval time.Duration
}

func NewFeedPoller(store FeedStateStore, notifier FeedNotifier, logger *slog.Logger, sources ...FeedSource) *FeedPoller {
	if store == nil {
		panic("NewFeedPoller requires non-nil store")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedPoller{store: store, notifier: notifier, sources: sources, logger: logger, Interval: 5 * time.Minute}
}

// Poll fetches every source once. A fetch or notify failure for one source
// never blocks the others, and the last-seen marker only advances after the
// notification went out.
func (p *FeedPoller) Poll(ctx context.Context) {
	for _, src := range p.sources {
		if err := p.pollOne(ctx, src); err != nil {
			p.logger.Warn("feed poll failed", "feed", src.Key(), "error", err)
		}
	}
}

func (p *FeedPoller) pollOne(ctx context.Context, src FeedSource) error {
	items, err := src.Latest(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	lastSeen, known, err := p.store.GetLastSeen(ctx, src.Key())
	if err != nil {
		return err
	}

	// First contact: record the newest item silently so an empty state
	// never floods the channel with history.
	if !known {
		return p.store.SetLastSeen(ctx, src.Key(), items[0].ID)
	}

	// Announce new items oldest-first up to the previously seen one.
	var fresh []FeedItem
	for _, it := range items {
		if it.ID == lastSeen {
			break
		}
		fresh = append(fresh, it)
	}
	for i := len(fresh) - 1; i >= 0; i-- {
		it := fresh[i]
		if p.notifier != nil {
			if err := p.notifier.NotifyFeedItem(ctx, FeedNotification{FeedKey: src.Key(), Item: it}); err != nil {
				return err
			}
		}
		if err := p.store.SetLastSeen(ctx, src.Key(), it.ID); err != nil {
			return err
		}
	}
	return nil
}

// Run polls on the configured interval until ctx is cancelled.
func (p *FeedPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.Poll(ctx)
		case <-ctx.Done():
			return
		}
	}
}
