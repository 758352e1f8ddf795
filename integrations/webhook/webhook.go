package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"guildbot/core"
	"guildbot/engine"
)

// Sink delivers announcements, feed notifications and raw engine events to a
// chat-platform webhook endpoint. It renders {user} and {channel}
// placeholders before posting, and is synchronous so callers decide about
// buffering.
type Sink struct {
	client *http.Client
	url    string
}

// Option configures a Sink.
type Option func(*Sink)

// WithClient overrides the HTTP client (defaults to a 10s timeout).
func WithClient(c *http.Client) Option {
	return func(s *Sink) {
		if c != nil {
			s.client = c
		}
	}
}

// WithTimeout overrides the default client timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Sink) {
		if d > 0 {
			s.client.Timeout = d
		}
	}
}

// New creates a webhook sink for one endpoint URL.
func New(url string, opts ...Option) (*Sink, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("webhook url cannot be empty")
	}
	s := &Sink{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    url,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RenderTemplate substitutes {user} and {channel} placeholders.
func RenderTemplate(tpl string, user core.UserID, channel core.ChannelID) string {
	out := strings.ReplaceAll(tpl, "{user}", mention(user))
	return strings.ReplaceAll(out, "{channel}", string(channel))
}

func mention(user core.UserID) string {
	if user == "" {
		return ""
	}
	return "<@" + string(user) + ">"
}

type announcementPayload struct {
	Kind    string `json:"kind"`
	Channel string `json:"channel"`
	Title   string `json:"title,omitempty"`
	Body    string `json:"body"`
	Mention string `json:"mention,omitempty"`
}

// Announce posts a rendered announcement payload.
func (s *Sink) Announce(ctx context.Context, a engine.Announcement) error {
	payload := announcementPayload{
		Kind:    "announcement",
		Channel: string(a.Channel),
		Title:   a.Title,
		Body:    RenderTemplate(a.Body, a.Mention, a.Channel),
		Mention: mention(a.Mention),
	}
	return s.post(ctx, payload)
}

type feedPayload struct {
	Kind  string `json:"kind"`
	Feed  string `json:"feed"`
	Item  string `json:"item_id"`
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
}

// NotifyFeedItem posts a new-feed-item payload.
func (s *Sink) NotifyFeedItem(ctx context.Context, n engine.FeedNotification) error {
	payload := feedPayload{
		Kind:  "feed_item",
		Feed:  n.FeedKey,
		Item:  n.Item.ID,
		Title: n.Item.Title,
		URL:   n.Item.URL,
	}
	return s.post(ctx, payload)
}

type welcomePayload struct {
	Kind    string `json:"kind"`
	Channel string `json:"channel"`
	Body    string `json:"body"`
	User    string `json:"user"`
}

// Welcome posts a member-join greeting rendered from the template.
func (s *Sink) Welcome(ctx context.Context, channel core.ChannelID, template string, user core.UserID) error {
	payload := welcomePayload{
		Kind:    "welcome",
		Channel: string(channel),
		Body:    RenderTemplate(template, user, channel),
		User:    string(user),
	}
	return s.post(ctx, payload)
}

// OnEvent forwards a raw engine event. Suitable as an event bus subscriber;
// delivery failures are swallowed so the bus never stalls.
func (s *Sink) OnEvent(ctx context.Context, e core.Event) {
	_ = s.post(ctx, e)
}

func (s *Sink) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}
	return nil
}

var _ engine.Announcer = (*Sink)(nil)
var _ engine.FeedNotifier = (*Sink)(nil)
