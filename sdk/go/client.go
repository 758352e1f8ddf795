package sdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"guildbot/core"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the guildbot HTTP + WebSocket API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAuthToken adds an Authorization: Bearer token header to all requests (HTTP + WS).
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithAPIKey adds an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// GrantXP adds delta XP to a member and returns the new total.
func (c *Client) GrantXP(ctx context.Context, userID string, delta int64) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, ErrEmptyUserID
	}

	u, err := url.Parse(fmt.Sprintf("%s/users/%s/xp", c.baseURL, url.PathEscape(userID)))
	if err != nil {
		return 0, err
	}
	q := u.Query()
	q.Set("delta", fmt.Sprintf("%d", delta))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
	if err != nil {
		return 0, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var body struct {
		Total int64 `json:"total"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return 0, err
	}
	return body.Total, nil
}

// GetUser fetches the current engagement record for a member.
func (c *Client) GetUser(ctx context.Context, userID string) (UserRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return UserRecord{}, ErrEmptyUserID
	}
	u := fmt.Sprintf("%s/users/%s", c.baseURL, url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return UserRecord{}, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return UserRecord{}, err
	}
	defer resp.Body.Close()

	var rec UserRecord
	if err := decodeJSON(resp, &rec); err != nil {
		return UserRecord{}, err
	}
	return rec, nil
}

// Leaderboard fetches the top members ranked by the given column
// (xp, total_messages, total_voice_seconds, counting_success_rounds).
func (c *Client) Leaderboard(ctx context.Context, by string, limit int) (Leaderboard, error) {
	u, err := url.Parse(c.baseURL + "/leaderboard")
	if err != nil {
		return Leaderboard{}, err
	}
	q := u.Query()
	if by != "" {
		q.Set("by", by)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Leaderboard{}, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Leaderboard{}, err
	}
	defer resp.Body.Close()

	var lb Leaderboard
	if err := decodeJSON(resp, &lb); err != nil {
		return Leaderboard{}, err
	}
	return lb, nil
}

// Health probes /healthz and returns status + storage check.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	u := c.baseURL + "/healthz"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return HealthStatus{}, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return HealthStatus{}, err
	}
	defer resp.Body.Close()

	var hs HealthStatus
	if err := decodeJSON(resp, &hs); err != nil {
		return HealthStatus{}, err
	}
	return hs, nil
}

// SubscribeEvents connects to the WebSocket stream and emits core.Event values.
// The returned channel closes when ctx is done or the connection drops.
func (c *Client) SubscribeEvents(ctx context.Context) (<-chan core.Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan core.Event, 32)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				return
			default:
				var evt core.Event
				if err := conn.ReadJSON(&evt); err != nil {
					return
				}
				select {
				case out <- evt:
				default:
					// drop if consumer is slow
				}
			}
		}
	}()
	return out, nil
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
