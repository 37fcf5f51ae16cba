package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"treeguardian/core"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the Tree Guardian HTTP + WebSocket API.
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

// StartSession runs the day check. An empty today lets the server use its clock.
func (c *Client) StartSession(ctx context.Context, playerID, today string) (SessionResult, error) {
	var out SessionResult
	body := map[string]string{}
	if today != "" {
		body["today"] = today
	}
	err := c.post(ctx, playerID, "/sessions", body, &out)
	return out, err
}

// RecordIdentification submits an identification. A nil points lets the
// server apply its base reward.
func (c *Client) RecordIdentification(ctx context.Context, playerID, species string, confidence float64, points *int64) (IdentificationResult, error) {
	var out IdentificationResult
	body := map[string]any{"species": species, "confidence": confidence}
	if points != nil {
		body["points"] = *points
	}
	err := c.post(ctx, playerID, "/identifications", body, &out)
	return out, err
}

// RecordDiagnosis sets the health of a collected species and returns the updated record.
func (c *Client) RecordDiagnosis(ctx context.Context, playerID, species string, healthy bool) (SpeciesRecord, error) {
	var out struct {
		Record SpeciesRecord `json:"record"`
	}
	err := c.post(ctx, playerID, "/diagnoses", map[string]any{"species": species, "healthy": healthy}, &out)
	return out.Record, err
}

// GetPlayer fetches the profile, stats and mission of a player.
func (c *Client) GetPlayer(ctx context.Context, playerID string) (Player, error) {
	var out Player
	err := c.get(ctx, playerID, "", nil, &out)
	return out, err
}

// Collection lists a player's species; health is "", "all", "healthy" or "diseased".
func (c *Client) Collection(ctx context.Context, playerID, health string) ([]SpeciesRecord, error) {
	var out []SpeciesRecord
	q := url.Values{}
	if health != "" {
		q.Set("health", health)
	}
	err := c.get(ctx, playerID, "/collection", q, &out)
	return out, err
}

// Achievements lists the catalog with the player's progress.
func (c *Client) Achievements(ctx context.Context, playerID string) ([]Achievement, error) {
	var out []Achievement
	err := c.get(ctx, playerID, "/achievements", nil, &out)
	return out, err
}

// Leaderboard returns the top limit players.
func (c *Client) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	u := c.baseURL + "/leaderboard"
	if limit > 0 {
		u += "?limit=" + strconv.Itoa(limit)
	}
	var out []LeaderboardEntry
	err := c.do(ctx, http.MethodGet, u, nil, &out)
	return out, err
}

func (c *Client) playerURL(playerID, suffix string) (string, error) {
	if strings.TrimSpace(playerID) == "" {
		return "", ErrEmptyPlayerID
	}
	return fmt.Sprintf("%s/players/%s%s", c.baseURL, url.PathEscape(playerID), suffix), nil
}

func (c *Client) post(ctx context.Context, playerID, suffix string, body, out any) error {
	u, err := c.playerURL(playerID, suffix)
	if err != nil {
		return err
	}
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, u, b, out)
}

func (c *Client) get(ctx context.Context, playerID, suffix string, q url.Values, out any) error {
	u, err := c.playerURL(playerID, suffix)
	if err != nil {
		return err
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return c.do(ctx, http.MethodGet, u, nil, out)
}

func (c *Client) do(ctx context.Context, method, u string, body []byte, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, out)
}

// Health probes /healthz and returns status + storage check.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var hs HealthStatus
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/healthz", nil, &hs); err != nil {
		return HealthStatus{}, err
	}
	return hs, nil
}

// SubscribeEvents connects to the WebSocket stream and emits core.Event values.
// A non-empty playerID limits the stream to that player. The returned channel
// closes when ctx is done or the connection drops.
func (c *Client) SubscribeEvents(ctx context.Context, playerID string) (<-chan core.Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	target := c.wsURL
	if playerID != "" {
		target += "?player=" + url.QueryEscape(playerID)
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, target, c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan core.Event, 32)
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()
	go func() {
		defer close(out)
		defer close(stop)
		defer conn.Close()
		for {
			var evt core.Event
			if err := conn.ReadJSON(&evt); err != nil {
				return
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			default:
				// drop if consumer is slow
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
