// Package classifier talks to the remote tree identification service.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"treeguardian/core"
)

// DefaultBaseURL is the public identification service.
const DefaultBaseURL = "https://tree-game-api.onrender.com"

var (
	// ErrRejected is returned when the service answers success=false.
	ErrRejected = errors.New("classifier rejected the request")
	// ErrUnavailable wraps transport failures and non-2xx health probes.
	ErrUnavailable = errors.New("classifier unavailable")
)

// Option configures the Client.
type Option func(*Client)

// Client is a thin HTTP client for the identification service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func New(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
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

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Identification is the service's answer for an uploaded photo.
type Identification struct {
	Species      string  `json:"species"`
	Confidence   float64 `json:"confidence"`
	PointsEarned *int64  `json:"points_earned,omitempty"`
}

// Input converts the answer into an engine identification.
func (i Identification) Input() core.Identification {
	return core.Identification{Species: i.Species, Confidence: i.Confidence, Points: i.PointsEarned}
}

// Diagnosis is the free-text health report for a photo.
type Diagnosis struct {
	Species string `json:"species"`
	Report  string `json:"diagnosis"`
}

// Healthy reports whether the text describes a healthy plant.
func (d Diagnosis) Healthy() bool { return IsHealthyReport(d.Report) }

// Input converts the report into an engine diagnosis.
func (d Diagnosis) Input() core.Diagnosis {
	return core.Diagnosis{Species: d.Species, IsHealthy: d.Healthy()}
}

// IsHealthyReport matches "healthy" but not "unhealthy" or "not healthy".
func IsHealthyReport(report string) bool {
	r := strings.ToLower(report)
	if strings.Contains(r, "unhealthy") || strings.Contains(r, "not healthy") {
		return false
	}
	return strings.Contains(r, "healthy")
}

// RemoteEntry is one row of the service's global leaderboard.
type RemoteEntry struct {
	User   string `json:"user"`
	Points int64  `json:"points"`
}

type envelope struct {
	Success      bool   `json:"success"`
	Error        string `json:"error"`
	PointsEarned *int64 `json:"points_earned"`
	Info         struct {
		Species    string  `json:"species"`
		Confidence float64 `json:"confidence"`
	} `json:"info"`
	Diagnosis string `json:"diagnosis"`
}

// Identify uploads a photo and returns the recognized species.
func (c *Client) Identify(ctx context.Context, filename string, image io.Reader) (Identification, error) {
	env, err := c.postImage(ctx, "/upload", filename, image, nil)
	if err != nil {
		return Identification{}, err
	}
	if strings.TrimSpace(env.Info.Species) == "" {
		return Identification{}, fmt.Errorf("%w: response has no species", ErrRejected)
	}
	return Identification{Species: env.Info.Species, Confidence: env.Info.Confidence, PointsEarned: env.PointsEarned}, nil
}

// Diagnose asks for a health report of a photo of species.
func (c *Client) Diagnose(ctx context.Context, species, filename string, image io.Reader) (Diagnosis, error) {
	if !core.SupportsHealthCheck(species) {
		return Diagnosis{}, fmt.Errorf("%w: no health model for %q", core.ErrInvalidDiagnosis, species)
	}
	env, err := c.postImage(ctx, "/diagnose", filename, image, map[string]string{"species": species})
	if err != nil {
		return Diagnosis{}, err
	}
	return Diagnosis{Species: species, Report: env.Diagnosis}, nil
}

// Leaderboard fetches the service-wide ranking.
func (c *Client) Leaderboard(ctx context.Context) ([]RemoteEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/leaderboard", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	var out []RemoteEntry
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode leaderboard: %w", err)
	}
	return out, nil
}

// Ping probes /healthz; any 2xx counts as online.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *Client) postImage(ctx context.Context, path, filename string, image io.Reader, fields map[string]string) (envelope, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", filepath.Base(filename))
	if err != nil {
		return envelope{}, err
	}
	if _, err := io.Copy(part, image); err != nil {
		return envelope{}, fmt.Errorf("read image: %w", err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return envelope{}, err
		}
	}
	if err := mw.Close(); err != nil {
		return envelope{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return envelope{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return envelope{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("classifier call", "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return envelope{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
		}
		return envelope{}, fmt.Errorf("decode %s response: %w", path, err)
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return envelope{}, fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	return env, nil
}
