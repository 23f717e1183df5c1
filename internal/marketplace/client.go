// Package marketplace is the client for the seller-partner order API. All
// requests share a token obtained through the refresh-token flow and pass a
// rate limiter sized to the upstream throttle.
package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds marketplace API client configuration
type Config struct {
	AuthEndpoint      string
	APIBaseURL        string
	ClientID          string
	ClientSecret      string
	RefreshToken      string
	MarketplaceID     string
	RequestsPerSecond float64
	RequestTimeout    time.Duration
}

// Order is the subset of the order payload the sync pipeline consumes.
type Order struct {
	OrderID      string    `json:"AmazonOrderId"`
	Status       string    `json:"OrderStatus"`
	PurchaseDate time.Time `json:"PurchaseDate"`
}

// Client calls the seller-partner API.
type Client struct {
	config  *Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient creates a marketplace API client.
func NewClient(config *Config, logger *slog.Logger) *Client {
	rps := config.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}

	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		config:  config,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// token returns a valid access token, refreshing it when missing or expired.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	body, err := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": c.config.RefreshToken,
		"client_id":     c.config.ClientID,
		"client_secret": c.config.ClientSecret,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.AuthEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request failed with status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token response contained no access token")
	}

	expiresIn := tr.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	c.accessToken = tr.AccessToken
	// Refresh one minute early to avoid racing the expiry.
	c.tokenExpiry = time.Now().Add(time.Duration(expiresIn)*time.Second - time.Minute)

	c.logger.Debug("Marketplace access token refreshed",
		slog.Time("expires_at", c.tokenExpiry),
	)

	return c.accessToken, nil
}

// GetOrder fetches one order by its marketplace order ID. The call waits on
// the rate limiter first; dispatch batches are sequential, so the limiter is
// the only pacing mechanism needed.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait aborted: %w", err)
	}

	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/orders/v0/orders/%s", c.config.APIBaseURL, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build order request: %w", err)
	}
	req.Header.Set("x-amz-access-token", token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("order request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read order response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Order fetch rejected by marketplace",
			slog.String("order_id", orderID),
			slog.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("order fetch for %s failed with status %d", orderID, resp.StatusCode)
	}

	var envelope struct {
		Payload Order `json:"payload"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode order response: %w", err)
	}
	if envelope.Payload.OrderID == "" {
		return nil, fmt.Errorf("order %s not present in marketplace response", orderID)
	}

	return &envelope.Payload, nil
}
