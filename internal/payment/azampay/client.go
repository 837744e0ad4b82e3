// Package azampay implements the outbound AzamPay gateway port: app token
// authentication plus the MNO checkout call that triggers the mobile-money
// prompt on the customer's phone. The result of a checkout arrives later,
// asynchronously, on the webhook endpoint.
package azampay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/safaricrafts/order-core/internal/payment"
)

type Config struct {
	AuthURL      string
	CheckoutURL  string
	AppName      string
	ClientID     string
	ClientSecret string
}

type Client struct {
	cfg  Config
	http *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
}

var _ payment.Gateway = (*Client)(nil)

func New(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Checkout dispatches an MNO checkout. ExternalID is our payment UUID and
// comes back on the webhook as the correlation id.
func (c *Client) Checkout(ctx context.Context, req payment.CheckoutRequest) (payment.CheckoutResponse, error) {
	token, err := c.getToken(ctx)
	if err != nil {
		return payment.CheckoutResponse{}, err
	}

	body := map[string]any{
		"accountNumber": req.AccountNumber,
		"amount":        strconv.FormatInt(req.Amount, 10),
		"currency":      req.Currency,
		"externalId":    req.ExternalID,
		"provider":      req.Provider,
	}

	var resp struct {
		Success       bool   `json:"success"`
		TransactionID string `json:"transactionId"`
		Message       string `json:"message"`
	}
	if err := c.post(ctx, c.cfg.CheckoutURL+"/azampay/mno/checkout", token, body, &resp); err != nil {
		return payment.CheckoutResponse{}, fmt.Errorf("azampay checkout: %w", err)
	}
	if !resp.Success {
		return payment.CheckoutResponse{}, fmt.Errorf("azampay checkout rejected: %s", resp.Message)
	}

	return payment.CheckoutResponse{
		TransactionID: resp.TransactionID,
		Message:       resp.Message,
	}, nil
}

// getToken returns a cached app token, refreshing when within a minute of
// expiry.
func (c *Client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Until(c.expires) > time.Minute {
		return c.token, nil
	}

	body := map[string]any{
		"appName":      c.cfg.AppName,
		"clientId":     c.cfg.ClientID,
		"clientSecret": c.cfg.ClientSecret,
	}

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			AccessToken string `json:"accessToken"`
			Expire      string `json:"expire"`
		} `json:"data"`
	}
	if err := c.post(ctx, c.cfg.AuthURL+"/AppRegistration/GenerateToken", "", body, &resp); err != nil {
		return "", fmt.Errorf("azampay auth: %w", err)
	}
	if !resp.Success || resp.Data.AccessToken == "" {
		return "", fmt.Errorf("azampay auth failed")
	}

	c.token = resp.Data.AccessToken
	c.expires = time.Now().Add(50 * time.Minute)
	if t, err := time.Parse(time.RFC3339, resp.Data.Expire); err == nil {
		c.expires = t
	}

	return c.token, nil
}

func (c *Client) post(ctx context.Context, url, token string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
