// Package online is the card checkout gateway. It authenticates with client
// credentials and signs every mutating request with HMAC-SHA256.
package online

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"circle-system/internal/services/bank"
)

var _ bank.Gateway = (*Client)(nil)

type (
	Config struct {
		BaseURL        string `json:"base_url"`
		AccessTokenURL string `json:"access_token_url"`

		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`

		MerchantID string `json:"merchant_id"`
		KeyID      string `json:"key_id"`
		HMACKey    string `json:"hmac_key"`

		// ReturnURL receives the payer after checkout; the payment hash id is appended.
		ReturnURL string `json:"return_url"`
		Currency  string `json:"currency"`

		// SessionTTL bounds how long a checkout session stays payable.
		SessionTTL time.Duration `json:"session_ttl"`

		// RefreshInterval is how often the access token is renewed.
		RefreshInterval time.Duration `json:"refresh_interval"`
	}

	Client struct {
		cfg Config

		// accessToken is sent as the Authorization header.
		accessToken string
		mu          sync.Mutex

		// toggleTokenRefresher asks the refresher to renew the token now.
		toggleTokenRefresher chan struct{}

		cancel context.CancelFunc
		done   chan struct{}

		hc  *http.Client
		now func() time.Time
	}
)

// New authenticates and starts the token refresher. hc may be nil.
func New(ctx context.Context, cfg Config, hc *http.Client) (*Client, error) {
	if cfg.Currency == "" {
		cfg.Currency = "JPY"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 3 * time.Minute
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}

	c := &Client{
		cfg:                  cfg,
		toggleTokenRefresher: make(chan struct{}, 1),
		done:                 make(chan struct{}),
		hc:                   hc,
		now:                  time.Now,
	}

	token, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	c.setAccessToken(token)

	refreshCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.notifyAccessTokenExpired(refreshCtx)

	return c, nil
}

func (c *Client) GetProvider() bank.Provider {
	return bank.ProviderOnline
}

func (c *Client) CreateCheckout(ctx context.Context, req *bank.CheckoutRequest) (*bank.Checkout, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("CreateCheckout: amount %s is not positive", req.Amount)
	}
	currency := req.Currency
	if currency == "" {
		currency = c.cfg.Currency
	}

	expires := c.now().Add(c.cfg.SessionTTL)
	session, err := c.createSession(ctx, &sessionReq{
		MerchantID:  c.cfg.MerchantID,
		Amount:      req.Amount,
		Currency:    currency,
		Reference1:  req.PaymentHashID,
		Reference2:  req.TransferCode,
		Description: req.Description,
		ReturnURL:   fmt.Sprintf("%s/%s/complete", c.cfg.ReturnURL, req.PaymentHashID),
		ExpiresAt:   expires.Unix(),
	})
	if err != nil {
		return nil, err
	}

	return &bank.Checkout{
		Provider:  bank.ProviderOnline,
		SessionID: session.SessionID,
		URL:       session.CheckoutURL,
		Amount:    req.Amount,
		ExpiresAt: expires,
	}, nil
}

func (c *Client) CheckTransaction(ctx context.Context, sessionID string) (*bank.Transaction, error) {
	return c.checkTransaction(ctx, sessionID)
}

// Close stops the token refresher.
func (c *Client) Close(ctx context.Context) error {
	c.cancel()
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
