package online

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"circle-system/internal/services/bank"
	"circle-system/internal/status"
	"circle-system/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	GrantTypeDefaultStr = "client_credentials"

	sessionsPath = "/v1/checkout/sessions"
)

var ErrUnauthorized = errors.New("online: unauthorized")

// notifyAccessTokenExpired renews the access token on a fixed period, or
// early when a request came back 401, retrying with exponential back-off.
func (c *Client) notifyAccessTokenExpired(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-c.toggleTokenRefresher:
			slog.Info("online checkout token refresh requested")
		}

		backOff := time.Second

	Retry:
		for {
			token, err := c.connect(ctx)
			switch err {
			case nil:
				c.setAccessToken(token)
				break Retry

			default:
				slog.Warn("online checkout token refresh failed", "error", err, "retryIn", backOff)

				select {
				case <-ctx.Done():
					return
				case <-time.After(backOff):
					backOff *= 2
				}
			}
		}
	}
}

func (c *Client) setAccessToken(accessToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = accessToken
}

func (c *Client) getAccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// requestRefresh never blocks; a pending request is enough.
func (c *Client) requestRefresh() {
	select {
	case c.toggleTokenRefresher <- struct{}{}:
	default:
	}
}

// connect exchanges the client credentials for an access token.
func (c *Client) connect(ctx context.Context) (string, error) {
	query := url.Values{"grant_type": []string{GrantTypeDefaultStr}}
	body := strings.NewReader(query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AccessTokenURL, body)
	if err != nil {
		return "", fmt.Errorf("connect: http.NewRequestWithContext: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("connect: hc.Do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", fmt.Errorf("connect: %w: check client credentials", ErrUnauthorized)
	}
	if resp.StatusCode != http.StatusOK {
		rbody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("connect: resp.StatusCode: %d, resp.Body: %s", resp.StatusCode, rbody)
	}

	var reply struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("connect: json.Decode: %w", err)
	}
	if reply.AccessToken == "" {
		return "", errors.New("connect: empty access token")
	}

	return fmt.Sprintf("%s %s", reply.TokenType, reply.AccessToken), nil
}

type (
	sessionReq struct {
		MerchantID  string          `json:"merchantId"`
		Amount      decimal.Decimal `json:"amount"`
		Currency    string          `json:"currency"`
		Reference1  string          `json:"ref1"`
		Reference2  string          `json:"ref2"`
		Description string          `json:"metadata,omitempty"`
		ReturnURL   string          `json:"returnUrl"`
		ExpiresAt   int64           `json:"expiresAt"`
	}

	sessionReply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			SessionID   string `json:"sessionId"`
			CheckoutURL string `json:"checkoutUrl"`
		} `json:"dataResponse"`
	}

	TxReply struct {
		Status       string       `json:"status"`
		Message      string       `json:"message"`
		DataResponse DataResponse `json:"dataResponse"`
	}

	DataResponse struct {
		SessionID       string          `json:"sessionId"`
		PaymentIntentID string          `json:"paymentIntentId"`
		PaymentStatus   string          `json:"paymentStatus"`
		Amount          decimal.Decimal `json:"amount"`
		Currency        string          `json:"currency"`
		CardBrand       string          `json:"cardBrand"`
		PaidAt          string          `json:"paidAt"`
	}
)

func (c *Client) createSession(ctx context.Context, q *sessionReq) (*sessionReply, error) {
	b, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("createSession: json.Marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+sessionsPath, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("createSession: http.NewRequestWithContext: %w", err)
	}
	c.setHeaders(req, uuid.NewString(), b)

	var reply sessionReply
	if err := c.do(req, "createSession", &reply); err != nil {
		return nil, err
	}
	if reply.Status != "00" {
		return nil, fmt.Errorf("createSession: reply.Status: %v, reply.Message: %v", reply.Status, reply.Message)
	}
	if reply.Data.CheckoutURL == "" {
		return nil, errors.New("createSession: reply has no checkout url")
	}
	return &reply, nil
}

// checkTransaction reads the session state from the gateway.
func (c *Client) checkTransaction(ctx context.Context, sessionID string) (*bank.Transaction, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("checkTransaction: %w", status.Invalid("session_id", "required"))
	}

	endpoint := fmt.Sprintf("%s%s/%s", c.cfg.BaseURL, sessionsPath, url.PathEscape(sessionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("checkTransaction: http.NewRequestWithContext: %w", err)
	}
	c.setHeaders(req, uuid.NewString(), nil)

	var reply TxReply
	if err := c.do(req, "checkTransaction", &reply); err != nil {
		return nil, err
	}

	if reply.Status != "00" {
		slog.Warn("checkout inquiry rejected", "sessionID", sessionID, "status", reply.Status, "message", reply.Message)
		if reply.Message == "SESSION_NOT_FOUND" {
			return nil, fmt.Errorf("checkTransaction: session %s: %w", sessionID, status.ErrNotFound)
		}
		return nil, fmt.Errorf("checkTransaction: reply.Status: %v, reply.Message: %v", reply.Status, reply.Message)
	}

	d := reply.DataResponse
	tx := &bank.Transaction{
		SessionID:       d.SessionID,
		PaymentIntentID: d.PaymentIntentID,
		Status:          ParsePaymentStatus(d.PaymentStatus),
		Amount:          d.Amount,
		Currency:        d.Currency,
		CardBrand:       d.CardBrand,
	}
	if d.PaidAt != "" {
		if t, err := time.Parse(time.RFC3339, d.PaidAt); err == nil {
			tx.PaidAt = t
		}
	}
	return tx, nil
}

// do sends req and decodes a 200 reply into out. A 401 triggers an early
// token refresh.
func (c *Client) do(req *http.Request, fn string, out any) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s: hc.Do: %w", fn, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.requestRefresh()
		return fmt.Errorf("%s: %w", fn, ErrUnauthorized)
	}
	if resp.StatusCode != http.StatusOK {
		rbody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: resp.StatusCode: %d, resp.Body: %s", fn, resp.StatusCode, rbody)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: json.Decode: %w", fn, err)
	}
	return nil
}

// ParsePaymentStatus maps gateway states onto payment statuses. Unknown
// states stay pending.
func ParsePaymentStatus(s string) models.PaymentStatus {
	switch strings.ToUpper(s) {
	case "PAID", "SUCCEEDED":
		return models.PaymentPaid
	case "REFUNDED":
		return models.PaymentRefunded
	case "FAILED":
		return models.PaymentFailure
	case "CANCELED", "CANCELLED", "EXPIRED":
		return models.PaymentCanceled
	}
	return models.PaymentPending
}
