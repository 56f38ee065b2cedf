package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"circle-system/internal/services/bank/online"
	"circle-system/internal/services/creation"
	"circle-system/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

const (
	SignatureHeader = "X-Checkout-Signature"
	maxWebhookBody  = 64 << 10
)

type PaymentHandler struct {
	creation   *creation.Service
	webhookKey string
}

func NewPaymentHandler(creation *creation.Service, webhookKey string) *PaymentHandler {
	return &PaymentHandler{
		creation:   creation,
		webhookKey: webhookKey,
	}
}

// ListPayments - payment history of the caller
func (h *PaymentHandler) ListPayments(e *core.RequestEvent) error {
	userID, err := requireAuth(e)
	if err != nil {
		return err
	}

	payments, err := h.creation.PaymentsForUser(e.Request.Context(), userID)
	if err != nil {
		return toAPIError("PaymentHandler.ListPayments", err)
	}
	return e.JSON(http.StatusOK, map[string]any{"payments": payments})
}

func (h *PaymentHandler) GetPayment(e *core.RequestEvent) error {
	userID, err := requireAuth(e)
	if err != nil {
		return err
	}

	detail, err := h.creation.PaymentByHash(e.Request.Context(), e.Request.PathValue("hashId"), userID)
	if err != nil {
		return toAPIError("PaymentHandler.GetPayment", err)
	}
	return e.JSON(http.StatusOK, detail)
}

// CompleteCheckout - the page the payer returns to after checkout
func (h *PaymentHandler) CompleteCheckout(e *core.RequestEvent) error {
	userID, err := requireAuth(e)
	if err != nil {
		return err
	}

	ctx := e.Request.Context()
	hashID := e.Request.PathValue("hashId")

	// the payer may be back before the webhook
	if _, err := h.creation.SyncPayment(ctx, hashID, userID); err != nil {
		return toAPIError("PaymentHandler.CompleteCheckout", err)
	}

	res, err := h.creation.CompleteCheckout(ctx, hashID, userID)
	if err != nil {
		return toAPIError("PaymentHandler.CompleteCheckout", err)
	}
	return e.JSON(http.StatusOK, res)
}

// CheckoutWebhook reconciles a provider notification. The body must carry a
// valid HMAC signature.
func (h *PaymentHandler) CheckoutWebhook(e *core.RequestEvent) error {
	body, err := io.ReadAll(io.LimitReader(e.Request.Body, maxWebhookBody))
	if err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	if !online.VerifySignature(h.webhookKey, body, e.Request.Header.Get(SignatureHeader)) {
		slog.Warn("checkout webhook with bad signature", "remoteAddr", e.Request.RemoteAddr)
		return apis.NewUnauthorizedError("invalid signature", nil)
	}

	var n models.PaymentNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	p, err := h.creation.Reconcile(e.Request.Context(), n)
	if err != nil {
		return toAPIError("PaymentHandler.CheckoutWebhook", err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"status":          "success",
		"payment_hash_id": p.HashID,
		"payment_status":  p.Status,
	})
}
