package handlers

import (
	"net/http"
	"strings"
	"time"

	"circle-system/internal/services/creation"
	"circle-system/internal/status"
	"circle-system/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// AdminHandler serves back-office operations. Routes are expected to be
// guarded with apis.RequireSuperuserAuth.
type AdminHandler struct {
	creation *creation.Service
}

func NewAdminHandler(creation *creation.Service) *AdminHandler {
	return &AdminHandler{creation: creation}
}

// transferRow is one bank-statement line. A row without a status reports a
// received transfer.
type transferRow struct {
	BankTransferCode string                `json:"bank_transfer_code"`
	Status           *models.PaymentStatus `json:"status"`
	Timestamp        time.Time             `json:"timestamp"`
}

type transferResult struct {
	BankTransferCode string `json:"bank_transfer_code"`
	PaymentHashID    string `json:"payment_hash_id,omitempty"`
	Result           string `json:"result"`
	Error            string `json:"error,omitempty"`
}

// ImportTransfers reconciles rows of a bank statement by transfer code. One
// bad row does not stop the import; every row gets its own result.
func (h *AdminHandler) ImportTransfers(e *core.RequestEvent) error {
	var req struct {
		Transfers []transferRow `json:"transfers"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if len(req.Transfers) == 0 {
		return apis.NewBadRequestError("no transfers", nil)
	}

	ctx := e.Request.Context()
	results := make([]transferResult, 0, len(req.Transfers))
	applied := 0
	for _, row := range req.Transfers {
		code := strings.TrimSpace(row.BankTransferCode)
		res := transferResult{BankTransferCode: code}

		if code == "" {
			res.Result, res.Error = "invalid", "bank_transfer_code required"
			results = append(results, res)
			continue
		}

		st := models.PaymentPaid
		if row.Status != nil {
			st = *row.Status
		}

		p, changed, err := h.creation.ReconcileTransfer(ctx, code, st, row.Timestamp)
		switch {
		case err == nil && changed:
			res.Result, res.PaymentHashID = "applied", p.HashID
			applied++
		case err == nil:
			res.Result, res.PaymentHashID = "unchanged", p.HashID
		case status.Kind(err) == status.ErrIntegrity:
			res.Result, res.Error = "integrity", "Please contact support"
		default:
			res.Result, res.Error = resultName(err), err.Error()
		}
		results = append(results, res)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"applied": applied,
		"total":   len(req.Transfers),
		"results": results,
	})
}

func resultName(err error) string {
	switch status.Kind(err) {
	case status.ErrNotFound:
		return "not_found"
	case status.ErrConflict:
		return "conflict"
	case status.ErrInvalidArgument:
		return "invalid"
	}
	return "error"
}
