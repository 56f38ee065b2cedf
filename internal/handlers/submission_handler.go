package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"circle-system/internal/services/submission"
	"circle-system/internal/services/voucher"
	"circle-system/internal/status"
	"circle-system/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// Catalog prices a selection before it is submitted.
type Catalog interface {
	GetSpace(ctx context.Context, id string) (*models.Space, error)
	GetTicketType(ctx context.Context, id string) (*models.TicketType, error)
}

type SubmissionHandler struct {
	orchestrator *submission.Orchestrator
	creation     submission.CreationEndpoint
	vouchers     submission.VoucherLookup
	catalog      Catalog
}

func NewSubmissionHandler(orchestrator *submission.Orchestrator, creation submission.CreationEndpoint, vouchers submission.VoucherLookup, catalog Catalog) *SubmissionHandler {
	return &SubmissionHandler{
		orchestrator: orchestrator,
		creation:     creation,
		vouchers:     vouchers,
		catalog:      catalog,
	}
}

type submissionRequest struct {
	Credentials   *models.Credentials        `json:"credentials"`
	Profile       models.Profile             `json:"profile"`
	Application   *models.ApplicationPayload `json:"application"`
	Ticket        *models.TicketPayload      `json:"ticket"`
	VoucherCode   string                     `json:"voucher_code"`
	PaymentMethod models.PaymentMethod       `json:"payment_method"`
}

// draft replays the wizard steps in order on the submitted state.
func (h *SubmissionHandler) draft(ctx context.Context, signedIn bool, req submissionRequest) (submission.Draft, error) {
	var d submission.Draft

	creds := req.Credentials
	if signedIn {
		creds = nil
	}
	d, err := submission.WithAccount(d, creds, req.Profile)
	if err != nil {
		return d, err
	}

	switch {
	case req.Application != nil && req.Ticket != nil:
		return d, status.Invalid("kind", "either application or ticket")
	case req.Application != nil:
		space, err := h.catalog.GetSpace(ctx, req.Application.SpaceID)
		if err != nil {
			return d, err
		}
		if d, err = submission.WithApplication(d, *req.Application, space.Price); err != nil {
			return d, err
		}
	case req.Ticket != nil:
		tt, err := h.catalog.GetTicketType(ctx, req.Ticket.TypeID)
		if err != nil {
			return d, err
		}
		if d, err = submission.WithTicket(d, *req.Ticket, tt.Price); err != nil {
			return d, err
		}
	default:
		return d, status.Invalid("kind", "nothing selected")
	}

	if d, err = h.orchestrator.ApplyVoucherCode(ctx, d, req.VoucherCode); err != nil {
		return d, err
	}
	return submission.WithPayment(d, req.PaymentMethod)
}

// Submit runs the whole flow for signed-in and anonymous callers. Anonymous
// callers must send credentials; an account is created for them.
func (h *SubmissionHandler) Submit(e *core.RequestEvent) error {
	var req submissionRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	ctx := e.Request.Context()
	userID := callerID(e)

	d, err := h.draft(ctx, userID != "", req)
	if err != nil {
		return toAPIError("SubmissionHandler.Submit", err)
	}

	out, err := h.orchestrator.Submit(ctx, userID, d)
	if err != nil {
		return toAPIError("SubmissionHandler.Submit", err)
	}
	return e.JSON(http.StatusCreated, out)
}

func (h *SubmissionHandler) CreateApplication(e *core.RequestEvent) error {
	userID, err := requireAuth(e)
	if err != nil {
		return err
	}

	var p models.ApplicationPayload
	if err := e.BindBody(&p); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if p.IdempotencyKey == "" {
		p.IdempotencyKey = e.Request.Header.Get("Idempotency-Key")
	}

	res, err := h.creation.CreateApplication(e.Request.Context(), userID, p)
	if err != nil {
		return toAPIError("SubmissionHandler.CreateApplication", err)
	}
	return e.JSON(http.StatusCreated, res)
}

func (h *SubmissionHandler) CreateTicket(e *core.RequestEvent) error {
	userID, err := requireAuth(e)
	if err != nil {
		return err
	}

	var p models.TicketPayload
	if err := e.BindBody(&p); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if p.IdempotencyKey == "" {
		p.IdempotencyKey = e.Request.Header.Get("Idempotency-Key")
	}

	res, err := h.creation.CreateTicket(e.Request.Context(), userID, p)
	if err != nil {
		return toAPIError("SubmissionHandler.CreateTicket", err)
	}
	return e.JSON(http.StatusCreated, res)
}

// ResolveVoucher previews a code against a selection. An unusable code is
// answered with applicable=false rather than an error.
func (h *SubmissionHandler) ResolveVoucher(e *core.RequestEvent) error {
	q := e.Request.URL.Query()

	targetType := models.VoucherTarget(q.Get("targetType"))
	switch targetType {
	case "":
		targetType = models.TargetEvent
	case models.TargetEvent, models.TargetTicketStore:
	default:
		return apis.NewBadRequestError("unknown targetType", nil)
	}
	scopeID, typeID := q.Get("scopeId"), q.Get("typeId")
	code := strings.TrimSpace(q.Get("code"))
	if scopeID == "" || code == "" {
		return apis.NewBadRequestError("scopeId and code are required", nil)
	}

	price, err := strconv.ParseInt(q.Get("price"), 10, 64)
	if err != nil {
		return apis.NewBadRequestError("price must be an integer", nil)
	}

	v, err := h.vouchers.ResolveVoucherCode(e.Request.Context(), targetType, scopeID, typeID, code)
	if err != nil {
		return toAPIError("SubmissionHandler.ResolveVoucher", err)
	}

	amount, err := voucher.ForVoucher(price, v)
	if err != nil {
		return toAPIError("SubmissionHandler.ResolveVoucher", err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"applicable": v != nil,
		"amount":     amount,
		"covered":    amount.Covered(),
	})
}
