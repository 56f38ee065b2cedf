package creation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"circle-system/internal/repository"
	"circle-system/internal/services/bank"
	"circle-system/internal/services/lifecycle"
	"circle-system/internal/status"
	"circle-system/models"
)

// ClaimTicket makes userID the holder of the ticket behind ticketHash. The
// first claimer wins; a repeated claim by the holder is a no-op.
func (s *Service) ClaimTicket(ctx context.Context, ticketHash, userID string) (tu *models.TicketUser, err error) {
	defer func() {
		result := "claimed"
		switch {
		case errors.Is(err, status.ErrTicketAlreadyClaimed):
			result = "already_claimed"
		case err != nil:
			result = resultLabel(err)
		}
		s.monitor.TrackTicketClaim(result)
	}()

	if userID == "" {
		return nil, status.Invalid("user_id", "required")
	}
	ref, err := s.hashes.Resolve(ctx, models.NamespaceTicket, ticketHash)
	if err != nil {
		return nil, err
	}
	tk, err := s.store.GetTicket(ctx, ref.InternalID)
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			s.integrity("ticket_hash", err, "hashID", ref.HashID)
			return nil, fmt.Errorf("%w: ticket hash %s dangles", status.ErrIntegrity, ref.HashID)
		}
		return nil, err
	}
	if tk.Status != models.ApplicationConfirmed {
		return nil, fmt.Errorf("%w: ticket %s is %s", status.ErrIllegalTransition, ref.HashID, tk.Status)
	}

	current, err := s.store.GetTicketUser(ctx, tk.ID)
	if err != nil {
		return nil, err
	}
	if current.UsableUserID == userID {
		return current, nil
	}

	tu, err = s.store.ClaimTicketUser(ctx, tk.ID, userID, s.now())
	if err != nil {
		return nil, err
	}
	if tk.CreatedUserID != userID {
		s.notifier.TicketClaimed(ctx, tk.CreatedUserID, ref.HashID)
	}
	return tu, nil
}

// CompletionResult is the completion page outcome. RunPostPaymentAction is
// true for exactly one call per payment.
type CompletionResult struct {
	PaymentHashID        string                    `json:"payment_hash_id"`
	State                lifecycle.CompletionState `json:"state"`
	RunPostPaymentAction bool                      `json:"run_post_payment_action"`
}

// CompleteCheckout evaluates the completion page for the payer and closes the
// checkout when the table asks for the post-payment action.
func (s *Service) CompleteCheckout(ctx context.Context, paymentHash, userID string) (*CompletionResult, error) {
	p, err := s.paymentForUser(ctx, paymentHash, userID)
	if err != nil {
		return nil, err
	}

	view, err := lifecycle.InterpretCompletion(p.Status, p.CheckoutStatus)
	if err != nil {
		s.integrity("completion", err, "paymentID", p.ID)
		return &CompletionResult{PaymentHashID: p.HashID, State: lifecycle.CompletionContactSupport}, nil
	}

	res := &CompletionResult{PaymentHashID: p.HashID, State: view.State}
	if !view.PostPaymentAction {
		return res, nil
	}

	closed, err := s.store.CloseCheckout(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if !closed {
		res.State = lifecycle.CompletionAlreadyCompleted
		return res, nil
	}
	res.RunPostPaymentAction = true
	return res, nil
}

// paymentForUser hides payments of other users behind NotFound.
func (s *Service) paymentForUser(ctx context.Context, paymentHash, userID string) (*models.Payment, error) {
	ref, err := s.hashes.Resolve(ctx, models.NamespacePayment, paymentHash)
	if err != nil {
		return nil, err
	}
	p, err := s.store.GetPayment(ctx, ref.InternalID)
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			s.integrity("payment_hash", err, "hashID", ref.HashID)
			return nil, fmt.Errorf("%w: payment hash %s dangles", status.ErrIntegrity, ref.HashID)
		}
		return nil, err
	}
	if p.UserID != userID {
		return nil, fmt.Errorf("%w: payment %s", status.ErrNotFound, paymentHash)
	}
	return p, nil
}

// SyncPayment asks the gateway about a pending online payment so a payer who
// returns before the webhook sees the settled state. Gateway failures leave
// the stored payment as it is.
func (s *Service) SyncPayment(ctx context.Context, paymentHash, userID string) (*models.Payment, error) {
	p, err := s.paymentForUser(ctx, paymentHash, userID)
	if err != nil {
		return nil, err
	}
	if s.txs == nil || p.Status != models.PaymentPending || p.Method != models.MethodOnline || p.CheckoutSessionID == "" {
		return p, nil
	}

	tx, err := s.txs.CheckTransaction(ctx, p.Method, p.CheckoutSessionID)
	if err != nil {
		if !errors.Is(err, bank.ErrManualReconciliation) {
			slog.Warn("check transaction failed", "paymentHashID", p.HashID, "error", err)
		}
		return p, nil
	}
	if tx.Status == p.Status {
		return p, nil
	}
	if tx.Status == models.PaymentPaid && !tx.Amount.Equal(bank.AmountOf(p.PaymentAmount)) {
		s.integrity("transaction_amount", status.ErrAmountMismatch, "paymentID", p.ID, "amount", tx.Amount.String())
		return nil, fmt.Errorf("payment %s: %w", p.HashID, status.ErrAmountMismatch)
	}

	return s.Reconcile(ctx, models.PaymentNotification{
		PaymentHashID:   p.HashID,
		PaymentIntentID: tx.PaymentIntentID,
		CardBrand:       tx.CardBrand,
		Status:          tx.Status,
		Timestamp:       tx.PaidAt,
	})
}

// Reconcile applies a gateway or bank-transfer notification. Replaying the
// same notification is a no-op.
func (s *Service) Reconcile(ctx context.Context, n models.PaymentNotification) (*models.Payment, error) {
	p, _, err := s.reconcile(ctx, n)
	return p, err
}

// ReconcileTransfer applies one bank-statement row and reports whether the
// payment changed.
func (s *Service) ReconcileTransfer(ctx context.Context, code string, st models.PaymentStatus, at time.Time) (*models.Payment, bool, error) {
	if strings.TrimSpace(code) == "" {
		return nil, false, status.Invalid("bank_transfer_code", "required")
	}
	return s.reconcile(ctx, models.PaymentNotification{BankTransferCode: code, Status: st, Timestamp: at})
}

func (s *Service) reconcile(ctx context.Context, n models.PaymentNotification) (*models.Payment, bool, error) {
	if !n.Status.Valid() {
		return nil, false, status.Invalid("status", "unknown payment status")
	}

	found, err := s.findNotifiedPayment(ctx, n)
	if err != nil {
		return nil, false, err
	}

	var (
		p         *models.Payment
		changed   bool
		ownerHash string
	)
	err = s.store.RunInTx(ctx, func(tx repository.Store) error {
		// writers are serialized, so this read is the status being replaced
		current, err := tx.GetPayment(ctx, found.ID)
		if err != nil {
			return err
		}
		p = current
		if p.Status == n.Status {
			return nil
		}
		if !lifecycle.CanTransitionPayment(p.Status, n.Status) {
			return fmt.Errorf("%w: payment %s from %s to %s", status.ErrIllegalTransition, p.HashID, p.Status, n.Status)
		}
		changed = true

		p.Status = n.Status
		if n.PaymentIntentID != "" {
			p.PaymentIntentID = n.PaymentIntentID
		}
		if n.CardBrand != "" {
			p.CardBrand = n.CardBrand
		}
		if n.Status == models.PaymentPaid {
			at := s.now()
			if !n.Timestamp.IsZero() {
				at = n.Timestamp
			}
			p.PurchasedAt = &at
			if lifecycle.CanTransitionCheckout(p.CheckoutStatus, models.CheckoutCompleted) {
				p.CheckoutStatus = models.CheckoutCompleted
			}
		}
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}

		next, ok := lifecycle.OwnerAfterPayment(n.Status)
		if !ok {
			return nil
		}
		hash, err := s.moveOwner(ctx, tx, p, next)
		ownerHash = hash
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if !changed {
		return p, false, nil
	}

	s.monitor.TrackReconciliation(p.Status.String())
	if p.Status == models.PaymentPaid {
		s.notifier.PaymentConfirmed(ctx, p.UserID, p.HashID, string(p.Kind()), ownerHash)
	} else {
		s.notifier.PaymentFailed(ctx, p.UserID, p.HashID, p.Status.String())
	}
	return p, true, nil
}

func (s *Service) findNotifiedPayment(ctx context.Context, n models.PaymentNotification) (*models.Payment, error) {
	switch {
	case n.PaymentHashID != "":
		ref, err := s.hashes.Resolve(ctx, models.NamespacePayment, n.PaymentHashID)
		if err != nil {
			return nil, err
		}
		return s.store.GetPayment(ctx, ref.InternalID)
	case n.BankTransferCode != "":
		return s.store.FindPaymentByTransferCode(ctx, strings.TrimSpace(n.BankTransferCode))
	case n.SessionID != "":
		return s.store.FindPaymentBySession(ctx, n.SessionID)
	}
	return nil, status.Invalid("notification", "payment hash, transfer code or session id required")
}

// moveOwner applies the owner status a payment status leads to. An owner
// that cannot follow is logged as an integrity problem but does not undo the
// payment update.
func (s *Service) moveOwner(ctx context.Context, tx repository.Store, p *models.Payment, next models.ApplicationStatus) (string, error) {
	switch p.Kind() {
	case models.KindApplication:
		app, err := tx.GetApplication(ctx, p.ApplicationID)
		if err != nil {
			return "", s.ownerLookupFailed(p, err)
		}
		if !s.ownerCanMove(p, app.Status, next) {
			return app.HashID, nil
		}
		app.Status = next
		return app.HashID, tx.UpdateApplication(ctx, app)

	case models.KindTicket:
		tk, err := tx.GetTicket(ctx, p.TicketID)
		if err != nil {
			return "", s.ownerLookupFailed(p, err)
		}
		if !s.ownerCanMove(p, tk.Status, next) {
			return tk.HashID, nil
		}
		tk.Status = next
		return tk.HashID, tx.UpdateTicket(ctx, tk)
	}

	err := p.Validate()
	s.integrity("reconcile", err, "paymentID", p.ID)
	return "", err
}

func (s *Service) ownerCanMove(p *models.Payment, from, to models.ApplicationStatus) bool {
	if from == to {
		return false
	}
	if !lifecycle.CanTransitionOwner(from, to) {
		s.integrity("reconcile", status.ErrIllegalTransition, "paymentID", p.ID, "owner", from.String(), "next", to.String())
		return false
	}
	return true
}

func (s *Service) ownerLookupFailed(p *models.Payment, err error) error {
	if errors.Is(err, status.ErrNotFound) {
		s.integrity("reconcile", err, "paymentID", p.ID)
		return fmt.Errorf("%w: payment %s owner missing", status.ErrIntegrity, p.ID)
	}
	slog.Error("load payment owner", "paymentID", p.ID, "error", err)
	return err
}
