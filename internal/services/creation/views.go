package creation

import (
	"context"
	"errors"
	"fmt"

	"circle-system/internal/services/lifecycle"
	"circle-system/internal/services/target"
	"circle-system/internal/status"
	"circle-system/models"
)

// PaymentDetail is a payment with its interpreted status and display target.
type PaymentDetail struct {
	Payment *models.Payment      `json:"payment"`
	View    lifecycle.PaymentView `json:"view"`
	Target  target.Target        `json:"target"`
}

type ApplicationDetail struct {
	Application *models.Application `json:"application"`
	Owner       lifecycle.OwnerView `json:"owner"`
	Payment     *PaymentDetail      `json:"payment"`
}

type TicketDetail struct {
	Ticket  *models.Ticket      `json:"ticket"`
	Holder  *models.TicketUser  `json:"holder"`
	Owner   lifecycle.OwnerView `json:"owner"`
	Payment *PaymentDetail      `json:"payment,omitempty"`
}

// ApplicationByHash loads an application of userID together with its payment.
func (s *Service) ApplicationByHash(ctx context.Context, hashID, userID string) (*ApplicationDetail, error) {
	ref, err := s.hashes.Resolve(ctx, models.NamespaceApplication, hashID)
	if err != nil {
		return nil, err
	}
	app, err := s.store.GetApplication(ctx, ref.InternalID)
	if err != nil {
		return nil, s.dangling("application_hash", ref, err)
	}
	if app.UserID != userID {
		return nil, fmt.Errorf("%w: application %s", status.ErrNotFound, hashID)
	}

	p, err := s.store.FindPaymentByOwner(ctx, models.KindApplication, app.ID)
	if err != nil {
		return nil, s.dangling("application_payment", ref, err)
	}
	owner, err := lifecycle.InterpretOwner(app.Status, p.Status)
	if err != nil {
		s.integrity("application_view", err, "applicationID", app.ID)
		return nil, err
	}
	detail, err := s.paymentDetail(ctx, p, app.Status)
	if err != nil {
		return nil, err
	}
	return &ApplicationDetail{Application: app, Owner: owner, Payment: detail}, nil
}

// TicketByHash is visible to the purchaser and the holder. Only the purchaser
// sees the payment.
func (s *Service) TicketByHash(ctx context.Context, hashID, userID string) (*TicketDetail, error) {
	ref, err := s.hashes.Resolve(ctx, models.NamespaceTicket, hashID)
	if err != nil {
		return nil, err
	}
	tk, err := s.store.GetTicket(ctx, ref.InternalID)
	if err != nil {
		return nil, s.dangling("ticket_hash", ref, err)
	}
	holder, err := s.store.GetTicketUser(ctx, tk.ID)
	if err != nil {
		return nil, s.dangling("ticket_user", ref, err)
	}
	purchaser := tk.CreatedUserID == userID
	if !purchaser && holder.UsableUserID != userID {
		return nil, fmt.Errorf("%w: ticket %s", status.ErrNotFound, hashID)
	}

	p, err := s.store.FindPaymentByOwner(ctx, models.KindTicket, tk.ID)
	if err != nil {
		return nil, s.dangling("ticket_payment", ref, err)
	}
	owner, err := lifecycle.InterpretOwner(tk.Status, p.Status)
	if err != nil {
		s.integrity("ticket_view", err, "ticketID", tk.ID)
		return nil, err
	}

	out := &TicketDetail{Ticket: tk, Holder: holder, Owner: owner}
	if purchaser {
		if out.Payment, err = s.paymentDetail(ctx, p, tk.Status); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// PaymentByHash loads one payment of userID.
func (s *Service) PaymentByHash(ctx context.Context, hashID, userID string) (*PaymentDetail, error) {
	p, err := s.paymentForUser(ctx, hashID, userID)
	if err != nil {
		return nil, err
	}
	owner, err := s.ownerStatus(ctx, p)
	if err != nil {
		return nil, err
	}
	return s.paymentDetail(ctx, p, owner)
}

// PaymentsForUser lists the payments of userID, newest first. A row whose
// status tuple or target cannot be interpreted is shown with the support
// action instead of failing the list.
func (s *Service) PaymentsForUser(ctx context.Context, userID string) ([]*PaymentDetail, error) {
	payments, err := s.store.ListPaymentsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	targets, err := s.targets.ResolveAll(ctx, payments)
	if err != nil {
		return nil, err
	}

	out := make([]*PaymentDetail, 0, len(payments))
	for i, p := range payments {
		d := &PaymentDetail{Payment: p, Target: targets[i], View: lifecycle.PaymentView{Action: lifecycle.ActionContactSupport}}
		if owner, err := s.ownerStatus(ctx, p); err == nil {
			if view, err := lifecycle.Interpret(p, owner); err == nil {
				d.View = view
			} else {
				s.integrity("payment_list", err, "paymentID", p.ID)
			}
		} else if status.Kind(err) != status.ErrIntegrity {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *Service) paymentDetail(ctx context.Context, p *models.Payment, owner models.ApplicationStatus) (*PaymentDetail, error) {
	view, err := lifecycle.Interpret(p, owner)
	if err != nil {
		s.integrity("payment_view", err, "paymentID", p.ID)
		return nil, err
	}
	t, err := s.targets.ResolveTarget(ctx, p)
	if err != nil {
		return nil, err
	}
	return &PaymentDetail{Payment: p, View: view, Target: t}, nil
}

func (s *Service) ownerStatus(ctx context.Context, p *models.Payment) (models.ApplicationStatus, error) {
	switch p.Kind() {
	case models.KindApplication:
		app, err := s.store.GetApplication(ctx, p.ApplicationID)
		if err != nil {
			return 0, s.ownerLookupFailed(p, err)
		}
		return app.Status, nil
	case models.KindTicket:
		tk, err := s.store.GetTicket(ctx, p.TicketID)
		if err != nil {
			return 0, s.ownerLookupFailed(p, err)
		}
		return tk.Status, nil
	}
	err := p.Validate()
	s.integrity("payment_owner", err, "paymentID", p.ID)
	return 0, err
}

// dangling turns a missing record behind a minted hash into an integrity error.
func (s *Service) dangling(source string, ref *models.HashRef, err error) error {
	if errors.Is(err, status.ErrNotFound) {
		s.integrity(source, err, "hashID", ref.HashID)
		return fmt.Errorf("%w: %s %s: %w", status.ErrIntegrity, ref.Namespace, ref.HashID, err)
	}
	return err
}
