// Package target resolves the Application or Ticket a Payment pays for into
// something a payment list can display.
package target

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"circle-system/internal/status"
	"circle-system/models"
)

const (
	FallbackApplicationLabel = "Application (unavailable)"
	FallbackTicketLabel      = "Ticket (unavailable)"
	FallbackSupportLabel     = "Please contact support"
)

// Store is the subset of the record store the resolver reads.
type Store interface {
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	GetSpace(ctx context.Context, id string) (*models.Space, error)
	GetTicket(ctx context.Context, id string) (*models.Ticket, error)
	GetTicketStore(ctx context.Context, id string) (*models.TicketStore, error)
	GetTicketType(ctx context.Context, id string) (*models.TicketType, error)
}

type IntegrityRecorder interface {
	RecordIntegrity(source string)
}

// Target is the display form of a payment's owner. Resolved is false when a
// record on the lookup path is missing and DisplayName holds a fallback label.
type Target struct {
	Kind        models.TargetKind `json:"kind"`
	DisplayName string            `json:"display_name"`
	HashID      string            `json:"hash_id,omitempty"`
	Resolved    bool              `json:"resolved"`
}

type Resolver struct {
	store    Store
	recorder IntegrityRecorder
}

func NewResolver(store Store, recorder IntegrityRecorder) *Resolver {
	return &Resolver{store: store, recorder: recorder}
}

// ResolveTarget follows Application→Event or Ticket→Store→Type. Missing
// records along the way yield a fallback label; a payment without any
// target fails with status.ErrPaymentWithoutTarget.
func (r *Resolver) ResolveTarget(ctx context.Context, p *models.Payment) (Target, error) {
	switch p.Kind() {
	case models.KindApplication:
		return r.resolveApplication(ctx, p.ApplicationID)
	case models.KindTicket:
		return r.resolveTicket(ctx, p.TicketID)
	}

	if p.ApplicationID == "" && p.TicketID == "" {
		return Target{}, fmt.Errorf("payment %s: %w", p.ID, status.ErrPaymentWithoutTarget)
	}
	return Target{}, fmt.Errorf("payment %s: %w", p.ID, status.ErrPaymentBothTargets)
}

func (r *Resolver) resolveApplication(ctx context.Context, id string) (Target, error) {
	t := Target{Kind: models.KindApplication, DisplayName: FallbackApplicationLabel}

	app, err := r.store.GetApplication(ctx, id)
	if err != nil {
		return unresolved(t, err)
	}
	t.HashID = app.HashID

	ev, err := r.store.GetEvent(ctx, app.EventID)
	if err != nil {
		return unresolved(t, err)
	}

	parts := []string{ev.Name}
	if sp, err := r.store.GetSpace(ctx, app.SpaceID); err == nil {
		parts = append(parts, sp.Name)
	} else if !errors.Is(err, status.ErrNotFound) {
		return Target{}, err
	}
	parts = append(parts, app.Circle.Name)

	t.DisplayName = joinNonEmpty(parts)
	t.Resolved = true
	return t, nil
}

func (r *Resolver) resolveTicket(ctx context.Context, id string) (Target, error) {
	t := Target{Kind: models.KindTicket, DisplayName: FallbackTicketLabel}

	tk, err := r.store.GetTicket(ctx, id)
	if err != nil {
		return unresolved(t, err)
	}
	t.HashID = tk.HashID

	st, err := r.store.GetTicketStore(ctx, tk.StoreID)
	if err != nil {
		return unresolved(t, err)
	}
	tt, err := r.store.GetTicketType(ctx, tk.TypeID)
	if err != nil {
		return unresolved(t, err)
	}

	t.DisplayName = joinNonEmpty([]string{st.Name, tt.Name})
	t.Resolved = true
	return t, nil
}

func unresolved(t Target, err error) (Target, error) {
	if errors.Is(err, status.ErrNotFound) {
		return t, nil
	}
	return Target{}, err
}

func joinNonEmpty(parts []string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " / ")
}

// ResolveAll resolves a list view. Integrity violations are logged and
// rendered with the support label instead of failing the list.
func (r *Resolver) ResolveAll(ctx context.Context, payments []*models.Payment) ([]Target, error) {
	out := make([]Target, 0, len(payments))
	for _, p := range payments {
		t, err := r.ResolveTarget(ctx, p)
		if err != nil {
			if !errors.Is(err, status.ErrIntegrity) {
				return nil, err
			}
			slog.Error("payment has no resolvable target", "kind", "integrity", "paymentID", p.ID, "error", err)
			if r.recorder != nil {
				r.recorder.RecordIntegrity("payment_target")
			}
			t = Target{DisplayName: FallbackSupportLabel}
		}
		out = append(out, t)
	}
	return out, nil
}
