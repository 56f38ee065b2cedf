package voucher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"circle-system/internal/status"
	"circle-system/models"
)

type HashResolver interface {
	Resolve(ctx context.Context, ns models.Namespace, hashID string) (*models.HashRef, error)
}

type Store interface {
	GetVoucher(ctx context.Context, id string) (*models.Voucher, error)
}

// Resolver turns a human-entered code into the voucher it stands for.
type Resolver struct {
	hashes HashResolver
	store  Store
}

func NewResolver(hashes HashResolver, store Store) *Resolver {
	return &Resolver{hashes: hashes, store: store}
}

// Lookup returns the voucher for code, or the reason it cannot be used.
// targetType and scopeID select the event or ticket store; subID the space or ticket type.
func (r *Resolver) Lookup(ctx context.Context, targetType models.VoucherTarget, scopeID, subID, code string) (*models.Voucher, error) {
	ref, err := r.hashes.Resolve(ctx, models.NamespaceVoucherCode, code)
	if err != nil {
		return nil, err
	}

	v, err := r.store.GetVoucher(ctx, ref.InternalID)
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			slog.Error("voucher code points at a missing voucher", "kind", "integrity", "voucherID", ref.InternalID)
			return nil, fmt.Errorf("%w: voucher code %s dangles", status.ErrIntegrity, ref.HashID)
		}
		return nil, err
	}

	if err := Check(v, targetType, scopeID, subID); err != nil {
		return nil, err
	}
	return v, nil
}

// ResolveVoucherCode is the lookup contract used by the wizard: an unusable
// code is reported as nil, not as an error.
func (r *Resolver) ResolveVoucherCode(ctx context.Context, targetType models.VoucherTarget, scopeID, typeID, code string) (*models.Voucher, error) {
	v, err := r.Lookup(ctx, targetType, scopeID, typeID, code)
	switch {
	case err == nil:
		return v, nil
	case errors.Is(err, status.ErrNotFound), errors.Is(err, status.ErrConflict), errors.Is(err, status.ErrInvalidArgument):
		return nil, nil
	default:
		return nil, err
	}
}

// Check validates that v can be redeemed for the selection right now.
func Check(v *models.Voucher, targetType models.VoucherTarget, scopeID, subID string) error {
	if !v.AppliesTo(targetType, scopeID, subID) {
		return status.ErrVoucherNotApplicable
	}
	if v.Exhausted() {
		return status.ErrVoucherExhausted
	}
	return nil
}
