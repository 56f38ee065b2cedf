package voucher

import (
	"circle-system/internal/status"
	"circle-system/models"
)

// Amount is the outcome of applying a voucher to a price. VoucherAmount is nil
// when no voucher was applied.
type Amount struct {
	SpaceAmount   int64  `json:"space_amount"`
	VoucherAmount *int64 `json:"voucher_amount"`
	PaymentAmount int64  `json:"payment_amount"`
}

// CalculatePaymentAmount applies voucherAmount to price. The discount is capped
// at the price so the payment amount is never negative.
func CalculatePaymentAmount(price int64, voucherAmount *int64) (Amount, error) {
	if price < 0 {
		return Amount{}, status.ErrNegativeValue
	}
	if voucherAmount == nil {
		return Amount{SpaceAmount: price, PaymentAmount: price}, nil
	}
	if *voucherAmount < 0 {
		return Amount{}, status.ErrNegativeValue
	}

	discount := min(*voucherAmount, price)
	return Amount{
		SpaceAmount:   price,
		VoucherAmount: &discount,
		PaymentAmount: price - discount,
	}, nil
}

// ForVoucher applies v to price. A nil voucher means no discount; a voucher
// without an amount covers the whole price.
func ForVoucher(price int64, v *models.Voucher) (Amount, error) {
	switch {
	case v == nil:
		return CalculatePaymentAmount(price, nil)
	case v.FullCoverage():
		return CalculatePaymentAmount(price, &price)
	default:
		return CalculatePaymentAmount(price, v.Amount)
	}
}

// Discount is the amount actually taken off, zero without a voucher.
func (a Amount) Discount() int64 {
	if a.VoucherAmount == nil {
		return 0
	}
	return *a.VoucherAmount
}

// Covered reports whether nothing is left to pay.
func (a Amount) Covered() bool {
	return a.PaymentAmount == 0
}

// EffectiveMethod forces the voucher method when nothing is left to pay.
func (a Amount) EffectiveMethod(selected models.PaymentMethod) models.PaymentMethod {
	if a.Covered() {
		return models.MethodVoucher
	}
	return selected
}
