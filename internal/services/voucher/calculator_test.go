package voucher

import (
	"testing"

	"circle-system/internal/status"
	"circle-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 { return &v }

func TestCalculatePaymentAmount_Scenarios(t *testing.T) {
	tests := []struct {
		name    string
		price   int64
		voucher *int64
		want    Amount
	}{
		{"partial discount", 5000, ptr(2000), Amount{SpaceAmount: 5000, VoucherAmount: ptr(2000), PaymentAmount: 3000}},
		{"over coverage clamps", 3000, ptr(5000), Amount{SpaceAmount: 3000, VoucherAmount: ptr(3000), PaymentAmount: 0}},
		{"exact coverage", 3000, ptr(3000), Amount{SpaceAmount: 3000, VoucherAmount: ptr(3000), PaymentAmount: 0}},
		{"zero voucher", 3000, ptr(0), Amount{SpaceAmount: 3000, VoucherAmount: ptr(0), PaymentAmount: 3000}},
		{"no voucher", 4200, nil, Amount{SpaceAmount: 4200, PaymentAmount: 4200}},
		{"free space", 0, ptr(1000), Amount{SpaceAmount: 0, VoucherAmount: ptr(0), PaymentAmount: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculatePaymentAmount(tt.price, tt.voucher)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalculatePaymentAmount_NeverNegative(t *testing.T) {
	for price := int64(0); price <= 10000; price += 250 {
		noVoucher, err := CalculatePaymentAmount(price, nil)
		require.NoError(t, err)
		assert.Equal(t, price, noVoucher.PaymentAmount)
		assert.Nil(t, noVoucher.VoucherAmount)

		for v := int64(0); v <= 12000; v += 500 {
			got, err := CalculatePaymentAmount(price, &v)
			require.NoError(t, err)
			assert.Equal(t, max(0, price-v), got.PaymentAmount, "price=%d voucher=%d", price, v)
			assert.GreaterOrEqual(t, got.PaymentAmount, int64(0))
			assert.Equal(t, got.SpaceAmount-got.Discount(), got.PaymentAmount)
		}
	}
}

func TestCalculatePaymentAmount_RejectsNegative(t *testing.T) {
	_, err := CalculatePaymentAmount(-1, nil)
	assert.ErrorIs(t, err, status.ErrInvalidArgument)

	_, err = CalculatePaymentAmount(100, ptr(-5))
	assert.ErrorIs(t, err, status.ErrInvalidArgument)
}

func TestForVoucher(t *testing.T) {
	full := &models.Voucher{ID: "v-full"}
	for _, price := range []int64{0, 1, 3000, 999999} {
		got, err := ForVoucher(price, full)
		require.NoError(t, err)
		assert.Equal(t, int64(0), got.PaymentAmount, "full coverage at price %d", price)
		assert.True(t, got.Covered())
		assert.Equal(t, models.MethodVoucher, got.EffectiveMethod(models.MethodOnline))
	}

	got, err := ForVoucher(5000, &models.Voucher{ID: "v", Amount: ptr(2000)})
	require.NoError(t, err)
	assert.Equal(t, int64(3000), got.PaymentAmount)
	assert.Equal(t, models.MethodBankTransfer, got.EffectiveMethod(models.MethodBankTransfer))

	got, err = ForVoucher(5000, nil)
	require.NoError(t, err)
	assert.Nil(t, got.VoucherAmount)
	assert.Equal(t, int64(0), got.Discount())
}

func BenchmarkCalculatePaymentAmount(b *testing.B) {
	v := int64(2000)
	for i := 0; i < b.N; i++ {
		_, _ = CalculatePaymentAmount(5000, &v)
	}
}
