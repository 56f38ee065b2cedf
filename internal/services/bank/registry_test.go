package bank

import (
	"context"
	"errors"
	"testing"
	"time"

	"circle-system/internal/status"
	"circle-system/models"
	"circle-system/utils"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockGateway struct {
	mock.Mock
	provider Provider
}

func (m *mockGateway) GetProvider() Provider { return m.provider }

func (m *mockGateway) CreateCheckout(ctx context.Context, req *CheckoutRequest) (*Checkout, error) {
	args := m.Called(req)
	if co, ok := args.Get(0).(*Checkout); ok {
		return co, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) CheckTransaction(ctx context.Context, sessionID string) (*Transaction, error) {
	args := m.Called(sessionID)
	if tx, ok := args.Get(0).(*Transaction); ok {
		return tx, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) Close(ctx context.Context) error {
	return m.Called().Error(0)
}

func TestRegistry_RoutesByMethod(t *testing.T) {
	online := &mockGateway{provider: ProviderOnline}
	transfer := &mockGateway{provider: ProviderTransfer}

	r := NewRegistry(nil, utils.Settings{})
	require.NoError(t, r.Register(models.MethodOnline, online))
	require.NoError(t, r.Register(models.MethodBankTransfer, transfer))
	assert.Error(t, r.Register(models.MethodVoucher, online))

	req := &CheckoutRequest{PaymentHashID: "p", TransferCode: "1", Amount: AmountOf(100)}
	online.On("CreateCheckout", req).Return(&Checkout{Provider: ProviderOnline, URL: "https://pay"}, nil).Once()

	co, err := r.CreateCheckout(context.Background(), models.MethodOnline, req)
	require.NoError(t, err)
	assert.Equal(t, "https://pay", co.URL)
	transfer.AssertNotCalled(t, "CreateCheckout", mock.Anything)

	_, err = r.CreateCheckout(context.Background(), models.MethodVoucher, req)
	assert.Error(t, err)
}

func TestRegistry_UnregisteredMethodIsInvalid(t *testing.T) {
	r := NewRegistry(nil, utils.Settings{})
	require.NoError(t, r.Register(models.MethodBankTransfer, &mockGateway{provider: ProviderTransfer}))

	_, err := r.CreateCheckout(context.Background(), models.MethodOnline, &CheckoutRequest{PaymentHashID: "p"})
	assert.ErrorIs(t, err, status.ErrInvalidArgument)
	var fe *status.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "payment_method", fe.Field)

	_, err = r.CheckTransaction(context.Background(), models.MethodOnline, "cs_1")
	assert.ErrorIs(t, err, status.ErrInvalidArgument)
}

func TestRegistry_ManualReconciliationDoesNotTripBreaker(t *testing.T) {
	transfer := &mockGateway{provider: ProviderTransfer}
	transfer.On("CheckTransaction", "s").Return(nil, ErrManualReconciliation)

	r := NewRegistry(nil, utils.Settings{MinRequests: 1, FailureRatio: 0.1})
	require.NoError(t, r.Register(models.MethodBankTransfer, transfer))

	for i := 0; i < 3; i++ {
		_, err := r.CheckTransaction(context.Background(), models.MethodBankTransfer, "s")
		assert.ErrorIs(t, err, ErrManualReconciliation)
	}
	assert.Equal(t, utils.StateClosed, r.breakers[models.MethodBankTransfer].State())
}

func TestRegistry_BreakerOpensOnFailures(t *testing.T) {
	online := &mockGateway{provider: ProviderOnline}
	boom := errors.New("gateway down")
	online.On("CheckTransaction", "s").Return(nil, boom)

	r := NewRegistry(nil, utils.Settings{MinRequests: 2, FailureRatio: 0.5, Timeout: time.Minute})
	require.NoError(t, r.Register(models.MethodOnline, online))

	for i := 0; i < 2; i++ {
		_, err := r.CheckTransaction(context.Background(), models.MethodOnline, "s")
		assert.ErrorIs(t, err, boom)
	}

	_, err := r.CheckTransaction(context.Background(), models.MethodOnline, "s")
	assert.ErrorIs(t, err, utils.ErrOpenState)
	online.AssertNumberOfCalls(t, "CheckTransaction", 2)
}

func TestRegistry_CloseJoinsErrors(t *testing.T) {
	a := &mockGateway{provider: ProviderOnline}
	b := &mockGateway{provider: ProviderTransfer}
	a.On("Close").Return(errors.New("a failed"))
	b.On("Close").Return(nil)

	r := NewRegistry(nil, utils.Settings{})
	require.NoError(t, r.Register(models.MethodOnline, a))
	require.NoError(t, r.Register(models.MethodBankTransfer, b))

	assert.ErrorContains(t, r.Close(context.Background()), "a failed")
	b.AssertCalled(t, "Close")
}

func TestAmountOf(t *testing.T) {
	assert.True(t, AmountOf(3000).Equal(decimal.NewFromInt(3000)))
}
