package status

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"duplicate", ErrDuplicateApplication, ErrConflict},
		{"wrapped claim", fmt.Errorf("claim: %w", ErrTicketAlreadyClaimed), ErrConflict},
		{"window", ErrTicketWindow, ErrOutOfWindow},
		{"field", Invalid("circle.name", "required"), ErrInvalidArgument},
		{"negative", ErrNegativeValue, ErrInvalidArgument},
		{"missing target is integrity first", ErrPaymentWithoutTarget, ErrIntegrity},
		{"mismatch", ErrAmountMismatch, ErrIntegrity},
		{"failed payment has no kind", ErrFailedPayment, nil},
		{"foreign", errors.New("boom"), nil},
		{"nil", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestPaymentWithoutTargetIsAlsoNotFound(t *testing.T) {
	assert.ErrorIs(t, ErrPaymentWithoutTarget, ErrNotFound)
	assert.ErrorIs(t, ErrPaymentWithoutTarget, ErrIntegrity)
}

func TestFieldError(t *testing.T) {
	err := fmt.Errorf("payload: %w", Invalid("space_id", "required"))

	var fe *FieldError
	assert.True(t, errors.As(err, &fe))
	assert.Equal(t, "space_id", fe.Field)
	assert.Equal(t, "invalid argument: space_id: required", fe.Error())
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
