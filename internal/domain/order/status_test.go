package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusRefunded, true},
		{StatusPending, StatusShipped, false},
		{StatusPending, StatusDelivered, false},

		{StatusConfirmed, StatusProcessing, true},
		{StatusConfirmed, StatusShipped, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusPending, false},
		{StatusConfirmed, StatusDelivered, false},

		{StatusProcessing, StatusShipped, true},
		{StatusProcessing, StatusDelivered, true},
		{StatusProcessing, StatusRefunded, true},
		{StatusProcessing, StatusConfirmed, false},

		{StatusShipped, StatusDelivered, true},
		{StatusShipped, StatusCancelled, true},
		{StatusShipped, StatusProcessing, false},

		// Terminal states permit nothing, including self-loops.
		{StatusDelivered, StatusDelivered, false},
		{StatusDelivered, StatusRefunded, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusRefunded, StatusCancelled, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{
		StatusPending, StatusConfirmed, StatusProcessing,
		StatusShipped, StatusDelivered, StatusCancelled, StatusRefunded,
	} {
		assert.True(t, s.Valid(), "%s", s)
	}
	assert.False(t, Status("completed").Valid())
	assert.False(t, Status("").Valid())
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusRefunded.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusShipped.Terminal())
	assert.False(t, Status("bogus").Terminal())
}

func TestPaymentMethodValid(t *testing.T) {
	assert.True(t, MethodCOD.Valid())
	assert.True(t, MethodGateway.Valid())
	assert.False(t, PaymentMethod("bkash").Valid())
	assert.False(t, PaymentMethod("").Valid())
}
