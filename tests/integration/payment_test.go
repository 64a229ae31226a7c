//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbancart/api/internal/domain/cart"
	"github.com/urbancart/api/internal/domain/order"
	"github.com/urbancart/api/internal/domain/payment"
	"github.com/urbancart/api/internal/domain/user"
)

// prepaidOrder drives a gateway checkout and returns the pending order.
func prepaidOrder(t *testing.T, e *env) (user.User, *order.Order, int64) {
	t.Helper()
	ctx := context.Background()

	userID := createUser(t, "alice@example.com", "customer")
	mugID := createProduct(t, "mug", "SKU-MUG", "12.50", 5)
	fillCart(t, e, userID, cart.Line{ProductID: mugID, Qty: 2})

	principal := user.User{ID: userID, Email: "alice@example.com", Role: user.RoleCustomer}
	req := order.CheckoutRequest{
		ShippingName:  "Alice",
		Phone:         "01700000000",
		Address:       "12 Lake Road",
		City:          "Dhaka",
		PaymentMethod: order.MethodGateway,
	}
	o, err := e.orderSvc.Checkout(ctx, principal, req)
	require.NoError(t, err)
	require.Equal(t, order.StatusPending, o.Status)
	return principal, o, mugID
}

func TestGatewayCallback_FinalizesOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	principal, o, mugID := prepaidOrder(t, e)

	res, err := e.paymentSvc.Initiate(ctx, principal, o.ID, order.MethodGateway)
	require.NoError(t, err)
	require.NotEmpty(t, res.GatewayURL)
	tranID := res.Payment.TransactionID

	raw := []byte(`{"tran_id":"` + tranID + `","status":"VALID","amount":"85.00"}`)
	require.NoError(t, e.paymentSvc.HandleCallback(ctx, tranID, "VALID", raw))

	stored, err := e.orders.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, stored.Status)
	assert.Equal(t, order.PaymentPaid, stored.PaymentStatus)
	require.NotNil(t, stored.PaidAt)

	// Cart destroyed only at finalization.
	c, err := e.carts.Get(ctx, principal.ID)
	require.NoError(t, err)
	assert.Empty(t, c.Lines)

	// Replay: no second history entry, no state change.
	require.NoError(t, e.paymentSvc.HandleCallback(ctx, tranID, "VALID", raw))
	replayed, err := e.orders.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, replayed.History, len(stored.History))
	assert.Equal(t, 3, productStock(t, mugID))

	// Raw payload preserved verbatim.
	p, err := e.payments.GetByOrderID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPaid, p.Status)
	var rawStored []byte
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT raw_callback FROM payments WHERE id = $1`, p.ID).Scan(&rawStored))
	assert.JSONEq(t, string(raw), string(rawStored))
}

func TestGatewayCallback_UnknownTransaction(t *testing.T) {
	e := newEnv(t)

	err := e.paymentSvc.HandleCallback(context.Background(), "DEMO-404", "VALID", []byte(`{}`))
	assert.ErrorIs(t, err, payment.ErrNotFound)
}

func TestVerifyCode_EndToEnd(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	principal, o, _ := prepaidOrder(t, e)

	require.NoError(t, e.paymentSvc.SendCode(ctx, principal, o.ID, "email", ""))
	code := storedOTPCode(t, o.ID)
	require.Len(t, code, 6)

	verified, err := e.paymentSvc.VerifyCode(ctx, principal, o.ID, code)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, verified.Status)
	assert.Equal(t, order.PaymentPaid, verified.PaymentStatus)

	// Single use.
	_, err = e.paymentSvc.VerifyCode(ctx, principal, o.ID, code)
	assert.ErrorIs(t, err, payment.ErrCodeAlreadyUsed)
}

func TestVerifyCode_WrongCode(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	principal, o, _ := prepaidOrder(t, e)
	require.NoError(t, e.paymentSvc.SendCode(ctx, principal, o.ID, "email", ""))

	code := storedOTPCode(t, o.ID)
	wrong := "000000"
	if code == wrong {
		wrong = "000001"
	}

	_, err := e.paymentSvc.VerifyCode(ctx, principal, o.ID, wrong)
	assert.ErrorIs(t, err, payment.ErrInvalidCode)

	stored, err := e.orders.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, stored.Status)
}

func TestSendCode_CooldownEnforced(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	principal, o, _ := prepaidOrder(t, e)
	require.NoError(t, e.paymentSvc.SendCode(ctx, principal, o.ID, "email", ""))

	err := e.paymentSvc.SendCode(ctx, principal, o.ID, "email", "")
	var limited *payment.RateLimitedError
	require.ErrorAs(t, err, &limited)
	assert.Positive(t, limited.RetryAfter)
}

func TestFinalize_ReacquiresReleasedReservation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	principal, o, mugID := prepaidOrder(t, e)

	// The customer cancels, releasing the reservation.
	_, err := e.orderSvc.Cancel(ctx, principal, o.ID, "accidental tap")
	require.NoError(t, err)
	require.Equal(t, 5, productStock(t, mugID))

	// A late gateway confirmation still arrives. The order is cancelled, so
	// finalize marks it paid without resurrecting the lifecycle state, and the
	// reservation is re-acquired from the frozen snapshot.
	res, err := e.paymentSvc.Initiate(ctx, principal, o.ID, order.MethodGateway)
	require.NoError(t, err)
	require.NoError(t, e.paymentSvc.HandleCallback(ctx, res.Payment.TransactionID, "VALID", []byte(`{}`)))

	stored, err := e.orders.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, stored.Status)
	assert.Equal(t, order.PaymentPaid, stored.PaymentStatus)
	assert.True(t, stored.StockReserved)
	assert.Equal(t, 3, productStock(t, mugID))
}
