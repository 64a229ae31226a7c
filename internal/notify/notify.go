// Package notify delivers customer-facing email notifications.
//
// Dispatch is fire-and-forget: implementations log failures and never return
// them, so a broken mail relay cannot fail a committed checkout. Callers
// invoke the dispatcher only after their transaction has committed.
package notify

import "context"

// OrderInfo carries the fields notification templates need. It is a plain
// value so this package stays independent of the domain packages.
type OrderInfo struct {
	OrderNumber string
	Status      string
	Total       string
}

// Dispatcher sends customer notifications. Implementations must be safe for
// concurrent use.
type Dispatcher interface {
	// OrderPlaced notifies a customer that their order was created.
	OrderPlaced(ctx context.Context, email string, o OrderInfo)

	// OrderStatusChanged notifies a customer of a lifecycle transition.
	OrderStatusChanged(ctx context.Context, email string, o OrderInfo, note string)

	// PaymentCode delivers a one-time payment confirmation code.
	PaymentCode(ctx context.Context, email string, o OrderInfo, code string)
}

// Nop is a Dispatcher that does nothing. Used in tests and in deployments
// without a configured mail relay.
type Nop struct{}

func (Nop) OrderPlaced(context.Context, string, OrderInfo)                {}
func (Nop) OrderStatusChanged(context.Context, string, OrderInfo, string) {}
func (Nop) PaymentCode(context.Context, string, OrderInfo, string)        {}
