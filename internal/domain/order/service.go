package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/urbancart/api/internal/domain/cart"
	"github.com/urbancart/api/internal/domain/inventory"
	"github.com/urbancart/api/internal/domain/user"
	"github.com/urbancart/api/internal/notify"
)

// ErrInvalidPaymentMethod is returned for an unknown payment method string.
var ErrInvalidPaymentMethod = errors.New("invalid payment method")

// CheckoutRequest holds the input for turning a cart into an order.
type CheckoutRequest struct {
	ShippingName  string
	Phone         string
	Address       string
	City          string
	Note          string
	PaymentMethod PaymentMethod
}

// Service turns carts into orders and drives the order lifecycle.
type Service struct {
	carts       cart.Repository
	ledger      inventory.Ledger
	orders      Repository
	users       user.Repository
	tx          Transactor
	notifier    notify.Dispatcher
	shippingFee decimal.Decimal
	now         func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
// shippingFee is the flat per-order fee added to every total.
func NewService(
	carts cart.Repository,
	ledger inventory.Ledger,
	orders Repository,
	users user.Repository,
	tx Transactor,
	notifier notify.Dispatcher,
	shippingFee decimal.Decimal,
) *Service {
	return &Service{
		carts:       carts,
		ledger:      ledger,
		orders:      orders,
		users:       users,
		tx:          tx,
		notifier:    notifier,
		shippingFee: shippingFee,
		now:         time.Now,
	}
}

// Checkout validates the cart, reserves stock, and creates the order, all
// inside one transaction. Pay-on-fulfillment orders confirm immediately and
// the cart is cleared; prepaid orders stay pending with the cart intact until
// the payment confirmation finalizes them.
//
// Any reservation failure aborts the whole checkout: no order row, no stock
// decrement.
func (s *Service) Checkout(ctx context.Context, principal user.User, req CheckoutRequest) (*Order, error) {
	if !req.PaymentMethod.Valid() {
		return nil, ErrInvalidPaymentMethod
	}

	var o *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		crt, err := s.carts.Get(ctx, principal.ID)
		if err != nil {
			return errors.Wrap(err, "read cart")
		}
		if len(crt.Lines) == 0 {
			return ErrEmptyCart
		}

		invLines := make([]inventory.Line, len(crt.Lines))
		for i, line := range crt.Lines {
			if line.Qty < 1 {
				return &InvalidQuantityError{ProductID: line.ProductID}
			}
			invLines[i] = inventory.Line{ProductID: line.ProductID, Qty: line.Qty}
		}

		// Lock, re-validate, and decrement in one atomic step. The returned
		// products carry the authoritative prices read under the lock; the
		// client never supplies a price.
		products, err := s.ledger.Reserve(ctx, invLines)
		if err != nil {
			return err
		}

		// Quantize each line before summing so the subtotal matches the sum
		// of the stored line totals exactly.
		subtotal := decimal.Zero
		items := make([]Item, len(crt.Lines))
		for i, line := range crt.Lines {
			p := products[i]
			lineTotal := p.Price.Mul(decimal.NewFromInt(int64(line.Qty))).Round(2)
			subtotal = subtotal.Add(lineTotal)

			items[i] = Item{
				ProductID: p.ID,
				VendorID:  p.VendorID,
				Name:      p.Name,
				SKU:       p.SKU,
				Price:     p.Price,
				Quantity:  line.Qty,
				LineTotal: lineTotal,
			}
		}

		discount := decimal.Zero
		total := subtotal.Sub(discount).Add(s.shippingFee).Round(2)
		if total.IsNegative() {
			total = decimal.Zero
		}

		o = &Order{
			UserID:        principal.ID,
			Status:        StatusPending,
			PaymentMethod: req.PaymentMethod,
			PaymentStatus: PaymentUnpaid,
			ShippingName:  req.ShippingName,
			Phone:         req.Phone,
			Address:       req.Address,
			City:          req.City,
			Note:          req.Note,
			Subtotal:      subtotal,
			DiscountTotal: discount,
			ShippingFee:   s.shippingFee,
			Total:         total,
			StockReserved: true,
			Items:         items,
		}
		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		if err := s.appendHistory(ctx, o, StatusPending, &principal.ID, "Order created"); err != nil {
			return err
		}

		// Pay-on-fulfillment: stock is already committed, so confirm now and
		// destroy the cart. Prepaid keeps the cart until finalization.
		if req.PaymentMethod == MethodCOD {
			if err := s.transition(ctx, o, StatusConfirmed, &principal.ID, "Confirmed (cash on delivery)"); err != nil {
				return err
			}
			if err := s.carts.Clear(ctx, principal.ID); err != nil {
				return errors.Wrap(err, "clear cart")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.OrderPlaced(ctx, principal.Email, notifyInfo(o))
	return o, nil
}

// UpdateStatus moves an order along the state machine on behalf of a vendor
// or admin. Illegal targets fail with InvalidTransitionError before anything
// is written. Cancelling or refunding releases the stock reservation; a
// refund also flips the payment status.
func (s *Service) UpdateStatus(ctx context.Context, actor user.User, orderID int64, target Status, note string) (*Order, error) {
	if !target.Valid() {
		return nil, &InvalidTransitionError{To: target}
	}

	var o *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.orders.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		return s.applyTransition(ctx, o, target, &actor.ID, note)
	})
	if err != nil {
		return nil, err
	}

	s.notifyStatusChange(ctx, o, note)
	return o, nil
}

// Cancel lets a customer cancel their own order. It is the explicit release
// path for a prepaid reservation that was never confirmed.
func (s *Service) Cancel(ctx context.Context, principal user.User, orderID int64, note string) (*Order, error) {
	if note == "" {
		note = "Cancelled by customer"
	}

	var o *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.orders.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != principal.ID {
			return ErrNotFound
		}
		return s.applyTransition(ctx, o, StatusCancelled, &principal.ID, note)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.OrderStatusChanged(ctx, principal.Email, notifyInfo(o), note)
	return o, nil
}

// Get returns an order by id, optionally scoped to an owning user
// (userID > 0). Out-of-scope orders surface as ErrNotFound rather than 403
// so order ids are not probeable.
func (s *Service) Get(ctx context.Context, orderID, userID int64) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if userID > 0 && o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// ListForUser returns the user's orders, newest first.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

// applyTransition validates the state machine, writes the status, appends
// history, and handles the stock release and refund side effects. Must run
// inside a transaction with the order row locked.
func (s *Service) applyTransition(ctx context.Context, o *Order, target Status, actorID *int64, note string) error {
	if !o.Status.CanTransition(target) {
		return &InvalidTransitionError{From: o.Status, To: target}
	}
	if err := s.transition(ctx, o, target, actorID, note); err != nil {
		return err
	}

	if target == StatusCancelled || target == StatusRefunded {
		if o.StockReserved {
			if err := s.ledger.Release(ctx, o.ReservationLines()); err != nil {
				return errors.Wrap(err, "release stock")
			}
			if err := s.orders.SetStockReserved(ctx, o.ID, false); err != nil {
				return errors.Wrap(err, "clear reservation flag")
			}
			o.StockReserved = false
		}
	}
	if target == StatusRefunded {
		if err := s.orders.SetPaymentStatus(ctx, o.ID, PaymentRefunded, nil); err != nil {
			return errors.Wrap(err, "set payment status")
		}
		o.PaymentStatus = PaymentRefunded
	}
	return nil
}

// transition writes the new status and its audit entry without validating the
// state table; callers validate first.
func (s *Service) transition(ctx context.Context, o *Order, target Status, actorID *int64, note string) error {
	if err := s.orders.SetStatus(ctx, o.ID, target); err != nil {
		return errors.Wrap(err, "set status")
	}
	o.Status = target
	return s.appendHistory(ctx, o, target, actorID, note)
}

func (s *Service) appendHistory(ctx context.Context, o *Order, status Status, actorID *int64, note string) error {
	entry := &HistoryEntry{
		OrderID:   o.ID,
		Status:    status,
		ChangedBy: actorID,
		Note:      note,
		ChangedAt: s.now(),
	}
	if err := s.orders.InsertHistory(ctx, entry); err != nil {
		return errors.Wrap(err, "append status history")
	}
	o.History = append(o.History, *entry)
	return nil
}

// notifyStatusChange looks up the order owner's email and dispatches the
// status notification. Lookup failures are logged, never propagated: the
// transition has already committed.
func (s *Service) notifyStatusChange(ctx context.Context, o *Order, note string) {
	owner, err := s.users.GetByID(ctx, o.UserID)
	if err != nil {
		zctx.From(ctx).Warn("lookup order owner for notification",
			zap.Int64("order_id", o.ID), zap.Error(err))
		return
	}
	s.notifier.OrderStatusChanged(ctx, owner.Email, notifyInfo(o), note)
}

func notifyInfo(o *Order) notify.OrderInfo {
	return notify.OrderInfo{
		OrderNumber: o.OrderNumber,
		Status:      string(o.Status),
		Total:       o.Total.StringFixed(2),
	}
}
