package payment

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/urbancart/api/internal/domain/cart"
	"github.com/urbancart/api/internal/domain/inventory"
	"github.com/urbancart/api/internal/domain/order"
	"github.com/urbancart/api/internal/domain/user"
	"github.com/urbancart/api/internal/notify"
)

// Config holds the tunables of the confirmation flow.
type Config struct {
	// GatewayURL is the hosted payment page the prepaid branch redirects to.
	GatewayURL string
	// CodeTTL is how long a one-time code stays valid.
	CodeTTL time.Duration
	// ResendCooldown is the minimum interval between code sends per order.
	ResendCooldown time.Duration
}

// InitiateResult is the outcome of a payment initiation.
type InitiateResult struct {
	Payment     *Payment
	AlreadyPaid bool
	GatewayURL  string
}

// Service finalizes prepaid orders and manages payment records.
type Service struct {
	payments Repository
	orders   order.Repository
	carts    cart.Repository
	ledger   inventory.Ledger
	tx       order.Transactor
	notifier notify.Dispatcher
	cfg      Config

	now     func() time.Time
	genCode func() (string, error)
}

// NewService creates a payment Service.
func NewService(
	payments Repository,
	orders order.Repository,
	carts cart.Repository,
	ledger inventory.Ledger,
	tx order.Transactor,
	notifier notify.Dispatcher,
	cfg Config,
) *Service {
	return &Service{
		payments: payments,
		orders:   orders,
		carts:    carts,
		ledger:   ledger,
		tx:       tx,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		genCode:  generateCode,
	}
}

// Initiate creates or refreshes the payment record for an order and, for the
// prepaid method, returns the gateway redirect URL. Re-initiating an already
// paid order is a safe no-op reporting AlreadyPaid.
func (s *Service) Initiate(ctx context.Context, principal user.User, orderID int64, method order.PaymentMethod) (*InitiateResult, error) {
	if !method.Valid() {
		return nil, order.ErrInvalidPaymentMethod
	}

	o, err := s.ownedOrder(ctx, principal, orderID)
	if err != nil {
		return nil, err
	}

	if o.PaymentStatus == order.PaymentPaid {
		p, err := s.payments.GetByOrderID(ctx, orderID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return &InitiateResult{Payment: p, AlreadyPaid: true}, nil
	}

	if o.PaymentMethod != method {
		if err := s.orders.SetPaymentMethod(ctx, o.ID, method); err != nil {
			return nil, errors.Wrap(err, "sync payment method")
		}
	}

	p := &Payment{
		OrderID: o.ID,
		UserID:  o.UserID,
		Method:  string(method),
		Status:  StatusPending,
		Amount:  o.Total,
	}
	if method == order.MethodGateway {
		p.TransactionID = transactionID(o.ID)
	}
	if err := s.payments.Upsert(ctx, p); err != nil {
		return nil, errors.Wrap(err, "upsert payment")
	}

	res := &InitiateResult{Payment: p}
	if method == order.MethodGateway {
		res.GatewayURL = fmt.Sprintf("%s?orderId=%d", s.cfg.GatewayURL, o.ID)
	}
	return res, nil
}

// HandleCallback processes an out-of-band gateway notification. The payment
// is looked up by transaction id; an unknown id is ErrNotFound. A "VALID"
// status finalizes the order idempotently: replaying the same callback is a
// no-op with no second transition and no second history entry. Any other
// status only marks the payment record; stock is released exclusively by the
// explicit cancellation path.
func (s *Service) HandleCallback(ctx context.Context, tranID, gatewayStatus string, raw []byte) error {
	p, err := s.payments.GetByTransactionID(ctx, tranID)
	if err != nil {
		return err
	}

	switch strings.ToUpper(gatewayStatus) {
	case "VALID", "VALIDATED":
		return s.tx.InTx(ctx, func(ctx context.Context) error {
			o, err := s.orders.GetByIDForUpdate(ctx, p.OrderID)
			if err != nil {
				return err
			}
			if p.Status == StatusPaid && o.PaymentStatus == order.PaymentPaid {
				// Replay of a processed callback.
				return nil
			}
			if err := s.payments.RecordCallback(ctx, p.ID, StatusPaid, raw); err != nil {
				return errors.Wrap(err, "record callback")
			}
			return s.finalize(ctx, o, "Payment confirmed (gateway)")
		})
	case "CANCELLED":
		return s.payments.RecordCallback(ctx, p.ID, StatusCancelled, raw)
	default:
		return s.payments.RecordCallback(ctx, p.ID, StatusFailed, raw)
	}
}

// SendCode issues a one-time confirmation code for a prepaid order and
// delivers it out-of-band. A resend inside the cooldown window fails with
// RateLimitedError instead of minting a new code.
func (s *Service) SendCode(ctx context.Context, principal user.User, orderID int64, channel, phone string) error {
	o, err := s.ownedOrder(ctx, principal, orderID)
	if err != nil {
		return err
	}
	if o.PaymentStatus == order.PaymentPaid {
		return ErrAlreadyPaid
	}

	now := s.now()
	if o.OTPCreatedAt != nil && !o.OTPUsed {
		if since := now.Sub(*o.OTPCreatedAt); since < s.cfg.ResendCooldown {
			return &RateLimitedError{RetryAfter: s.cfg.ResendCooldown - since}
		}
	}

	code, err := s.genCode()
	if err != nil {
		return errors.Wrap(err, "generate code")
	}
	if err := s.orders.SetOTP(ctx, o.ID, channel, phone, code, now); err != nil {
		return errors.Wrap(err, "store code")
	}

	s.notifier.PaymentCode(ctx, principal.Email, notify.OrderInfo{
		OrderNumber: o.OrderNumber,
		Status:      string(o.Status),
		Total:       o.Total.StringFixed(2),
	}, code)
	return nil
}

// VerifyCode checks a submitted one-time code and finalizes the order. Code
// mismatch, reuse, and expiry each fail with their own reason. The check, the
// used-flag write, and the finalization share one transaction with the order
// row locked, so a retry after a partial failure can never double-decrement
// stock or double-finalize.
func (s *Service) VerifyCode(ctx context.Context, principal user.User, orderID int64, code string) (*order.Order, error) {
	var o *order.Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.orders.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != principal.ID {
			return order.ErrNotFound
		}

		switch {
		case o.OTPCode == "":
			return ErrNoCodeIssued
		case o.OTPUsed:
			return ErrCodeAlreadyUsed
		case o.OTPCode != code:
			return ErrInvalidCode
		case o.OTPCreatedAt == nil || s.now().Sub(*o.OTPCreatedAt) > s.cfg.CodeTTL:
			return ErrCodeExpired
		}

		if err := s.orders.MarkOTPUsed(ctx, o.ID); err != nil {
			return errors.Wrap(err, "mark code used")
		}

		p := &Payment{
			OrderID:       o.ID,
			UserID:        o.UserID,
			Method:        string(order.MethodGateway),
			Status:        StatusPaid,
			Amount:        o.Total,
			TransactionID: transactionID(o.ID),
		}
		if err := s.payments.Upsert(ctx, p); err != nil {
			return errors.Wrap(err, "upsert payment")
		}

		return s.finalize(ctx, o, "Payment confirmed (one-time code)")
	})
	if err != nil {
		return nil, err
	}

	s.notifier.OrderStatusChanged(ctx, principal.Email, notify.OrderInfo{
		OrderNumber: o.OrderNumber,
		Status:      string(o.Status),
		Total:       o.Total.StringFixed(2),
	}, "Payment received")
	return o, nil
}

// finalize applies the shared finalization semantics of both confirmation
// channels: ensure the stock reservation is held (re-reserving from the
// frozen item snapshot if a cancellation released it), mark the order paid,
// confirm it if still pending, and destroy the source cart. Must run inside
// a transaction with the order row locked.
func (s *Service) finalize(ctx context.Context, o *order.Order, note string) error {
	if !o.StockReserved {
		// Defensive re-check: time has passed since the optimistic
		// reservation and it may have been released. Reserve validates
		// availability under lock and fails with InsufficientStock when the
		// frozen quantities can no longer be covered.
		if _, err := s.ledger.Reserve(ctx, o.ReservationLines()); err != nil {
			return err
		}
		if err := s.orders.SetStockReserved(ctx, o.ID, true); err != nil {
			return errors.Wrap(err, "set reservation flag")
		}
		o.StockReserved = true
	}

	paidAt := s.now()
	if err := s.orders.SetPaymentStatus(ctx, o.ID, order.PaymentPaid, &paidAt); err != nil {
		return errors.Wrap(err, "set payment status")
	}
	o.PaymentStatus = order.PaymentPaid
	o.PaidAt = &paidAt

	if o.Status == order.StatusPending {
		if err := s.orders.SetStatus(ctx, o.ID, order.StatusConfirmed); err != nil {
			return errors.Wrap(err, "confirm order")
		}
		o.Status = order.StatusConfirmed
		entry := &order.HistoryEntry{
			OrderID:   o.ID,
			Status:    order.StatusConfirmed,
			Note:      note,
			ChangedAt: paidAt,
		}
		if err := s.orders.InsertHistory(ctx, entry); err != nil {
			return errors.Wrap(err, "append status history")
		}
		o.History = append(o.History, *entry)
	}

	if err := s.carts.Clear(ctx, o.UserID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

// ownedOrder loads an order and verifies ownership, hiding foreign orders
// behind ErrNotFound.
func (s *Service) ownedOrder(ctx context.Context, principal user.User, orderID int64) (*order.Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != principal.ID {
		return nil, order.ErrNotFound
	}
	return o, nil
}

// transactionID derives the demo gateway transaction id for an order.
func transactionID(orderID int64) string {
	return fmt.Sprintf("DEMO-%d", orderID)
}

// generateCode returns a 6-digit code from crypto/rand.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
