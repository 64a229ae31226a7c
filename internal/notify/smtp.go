package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// SMTPConfig configures the SMTP dispatcher.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPDispatcher sends notifications through an SMTP relay using go-mail.
// Sends run in a background goroutine with a bounded timeout; failures are
// logged and dropped.
type SMTPDispatcher struct {
	client *mail.Client
	from   string
	lg     *zap.Logger
}

// NewSMTPDispatcher creates a dispatcher connected to the given relay.
func NewSMTPDispatcher(cfg SMTPConfig, lg *zap.Logger) (*SMTPDispatcher, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(10 * time.Second),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return &SMTPDispatcher{client: client, from: cfg.From, lg: lg}, nil
}

// OrderPlaced implements Dispatcher.
func (d *SMTPDispatcher) OrderPlaced(ctx context.Context, email string, o OrderInfo) {
	subject := fmt.Sprintf("Urban Cart — Order placed (#%s)", o.OrderNumber)
	body := fmt.Sprintf(
		"Thanks for your order!\n\nOrder: #%s\nStatus: %s\nTotal: %s\n\nWe'll notify you as your order progresses.",
		o.OrderNumber, o.Status, o.Total,
	)
	d.send(ctx, email, subject, body)
}

// OrderStatusChanged implements Dispatcher.
func (d *SMTPDispatcher) OrderStatusChanged(ctx context.Context, email string, o OrderInfo, note string) {
	subject := fmt.Sprintf("Urban Cart — Order #%s is now %s", o.OrderNumber, o.Status)
	body := fmt.Sprintf("Your order status has been updated.\n\nOrder: #%s\nNew status: %s", o.OrderNumber, o.Status)
	if note != "" {
		body += "\nNote: " + note
	}
	body += "\n\nThank you for shopping with Urban Cart."
	d.send(ctx, email, subject, body)
}

// PaymentCode implements Dispatcher.
func (d *SMTPDispatcher) PaymentCode(ctx context.Context, email string, o OrderInfo, code string) {
	subject := fmt.Sprintf("Urban Cart — Payment code for order #%s", o.OrderNumber)
	body := fmt.Sprintf(
		"Your payment confirmation code is: %s\n\nOrder: #%s\nAmount: %s\n\nThe code expires in a few minutes.",
		code, o.OrderNumber, o.Total,
	)
	d.send(ctx, email, subject, body)
}

// send delivers one message asynchronously. The spawned goroutine uses its
// own timeout rather than the caller's context so an already-answered HTTP
// request does not cancel the delivery.
func (d *SMTPDispatcher) send(_ context.Context, to, subject, body string) {
	if to == "" {
		return
	}

	msg := mail.NewMsg()
	if err := msg.From(d.from); err != nil {
		d.lg.Warn("notify: invalid from address", zap.String("from", d.from), zap.Error(err))
		return
	}
	if err := msg.To(to); err != nil {
		d.lg.Warn("notify: invalid recipient", zap.String("to", to), zap.Error(err))
		return
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := d.client.DialAndSendWithContext(ctx, msg); err != nil {
			d.lg.Warn("notify: send failed",
				zap.String("to", to),
				zap.String("subject", subject),
				zap.Error(err),
			)
		}
	}()
}
