package payment

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/urbancart/api/internal/domain/cart"
	"github.com/urbancart/api/internal/domain/inventory"
	"github.com/urbancart/api/internal/domain/order"
	"github.com/urbancart/api/internal/domain/product"
	"github.com/urbancart/api/internal/notify"
)

type mockOrderRepo struct {
	orders map[int64]*order.Order
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order) error {
	m.orders[o.ID] = o
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id int64) (*order.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (m *mockOrderRepo) GetByIDForUpdate(ctx context.Context, id int64) (*order.Order, error) {
	return m.GetByID(ctx, id)
}

func (m *mockOrderRepo) ListByUser(context.Context, int64) ([]order.Order, error) {
	return nil, nil
}

func (m *mockOrderRepo) SetStatus(_ context.Context, id int64, status order.Status) error {
	m.orders[id].Status = status
	return nil
}

func (m *mockOrderRepo) SetPaymentStatus(_ context.Context, id int64, ps order.PaymentStatus, paidAt *time.Time) error {
	m.orders[id].PaymentStatus = ps
	if paidAt != nil {
		m.orders[id].PaidAt = paidAt
	}
	return nil
}

func (m *mockOrderRepo) SetPaymentMethod(_ context.Context, id int64, method order.PaymentMethod) error {
	m.orders[id].PaymentMethod = method
	return nil
}

func (m *mockOrderRepo) SetStockReserved(_ context.Context, id int64, reserved bool) error {
	m.orders[id].StockReserved = reserved
	return nil
}

func (m *mockOrderRepo) InsertHistory(_ context.Context, e *order.HistoryEntry) error {
	o := m.orders[e.OrderID]
	o.History = append(o.History, *e)
	return nil
}

func (m *mockOrderRepo) SetOTP(_ context.Context, id int64, channel, phone, code string, createdAt time.Time) error {
	o := m.orders[id]
	o.OTPChannel, o.OTPPhone, o.OTPCode = channel, phone, code
	o.OTPCreatedAt = &createdAt
	o.OTPUsed = false
	return nil
}

func (m *mockOrderRepo) MarkOTPUsed(_ context.Context, id int64) error {
	m.orders[id].OTPUsed = true
	return nil
}

type mockPaymentRepo struct {
	nextID    int64
	byOrder   map[int64]*Payment
	callbacks [][]byte
}

func newPaymentRepo() *mockPaymentRepo {
	return &mockPaymentRepo{byOrder: make(map[int64]*Payment)}
}

func (m *mockPaymentRepo) GetByOrderID(_ context.Context, orderID int64) (*Payment, error) {
	p, ok := m.byOrder[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockPaymentRepo) GetByTransactionID(_ context.Context, tranID string) (*Payment, error) {
	for _, p := range m.byOrder {
		if p.TransactionID == tranID {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockPaymentRepo) Upsert(_ context.Context, p *Payment) error {
	if existing, ok := m.byOrder[p.OrderID]; ok {
		p.ID = existing.ID
	} else {
		m.nextID++
		p.ID = m.nextID
	}
	m.byOrder[p.OrderID] = p
	return nil
}

func (m *mockPaymentRepo) SetStatus(_ context.Context, id int64, status Status) error {
	for _, p := range m.byOrder {
		if p.ID == id {
			p.Status = status
		}
	}
	return nil
}

func (m *mockPaymentRepo) RecordCallback(_ context.Context, id int64, status Status, raw []byte) error {
	m.callbacks = append(m.callbacks, raw)
	return m.SetStatus(context.Background(), id, status)
}

type mockCartRepo struct {
	cleared []int64
}

func (m *mockCartRepo) Get(_ context.Context, userID int64) (*cart.Cart, error) {
	return &cart.Cart{UserID: userID}, nil
}

func (m *mockCartRepo) UpsertLine(context.Context, int64, int64, int) (*cart.Cart, error) {
	return nil, nil
}

func (m *mockCartRepo) RemoveLine(context.Context, int64, int64) error { return nil }

func (m *mockCartRepo) Merge(context.Context, int64, []cart.MergeLine) (*cart.Cart, error) {
	return nil, nil
}

func (m *mockCartRepo) Clear(_ context.Context, userID int64) error {
	m.cleared = append(m.cleared, userID)
	return nil
}

type memLedger struct {
	mu       sync.Mutex
	products map[int64]*product.Product
	reserves int
}

func newLedger(products ...product.Product) *memLedger {
	byID := make(map[int64]*product.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	return &memLedger{products: byID}
}

func (m *memLedger) stock(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Stock
}

func (m *memLedger) Reserve(_ context.Context, lines []inventory.Line) ([]product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, l := range lines {
		p, ok := m.products[l.ProductID]
		if !ok || !p.Active {
			return nil, &inventory.UnavailableError{ProductID: l.ProductID}
		}
		if p.Stock < l.Qty {
			return nil, &inventory.InsufficientStockError{
				ProductID: l.ProductID, Name: p.Name, Requested: l.Qty, Available: p.Stock,
			}
		}
	}
	out := make([]product.Product, len(lines))
	for i, l := range lines {
		p := m.products[l.ProductID]
		p.Stock -= l.Qty
		out[i] = *p
	}
	m.reserves++
	return out, nil
}

func (m *memLedger) Release(_ context.Context, lines []inventory.Line) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range lines {
		m.products[l.ProductID].Stock += l.Qty
	}
	return nil
}

func (m *memLedger) Adjust(_ context.Context, productID int64, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.products[productID]
	if p.Stock+delta < 0 {
		return 0, inventory.ErrNegativeStock
	}
	p.Stock += delta
	return p.Stock, nil
}

func (m *memLedger) SetStock(_ context.Context, productID int64, stock int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[productID].Stock = stock
	return stock, nil
}

type passTx struct{}

func (passTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type notification struct {
	kind  string
	email string
	extra string
}

type recordNotifier struct {
	sent []notification
}

func (m *recordNotifier) OrderPlaced(_ context.Context, email string, _ notify.OrderInfo) {
	m.sent = append(m.sent, notification{kind: "placed", email: email})
}

func (m *recordNotifier) OrderStatusChanged(_ context.Context, email string, _ notify.OrderInfo, note string) {
	m.sent = append(m.sent, notification{kind: "status", email: email, extra: note})
}

func (m *recordNotifier) PaymentCode(_ context.Context, email string, _ notify.OrderInfo, code string) {
	m.sent = append(m.sent, notification{kind: "code", email: email, extra: code})
}

func testProduct(id int64, name string, price string, stock int) product.Product {
	return product.Product{
		ID:     id,
		Name:   name,
		Price:  decimal.RequireFromString(price),
		Stock:  stock,
		Active: true,
	}
}
