package order

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/urbancart/api/internal/domain/cart"
	"github.com/urbancart/api/internal/domain/inventory"
	"github.com/urbancart/api/internal/domain/product"
	"github.com/urbancart/api/internal/domain/user"
	"github.com/urbancart/api/internal/notify"
)

// --- Mock implementations ---

type mockCartRepo struct {
	carts   map[int64]*cart.Cart
	cleared []int64
}

func newCartRepo() *mockCartRepo {
	return &mockCartRepo{carts: make(map[int64]*cart.Cart)}
}

func (m *mockCartRepo) set(userID int64, lines ...cart.Line) {
	m.carts[userID] = &cart.Cart{ID: userID, UserID: userID, Lines: lines}
}

func (m *mockCartRepo) Get(_ context.Context, userID int64) (*cart.Cart, error) {
	if c, ok := m.carts[userID]; ok {
		return c, nil
	}
	return &cart.Cart{UserID: userID}, nil
}

func (m *mockCartRepo) UpsertLine(_ context.Context, userID, productID int64, qty int) (*cart.Cart, error) {
	c, ok := m.carts[userID]
	if !ok {
		c = &cart.Cart{ID: userID, UserID: userID}
		m.carts[userID] = c
	}
	c.Lines = append(c.Lines, cart.Line{ProductID: productID, Qty: qty})
	return c, nil
}

func (m *mockCartRepo) RemoveLine(context.Context, int64, int64) error { return nil }

func (m *mockCartRepo) Merge(_ context.Context, userID int64, _ []cart.MergeLine) (*cart.Cart, error) {
	return m.Get(context.Background(), userID)
}

func (m *mockCartRepo) Clear(_ context.Context, userID int64) error {
	delete(m.carts, userID)
	m.cleared = append(m.cleared, userID)
	return nil
}

// memLedger is an in-memory inventory.Ledger with the same validate-then-mutate
// all-or-nothing semantics as the real one.
type memLedger struct {
	mu       sync.Mutex
	products map[int64]*product.Product
	reserves int
	releases int
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

	need := make(map[int64]int)
	for _, l := range lines {
		need[l.ProductID] += l.Qty
	}
	for id, qty := range need {
		p, ok := m.products[id]
		if !ok || !p.Active {
			return nil, &inventory.UnavailableError{ProductID: id}
		}
		if p.Stock < qty {
			return nil, &inventory.InsufficientStockError{
				ProductID: id, Name: p.Name, Requested: qty, Available: p.Stock,
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
	m.releases++
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
	if stock < 0 {
		return 0, inventory.ErrNegativeStock
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[productID].Stock = stock
	return stock, nil
}

type mockOrderRepo struct {
	nextID    int64
	orders    map[int64]*Order
	createErr error
}

func newOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[int64]*Order)}
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	o.ID = m.nextID
	o.OrderNumber = fmt.Sprintf("UC-%06d", o.ID)
	for i := range o.Items {
		o.Items[i].OrderID = o.ID
	}
	stored := *o
	m.orders[o.ID] = &stored
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id int64) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) GetByIDForUpdate(ctx context.Context, id int64) (*Order, error) {
	return m.GetByID(ctx, id)
}

func (m *mockOrderRepo) ListByUser(_ context.Context, userID int64) ([]Order, error) {
	var out []Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) SetStatus(_ context.Context, id int64, status Status) error {
	m.orders[id].Status = status
	return nil
}

func (m *mockOrderRepo) SetPaymentStatus(_ context.Context, id int64, ps PaymentStatus, paidAt *time.Time) error {
	m.orders[id].PaymentStatus = ps
	if paidAt != nil {
		m.orders[id].PaidAt = paidAt
	}
	return nil
}

func (m *mockOrderRepo) SetPaymentMethod(_ context.Context, id int64, method PaymentMethod) error {
	m.orders[id].PaymentMethod = method
	return nil
}

func (m *mockOrderRepo) SetStockReserved(_ context.Context, id int64, reserved bool) error {
	m.orders[id].StockReserved = reserved
	return nil
}

func (m *mockOrderRepo) InsertHistory(_ context.Context, e *HistoryEntry) error {
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

type mockUserRepo struct {
	users map[int64]*user.User
}

func (m *mockUserRepo) GetByID(_ context.Context, id int64) (*user.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, ErrNotFound
}

// passTx runs the function directly; the mocks have no transaction semantics.
type passTx struct{}

func (passTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type notification struct {
	kind  string
	email string
	info  notify.OrderInfo
	extra string
}

type recordNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (m *recordNotifier) record(n notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
}

func (m *recordNotifier) OrderPlaced(_ context.Context, email string, o notify.OrderInfo) {
	m.record(notification{kind: "placed", email: email, info: o})
}

func (m *recordNotifier) OrderStatusChanged(_ context.Context, email string, o notify.OrderInfo, note string) {
	m.record(notification{kind: "status", email: email, info: o, extra: note})
}

func (m *recordNotifier) PaymentCode(_ context.Context, email string, o notify.OrderInfo, code string) {
	m.record(notification{kind: "code", email: email, info: o, extra: code})
}

// --- Helpers ---

func newTestProduct(id int64, name string, price string, stock int) product.Product {
	return product.Product{
		ID:     id,
		Name:   name,
		SKU:    name,
		Price:  decimal.RequireFromString(price),
		Stock:  stock,
		Active: true,
	}
}
