// Package handler exposes the HTTP API: catalog reads, cart management,
// checkout, the order lifecycle, and the payment confirmation channels.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/urbancart/api/internal/domain/auth"
	"github.com/urbancart/api/internal/domain/cart"
	"github.com/urbancart/api/internal/domain/inventory"
	"github.com/urbancart/api/internal/domain/order"
	"github.com/urbancart/api/internal/domain/payment"
	"github.com/urbancart/api/internal/domain/product"
)

// Handler holds the services behind the HTTP surface.
type Handler struct {
	products product.Repository
	carts    cart.Repository
	ledger   inventory.Ledger
	orders   *order.Service
	payments *payment.Service
	tokens   auth.Repository
	pepper   []byte
}

// New creates the API handler.
func New(
	products product.Repository,
	carts cart.Repository,
	ledger inventory.Ledger,
	orders *order.Service,
	payments *payment.Service,
	tokens auth.Repository,
	pepper []byte,
) *Handler {
	return &Handler{
		products: products,
		carts:    carts,
		ledger:   ledger,
		orders:   orders,
		payments: payments,
		tokens:   tokens,
		pepper:   pepper,
	}
}

// Routes mounts the API under /api.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		// Public surface.
		r.Get("/products", h.listProducts)
		r.Get("/products/{id}", h.getProduct)
		r.Post("/payments/ipn", h.paymentCallback)

		// Authenticated surface.
		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Get("/cart", h.getCart)
			r.Post("/cart/items", h.addCartItem)
			r.Delete("/cart/items/{id}", h.removeCartItem)
			r.Post("/cart/merge", h.mergeCart)

			r.Post("/checkout", h.checkout)

			r.Get("/orders/my", h.listMyOrders)
			r.Get("/orders/my/{id}", h.getMyOrder)
			r.Post("/orders/my/{id}/cancel", h.cancelOrder)

			r.Post("/payments/initiate", h.initiatePayment)
			r.Post("/payments/demo/send-code", h.sendPaymentCode)
			r.Post("/payments/demo/verify-code", h.verifyPaymentCode)

			// Vendor and admin surface.
			r.Group(func(r chi.Router) {
				r.Use(h.requireOrderManager)

				r.Post("/products/{id}/stock", h.adjustStock)
				r.Post("/orders/{id}/status", h.updateOrderStatus)
			})
		})
	})

	return r
}
