package handler

import (
	"net/http"

	"github.com/urbancart/api/internal/domain/cart"
)

type cartLineResponse struct {
	ID        int64 `json:"id"`
	ProductID int64 `json:"product_id"`
	Qty       int   `json:"qty"`
}

type cartResponse struct {
	ID    int64              `json:"id"`
	Items []cartLineResponse `json:"items"`
}

func toCartResponse(c *cart.Cart) cartResponse {
	items := make([]cartLineResponse, len(c.Lines))
	for i, l := range c.Lines {
		items[i] = cartLineResponse{ID: l.ID, ProductID: l.ProductID, Qty: l.Qty}
	}
	return cartResponse{ID: c.ID, Items: items}
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())

	c, err := h.carts.Get(r.Context(), principal.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(c))
}

type addCartItemRequest struct {
	ProductID int64 `json:"product_id"`
	Qty       int   `json:"qty"`
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addCartItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ProductID < 1 || req.Qty < 1 {
		respondErrorMsg(w, http.StatusBadRequest, "product_id and qty must be positive")
		return
	}

	// Reject unknown or inactive products up front. Checkout re-validates
	// under lock regardless.
	if _, err := h.products.GetByID(r.Context(), req.ProductID); err != nil {
		respondError(w, r, err)
		return
	}

	principal, _ := principalFrom(r.Context())
	c, err := h.carts.UpsertLine(r.Context(), principal.ID, req.ProductID, req.Qty)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	lineID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	principal, _ := principalFrom(r.Context())
	if err := h.carts.RemoveLine(r.Context(), principal.ID, lineID); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type mergeCartRequest struct {
	Items []struct {
		ProductID int64 `json:"product_id"`
		Qty       int   `json:"qty"`
	} `json:"items"`
}

// mergeCart folds a guest cart into the server-side cart on login. Quantities
// for the same product add up.
func (h *Handler) mergeCart(w http.ResponseWriter, r *http.Request) {
	var req mergeCartRequest
	if !decodeBody(w, r, &req) {
		return
	}

	lines := make([]cart.MergeLine, 0, len(req.Items))
	for _, it := range req.Items {
		if it.ProductID < 1 {
			respondErrorMsg(w, http.StatusBadRequest, "product_id must be positive")
			return
		}
		lines = append(lines, cart.MergeLine{ProductID: it.ProductID, Qty: it.Qty})
	}

	principal, _ := principalFrom(r.Context())
	c, err := h.carts.Merge(r.Context(), principal.ID, lines)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(c))
}
