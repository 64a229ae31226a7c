package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/urbancart/api/internal/domain/product"
	"github.com/urbancart/api/internal/domain/user"
)

type productResponse struct {
	ID       int64  `json:"id"`
	VendorID *int64 `json:"vendor_id,omitempty"`
	Name     string `json:"name"`
	SKU      string `json:"sku"`
	Price    string `json:"price"`
	Stock    int    `json:"stock"`
	Active   bool   `json:"active"`
}

func toProductResponse(p product.Product) productResponse {
	return productResponse{
		ID:       p.ID,
		VendorID: p.VendorID,
		Name:     p.Name,
		SKU:      p.SKU,
		Price:    p.Price.StringFixed(2),
		Stock:    p.Stock,
		Active:   p.Active,
	}
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]productResponse, len(products))
	for i, p := range products {
		out[i] = toProductResponse(p)
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toProductResponse(*p))
}

type adjustStockRequest struct {
	Delta *int `json:"delta"`
	SetTo *int `json:"set_to"`
}

// adjustStock applies a vendor or admin stock correction through the ledger.
// Vendors may only touch their own products.
func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req adjustStockRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if (req.Delta == nil) == (req.SetTo == nil) {
		respondErrorMsg(w, http.StatusBadRequest, "exactly one of delta or set_to is required")
		return
	}

	principal, _ := principalFrom(r.Context())
	if principal.Role == user.RoleVendor {
		p, err := h.products.GetByID(r.Context(), id)
		if err != nil {
			respondError(w, r, err)
			return
		}
		if p.VendorID == nil || *p.VendorID != principal.ID {
			respondErrorMsg(w, http.StatusForbidden, "product belongs to another vendor")
			return
		}
	}

	var (
		stock int
		err   error
	)
	if req.Delta != nil {
		stock, err = h.ledger.Adjust(r.Context(), id, *req.Delta)
	} else {
		stock, err = h.ledger.SetStock(r.Context(), id, *req.SetTo)
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"stock": stock})
}

// pathID parses the numeric {name} path parameter, answering 404 itself when
// it is not a positive integer.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 1 {
		respondErrorMsg(w, http.StatusNotFound, "not found")
		return 0, false
	}
	return id, true
}
