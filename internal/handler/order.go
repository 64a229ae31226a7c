package handler

import (
	"net/http"
	"time"

	"github.com/urbancart/api/internal/domain/order"
)

type orderItemResponse struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	Price     string `json:"price"`
	Quantity  int    `json:"quantity"`
	LineTotal string `json:"line_total"`
}

type historyEntryResponse struct {
	Status    string    `json:"status"`
	ChangedBy *int64    `json:"changed_by,omitempty"`
	Note      string    `json:"note,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

type orderResponse struct {
	ID            int64  `json:"id"`
	OrderNumber   string `json:"order_number"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	PaymentMethod string `json:"payment_method"`

	ShippingName string `json:"shipping_name"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
	City         string `json:"city"`
	Note         string `json:"note,omitempty"`

	Subtotal      string `json:"subtotal"`
	DiscountTotal string `json:"discount_total"`
	ShippingFee   string `json:"shipping_fee"`
	Total         string `json:"total"`

	PaidAt    *time.Time `json:"paid_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`

	Items         []orderItemResponse    `json:"items"`
	StatusHistory []historyEntryResponse `json:"status_history"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemResponse{
			ID:        it.ID,
			ProductID: it.ProductID,
			Name:      it.Name,
			SKU:       it.SKU,
			Price:     it.Price.StringFixed(2),
			Quantity:  it.Quantity,
			LineTotal: it.LineTotal.StringFixed(2),
		}
	}
	history := make([]historyEntryResponse, len(o.History))
	for i, e := range o.History {
		history[i] = historyEntryResponse{
			Status:    string(e.Status),
			ChangedBy: e.ChangedBy,
			Note:      e.Note,
			ChangedAt: e.ChangedAt,
		}
	}
	return orderResponse{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		PaymentMethod: string(o.PaymentMethod),
		ShippingName:  o.ShippingName,
		Phone:         o.Phone,
		Address:       o.Address,
		City:          o.City,
		Note:          o.Note,
		Subtotal:      o.Subtotal.StringFixed(2),
		DiscountTotal: o.DiscountTotal.StringFixed(2),
		ShippingFee:   o.ShippingFee.StringFixed(2),
		Total:         o.Total.StringFixed(2),
		PaidAt:        o.PaidAt,
		CreatedAt:     o.CreatedAt,
		Items:         items,
		StatusHistory: history,
	}
}

type checkoutRequest struct {
	ShippingName  string `json:"shipping_name"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
	City          string `json:"city"`
	Note          string `json:"note"`
	PaymentMethod string `json:"payment_method"`
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ShippingName == "" || req.Phone == "" || req.Address == "" || req.City == "" {
		respondErrorMsg(w, http.StatusBadRequest, "shipping_name, phone, address and city are required")
		return
	}

	principal, _ := principalFrom(r.Context())
	o, err := h.orders.Checkout(r.Context(), principal, order.CheckoutRequest{
		ShippingName:  req.ShippingName,
		Phone:         req.Phone,
		Address:       req.Address,
		City:          req.City,
		Note:          req.Note,
		PaymentMethod: order.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toOrderResponse(o))
}

func (h *Handler) listMyOrders(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())

	orders, err := h.orders.ListForUser(r.Context(), principal.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]orderResponse, len(orders))
	for i := range orders {
		out[i] = toOrderResponse(&orders[i])
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) getMyOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	principal, _ := principalFrom(r.Context())
	o, err := h.orders.Get(r.Context(), id, principal.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(o))
}

type cancelOrderRequest struct {
	Note string `json:"note"`
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req cancelOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	principal, _ := principalFrom(r.Context())
	o, err := h.orders.Cancel(r.Context(), principal, id, req.Note)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(o))
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req updateStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	principal, _ := principalFrom(r.Context())
	o, err := h.orders.UpdateStatus(r.Context(), principal, id, order.Status(req.Status), req.Note)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(o))
}
