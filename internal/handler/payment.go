package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/urbancart/api/internal/domain/order"
	"github.com/urbancart/api/internal/domain/payment"
)

type paymentResponse struct {
	ID            int64  `json:"id"`
	OrderID       int64  `json:"order_id"`
	Method        string `json:"method"`
	Status        string `json:"status"`
	Amount        string `json:"amount"`
	TransactionID string `json:"transaction_id,omitempty"`
}

func toPaymentResponse(p *payment.Payment) *paymentResponse {
	if p == nil {
		return nil
	}
	return &paymentResponse{
		ID:            p.ID,
		OrderID:       p.OrderID,
		Method:        p.Method,
		Status:        string(p.Status),
		Amount:        p.Amount.StringFixed(2),
		TransactionID: p.TransactionID,
	}
}

type initiatePaymentRequest struct {
	OrderID int64  `json:"order_id"`
	Method  string `json:"method"`
}

type initiatePaymentResponse struct {
	Payment     *paymentResponse `json:"payment"`
	AlreadyPaid bool             `json:"already_paid"`
	GatewayURL  string           `json:"gateway_url,omitempty"`
}

func (h *Handler) initiatePayment(w http.ResponseWriter, r *http.Request) {
	var req initiatePaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OrderID < 1 {
		respondErrorMsg(w, http.StatusBadRequest, "order_id is required")
		return
	}

	principal, _ := principalFrom(r.Context())
	res, err := h.payments.Initiate(r.Context(), principal, req.OrderID, order.PaymentMethod(req.Method))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, initiatePaymentResponse{
		Payment:     toPaymentResponse(res.Payment),
		AlreadyPaid: res.AlreadyPaid,
		GatewayURL:  res.GatewayURL,
	})
}

type sendCodeRequest struct {
	OrderID int64  `json:"order_id"`
	Channel string `json:"channel"`
	Phone   string `json:"phone"`
}

func (h *Handler) sendPaymentCode(w http.ResponseWriter, r *http.Request) {
	var req sendCodeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OrderID < 1 {
		respondErrorMsg(w, http.StatusBadRequest, "order_id is required")
		return
	}
	if req.Channel == "" {
		req.Channel = "email"
	}

	principal, _ := principalFrom(r.Context())
	if err := h.payments.SendCode(r.Context(), principal, req.OrderID, req.Channel, req.Phone); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"detail": "confirmation code sent"})
}

type verifyCodeRequest struct {
	OrderID int64  `json:"order_id"`
	Code    string `json:"code"`
}

func (h *Handler) verifyPaymentCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OrderID < 1 || req.Code == "" {
		respondErrorMsg(w, http.StatusBadRequest, "order_id and code are required")
		return
	}

	principal, _ := principalFrom(r.Context())
	o, err := h.payments.VerifyCode(r.Context(), principal, req.OrderID, req.Code)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(o))
}

// paymentCallback handles the server-to-server gateway notification. Gateways
// post loosely shaped payloads, so tran_id and status are picked out
// tolerantly and everything else is preserved verbatim in the raw record.
func (h *Handler) paymentCallback(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		respondErrorMsg(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	tranID, status, err := parseCallback(raw)
	if err != nil || tranID == "" || status == "" {
		respondErrorMsg(w, http.StatusBadRequest, "malformed callback payload")
		return
	}

	if err := h.payments.HandleCallback(r.Context(), tranID, status, raw); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// parseCallback extracts tran_id and status from a callback payload, skipping
// unknown fields and tolerating mixed value types.
func parseCallback(raw []byte) (tranID, status string, err error) {
	d := jx.DecodeBytes(raw)
	err = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "tran_id":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "tran_id")
			}
			tranID = v
		case "status":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "status")
			}
			status = v
		default:
			return d.Skip()
		}
		return nil
	})
	return tranID, status, err
}
