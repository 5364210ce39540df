package http

import (
	"net/http"

	"github.com/fjod/go_storefront/internal/api"
	"github.com/fjod/go_storefront/internal/httpx"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	payments Payments
	log      *zap.Logger
}

func NewPaymentHandler(p Payments, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{payments: p, log: log}
}

// POST /api/v1/payments/intents
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	var req api.CreateIntentRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	intent, err := h.payments.CreateIntent(claims(r).UserID, req)
	if err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	httpx.RespondJSON(w, http.StatusCreated, api.CreateIntentResponse{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
	})
}

// POST /api/v1/payments/confirm
//
// A declined card is a 200 with status "failed" and the provider message.
func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req api.ConfirmPaymentRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	resp, err := h.payments.Confirm(claims(r).UserID, req)
	if err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, resp)
}
