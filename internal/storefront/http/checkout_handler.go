package http

import (
	"context"
	"net/http"

	"github.com/fjod/go_storefront/internal/api"
	"github.com/fjod/go_storefront/internal/apperr"
	"github.com/fjod/go_storefront/internal/cart"
	"github.com/fjod/go_storefront/internal/checkout"
	"github.com/fjod/go_storefront/internal/httpx"
	"github.com/fjod/go_storefront/internal/session"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Checkouter interface {
	Checkout(ctx context.Context, sess checkout.Session, req checkout.Request) (checkout.Result, error)
}

type OrderFetcher interface {
	GetOrder(ctx context.Context, token, id string) (api.Order, error)
}

type CheckoutRequest struct {
	AddressID      string `json:"addressId"`
	PaymentMethod  string `json:"paymentMethod"`
	CardToken      string `json:"cardToken,omitempty"`
	BillingName    string `json:"billingName,omitempty"`
	BillingEmail   string `json:"billingEmail,omitempty"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// CheckoutErrorResponse adds the stock notices and the idempotency key to a
// failed checkout, so the shopper can review the cart and retry safely.
type CheckoutErrorResponse struct {
	Error          string        `json:"error"`
	Code           string        `json:"code"`
	Notices        []cart.Notice `json:"notices,omitempty"`
	IdempotencyKey string        `json:"idempotencyKey,omitempty"`
}

type CheckoutHandler struct {
	sessions *Registry
	checkout Checkouter
	orders   OrderFetcher
	log      *zap.Logger
}

func NewCheckoutHandler(sessions *Registry, c Checkouter, orders OrderFetcher, log *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{sessions: sessions, checkout: c, orders: orders, log: log}
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	sess, release, err := h.sessions.Acquire(r.Context(), sessionID(r.Context()))
	if err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	defer release()

	claims, _ := session.FromContext(r.Context())
	res, err := h.checkout.Checkout(r.Context(), sess.checkout(), checkout.Request{
		Claims:         claims,
		Token:          session.BearerToken(r),
		AddressID:      req.AddressID,
		PaymentMethod:  req.PaymentMethod,
		CardToken:      req.CardToken,
		BillingName:    req.BillingName,
		BillingEmail:   req.BillingEmail,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		status := apperr.HTTPStatus(err)
		msg := apperr.Message(err, http.StatusText(status))
		if status >= http.StatusInternalServerError {
			h.log.Error("checkout failed", zap.String("session", sess.ID), zap.Error(err))
		}
		httpx.RespondJSON(w, status, CheckoutErrorResponse{
			Error:          msg,
			Code:           apperr.Kind(err),
			Notices:        res.Notices,
			IdempotencyKey: res.IdempotencyKey,
		})
		return
	}
	httpx.RespondJSON(w, http.StatusCreated, res)
}

// GET /api/v1/orders/{id}
func (h *CheckoutHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.Context(), session.BearerToken(r), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, o)
}
