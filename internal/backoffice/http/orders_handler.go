package http

import (
	"net/http"

	"github.com/fjod/go_storefront/internal/api"
	"github.com/fjod/go_storefront/internal/httpx"
	"github.com/fjod/go_storefront/internal/orders"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type OrdersHandler struct {
	orders Orders
	log    *zap.Logger
}

func NewOrdersHandler(o Orders, log *zap.Logger) *OrdersHandler {
	return &OrdersHandler{orders: o, log: log}
}

// POST /api/v1/orders
//
// 201 for a new order, 200 when the idempotency key replays an earlier one.
func (h *OrdersHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req api.CreateOrderRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}

	o, created, err := h.orders.CreateOrder(r.Context(), claims(r), req)
	if err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httpx.RespondJSON(w, status, o.ToAPI())
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	page, err := h.orders.ListOrders(r.Context(), claims(r),
		httpx.QueryInt(r, "page", 1), httpx.QueryInt(r, "page_size", orders.DefaultPageSize))
	if err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, page)
}

// GET /api/v1/orders/{id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.Context(), claims(r), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, o.ToAPI())
}

// POST /api/v1/orders/{id}/cancel
func (h *OrdersHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.CancelOrder(r.Context(), claims(r), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, o.ToAPI())
}

// GET /api/v1/admin/orders?status=&page=&page_size=
func (h *OrdersHandler) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	page, err := h.orders.AdminListOrders(r.Context(), r.URL.Query().Get("status"),
		httpx.QueryInt(r, "page", 1), httpx.QueryInt(r, "page_size", orders.DefaultPageSize))
	if err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, page)
}

// PUT /api/v1/admin/orders/{id}/status
func (h *OrdersHandler) AdminUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateStatusRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, o.ToAPI())
}
