package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fjod/go_storefront/internal/api"
	"github.com/fjod/go_storefront/internal/cart"
	"github.com/fjod/go_storefront/internal/httpx"
	"github.com/fjod/go_storefront/internal/reconcile"
	"github.com/fjod/go_storefront/internal/stock"
	"github.com/fjod/go_storefront/pkg/money"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ProductSource interface {
	GetProduct(ctx context.Context, id string) (api.ProductSummary, error)
}

type CartView struct {
	Items      []cart.Item     `json:"items"`
	TotalItems int             `json:"totalItems"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Total      decimal.Decimal `json:"total"`
	OutOfStock []string        `json:"outOfStock"`
	Notices    []cart.Notice   `json:"notices"`
	// StockCheckedAt is when the stock shown was fetched, if ever.
	StockCheckedAt *time.Time `json:"stockCheckedAt,omitempty"`
}

type AddItemRequest struct {
	ProductID string `json:"productId"`
	Size      string `json:"size,omitempty"`
	Quantity  int    `json:"quantity"`
}

type UpdateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type CartHandler struct {
	sessions *Registry
	products ProductSource
	fetcher  stock.Fetcher
	log      *zap.Logger
}

func NewCartHandler(sessions *Registry, products ProductSource, fetcher stock.Fetcher, log *zap.Logger) *CartHandler {
	return &CartHandler{sessions: sessions, products: products, fetcher: fetcher, log: log}
}

// session pins the caller's session; the handler must call release when done.
func (h *CartHandler) session(w http.ResponseWriter, r *http.Request) (*Session, func(), bool) {
	sess, release, err := h.sessions.Acquire(r.Context(), sessionID(r.Context()))
	if err != nil {
		httpx.RespondErr(w, h.log, err)
		return nil, nil, false
	}
	return sess, release, true
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	sess, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	notices := append(sess.TakeNotices(), h.refresh(r.Context(), sess)...)
	httpx.RespondJSON(w, http.StatusOK, h.view(sess, notices))
}

// POST /api/v1/cart/refresh
func (h *CartHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	sess, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	httpx.RespondJSON(w, http.StatusOK, h.view(sess, h.refresh(r.Context(), sess)))
}

// POST /api/v1/cart/items
//
// Name, price and image come from the catalog and the stock ceiling from a
// live lookup, never from the client.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	if req.ProductID == "" {
		httpx.RespondError(w, http.StatusBadRequest, "invalid_argument", "productId is required")
		return
	}
	sess, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	ctx := r.Context()

	product, err := h.products.GetProduct(ctx, req.ProductID)
	if err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	info, err := h.fetcher.FetchStock(ctx, req.ProductID)
	if err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	if info.HasSizes && req.Size == "" {
		httpx.RespondError(w, http.StatusBadRequest, "invalid_argument", "please choose a size")
		return
	}

	item := cart.Item{
		ProductID: product.ID,
		Name:      product.Name,
		Price:     product.Price,
		Image:     product.Image,
		Size:      req.Size,
	}
	item.Stock = reconcile.Available(item, info)

	// An existing line merges under its own ceiling, so bring that ceiling
	// up to date with the stock just fetched first.
	var notices []cart.Notice
	lineID := cart.LineID(item.ProductID, item.Size)
	if _, found := sess.Cart.Item(lineID); found {
		clamped, err := sess.Cart.UpdateItemStock(ctx, lineID, item.Stock)
		if err != nil {
			httpx.RespondErr(w, h.log, err)
			return
		}
		if clamped {
			notices = append(notices, cart.Notice{
				Kind:        cart.NoticeQuantityAdjusted,
				LineID:      lineID,
				ProductName: item.Name,
				Size:        item.Size,
				Message:     fmt.Sprintf("Quantity of %s was adjusted to %d, the number available.", item.Name, item.Stock),
			})
		}
	}
	if item.Stock < 1 {
		httpx.RespondError(w, http.StatusConflict, "conflict", "this item is out of stock")
		return
	}

	before := sess.Cart.Len()
	if err := sess.Cart.AddItem(ctx, item, req.Quantity); err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	if sess.Cart.Len() != before {
		notices = append(notices, h.refresh(ctx, sess)...)
	}
	httpx.RespondJSON(w, http.StatusOK, h.view(sess, notices))
}

// PUT /api/v1/cart/items/{id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	sess, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	id := chi.URLParam(r, "id")
	if _, found := sess.Cart.Item(id); !found {
		httpx.RespondError(w, http.StatusNotFound, "not_found", "item is not in the cart")
		return
	}

	before := sess.Cart.Len()
	if err := sess.Cart.UpdateItemQuantity(r.Context(), id, req.Quantity); err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	var notices []cart.Notice
	if sess.Cart.Len() != before {
		notices = h.refresh(r.Context(), sess)
	}
	httpx.RespondJSON(w, http.StatusOK, h.view(sess, notices))
}

// DELETE /api/v1/cart/items/{id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	sess, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	before := sess.Cart.Len()
	if err := sess.Cart.RemoveItem(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	var notices []cart.Notice
	if sess.Cart.Len() != before {
		notices = h.refresh(r.Context(), sess)
	}
	httpx.RespondJSON(w, http.StatusOK, h.view(sess, notices))
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	sess, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	if err := sess.Cart.Clear(r.Context()); err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, h.view(sess, nil))
}

// refresh polls stock for the cart and reconciles it. A superseded poll is
// dropped silently; the newer one will reconcile.
func (h *CartHandler) refresh(ctx context.Context, sess *Session) []cart.Notice {
	ids := sess.Cart.ProductIDs()
	if len(ids) == 0 {
		return nil
	}
	snap, err := sess.Stock.Poll(ctx, ids)
	if err != nil {
		if !errors.Is(err, stock.ErrStalePoll) {
			h.log.Warn("stock poll failed", zap.String("session", sess.ID), zap.Error(err))
		}
		return nil
	}
	res, err := reconcile.Reconcile(ctx, sess.Cart, snap.Stock)
	if err != nil {
		h.log.Warn("cart reconcile failed", zap.String("session", sess.ID), zap.Error(err))
	}
	return res.Notices
}

func (h *CartHandler) view(sess *Session, notices []cart.Notice) CartView {
	items := sess.Cart.Items()
	subtotal := cart.TotalPrice(items)
	v := CartView{
		Items:      items,
		TotalItems: cart.TotalItems(items),
		Subtotal:   subtotal,
		Total:      money.TaxInclusiveTotal(subtotal),
		OutOfStock: []string{},
		Notices:    notices,
	}
	if v.Items == nil {
		v.Items = []cart.Item{}
	}
	if v.Notices == nil {
		v.Notices = []cart.Notice{}
	}
	if snap, ok := sess.Stock.Latest(); ok {
		if out := reconcile.OutOfStock(items, snap.Stock); len(out) > 0 {
			v.OutOfStock = out
		}
		at := snap.FetchedAt
		v.StockCheckedAt = &at
	}
	return v
}
