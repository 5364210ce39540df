package http

import (
	"net/http"

	"github.com/fjod/go_storefront/internal/catalog"
	"github.com/fjod/go_storefront/internal/httpx"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ProductHandler struct {
	catalog Catalog
	log     *zap.Logger
}

func NewProductHandler(c Catalog, log *zap.Logger) *ProductHandler {
	return &ProductHandler{catalog: c, log: log}
}

// GET /api/v1/products
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context())
	if err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	if products == nil {
		products = []*catalog.Product{}
	}
	httpx.RespondJSON(w, http.StatusOK, products)
}

// GET /api/v1/products/{id}
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, p)
}

// GET /api/v1/products/{id}/stock
func (h *ProductHandler) GetStock(w http.ResponseWriter, r *http.Request) {
	info, err := h.catalog.GetStock(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondErr(w, h.log, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, info)
}
