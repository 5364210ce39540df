// Package http exposes the backoffice over a chi router: catalog and stock,
// orders, payments, profiles and admin order management.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_storefront/internal/api"
	"github.com/fjod/go_storefront/internal/catalog"
	"github.com/fjod/go_storefront/internal/httpx"
	"github.com/fjod/go_storefront/internal/orders"
	"github.com/fjod/go_storefront/internal/payment"
	"github.com/fjod/go_storefront/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Catalog interface {
	ListProducts(ctx context.Context) ([]*catalog.Product, error)
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
	GetStock(ctx context.Context, productID string) (catalog.StockInfo, error)
}

type Orders interface {
	CreateOrder(ctx context.Context, claims *session.Claims, req api.CreateOrderRequest) (*orders.Order, bool, error)
	GetOrder(ctx context.Context, claims *session.Claims, id string) (*orders.Order, error)
	ListOrders(ctx context.Context, claims *session.Claims, page, pageSize int) (api.OrderPage, error)
	CancelOrder(ctx context.Context, claims *session.Claims, id string) (*orders.Order, error)
	AdminListOrders(ctx context.Context, status string, page, pageSize int) (api.OrderPage, error)
	UpdateStatus(ctx context.Context, id, status string) (*orders.Order, error)
}

type Payments interface {
	CreateIntent(userID string, req api.CreateIntentRequest) (*payment.Intent, error)
	Confirm(userID string, req api.ConfirmPaymentRequest) (api.ConfirmPaymentResponse, error)
}

type Profiles interface {
	Get(ctx context.Context, userID string) (api.Profile, error)
	Update(ctx context.Context, userID string, req api.UpdateProfileRequest) (api.Profile, error)
}

type Deps struct {
	Catalog  Catalog
	Orders   Orders
	Payments Payments
	Profiles Profiles
	Issuer   *session.Issuer
	Log      *zap.Logger
	Timeout  time.Duration
}

func NewRouter(d Deps) http.Handler {
	products := NewProductHandler(d.Catalog, d.Log)
	ordersH := NewOrdersHandler(d.Orders, d.Log)
	payments := NewPaymentHandler(d.Payments, d.Log)
	profiles := NewProfileHandler(d.Profiles, d.Log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpx.RequestLogger(d.Log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(d.Timeout))

	r.Get("/health", httpx.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(d.Issuer.Authenticate)

		r.Get("/products", products.ListProducts)
		r.Get("/products/{id}", products.GetProduct)
		r.Get("/products/{id}/stock", products.GetStock)

		r.Group(func(r chi.Router) {
			r.Use(session.RequireUser)

			r.Post("/orders", ordersH.CreateOrder)
			r.Get("/orders", ordersH.ListOrders)
			r.Get("/orders/{id}", ordersH.GetOrder)
			r.Post("/orders/{id}/cancel", ordersH.CancelOrder)

			r.Post("/payments/intents", payments.CreateIntent)
			r.Post("/payments/confirm", payments.Confirm)

			r.Get("/profile", profiles.GetProfile)
			r.Patch("/profile", profiles.UpdateProfile)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(session.RequireAdmin)
			r.Get("/orders", ordersH.AdminListOrders)
			r.Put("/orders/{id}/status", ordersH.AdminUpdateStatus)
		})
	})

	return r
}

// claims is only called behind RequireUser.
func claims(r *http.Request) *session.Claims {
	c, _ := session.FromContext(r.Context())
	return c
}
