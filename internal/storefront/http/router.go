// Package http is the shopper-facing surface of the storefront: cart,
// address book, checkout and order lookup.
package http

import (
	"net/http"
	"time"

	"github.com/fjod/go_storefront/internal/httpx"
	"github.com/fjod/go_storefront/internal/session"
	"github.com/fjod/go_storefront/internal/stock"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Deps struct {
	Sessions     *Registry
	Products     ProductSource
	Fetcher      stock.Fetcher
	Checkout     Checkouter
	Orders       OrderFetcher
	Issuer       *session.Issuer
	Log          *zap.Logger
	Timeout      time.Duration
	SecureCookie bool
}

func NewRouter(d Deps) http.Handler {
	carts := NewCartHandler(d.Sessions, d.Products, d.Fetcher, d.Log)
	addresses := NewAddressHandler(d.Sessions, d.Log)
	checkoutH := NewCheckoutHandler(d.Sessions, d.Checkout, d.Orders, d.Log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpx.RequestLogger(d.Log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(d.Timeout))

	r.Get("/health", httpx.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(CartCookie(d.SecureCookie))
		r.Use(d.Issuer.Authenticate)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", carts.GetCart)
			r.Delete("/", carts.ClearCart)
			r.Post("/refresh", carts.Refresh)
			r.Post("/items", carts.AddItem)
			r.Put("/items/{id}", carts.UpdateQuantity)
			r.Delete("/items/{id}", carts.RemoveItem)
		})

		r.Get("/addresses", addresses.ListAddresses)
		r.Post("/addresses", addresses.AddAddress)
		r.Delete("/addresses/{id}", addresses.RemoveAddress)

		// The orchestrator reports an empty cart before a missing login.
		r.Post("/checkout", checkoutH.Checkout)

		r.With(session.RequireUser).Get("/orders/{id}", checkoutH.GetOrder)
	})

	return r
}
