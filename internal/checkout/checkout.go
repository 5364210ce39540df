// Package checkout drives a reconciled cart through payment and order
// creation as one linear flow.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fjod/go_storefront/internal/addressbook"
	"github.com/fjod/go_storefront/internal/api"
	"github.com/fjod/go_storefront/internal/apperr"
	"github.com/fjod/go_storefront/internal/cart"
	"github.com/fjod/go_storefront/internal/reconcile"
	"github.com/fjod/go_storefront/internal/session"
	"github.com/fjod/go_storefront/internal/stock"
	"github.com/fjod/go_storefront/pkg/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type PaymentProvider interface {
	CreateIntent(ctx context.Context, token string, req api.CreateIntentRequest) (api.CreateIntentResponse, error)
	ConfirmCard(ctx context.Context, token string, req api.ConfirmPaymentRequest) (api.ConfirmPaymentResponse, error)
}

type OrderCreator interface {
	CreateOrder(ctx context.Context, token string, req api.CreateOrderRequest) (api.Order, error)
}

type ProfileSource interface {
	GetProfile(ctx context.Context, token string) (api.Profile, error)
}

type Cart interface {
	reconcile.Cart
	Clear(ctx context.Context) error
	ProductIDs() []string
}

type AddressBook interface {
	List(ctx context.Context) ([]addressbook.Address, error)
}

type StockPoller interface {
	Poll(ctx context.Context, productIDs []string) (stock.Snapshot, error)
	Latest() (stock.Snapshot, bool)
}

// Session is the shopper state checkout reads and mutates.
type Session struct {
	ID        string
	Cart      Cart
	Addresses AddressBook
	Stock     StockPoller
}

type Request struct {
	Claims         *session.Claims
	Token          string
	AddressID      string
	PaymentMethod  string
	CardToken      string
	BillingName    string
	BillingEmail   string
	IdempotencyKey string
}

type Result struct {
	OrderID        string          `json:"orderId,omitempty"`
	ChargeID       string          `json:"chargeId,omitempty"`
	Total          decimal.Decimal `json:"total"`
	IdempotencyKey string          `json:"idempotencyKey"`
	Notices        []cart.Notice   `json:"notices,omitempty"`
}

type Orchestrator struct {
	payments PaymentProvider
	orders   OrderCreator
	profiles ProfileSource
	currency string
	log      *zap.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewOrchestrator(payments PaymentProvider, orders OrderCreator, profiles ProfileSource, currency string, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		payments: payments,
		orders:   orders,
		profiles: profiles,
		currency: currency,
		log:      log,
		inFlight: make(map[string]struct{}),
	}
}

// Checkout validates the preconditions in order, re-checks stock, takes
// payment when the method is card, creates the order and clears the cart.
// Any failure leaves the cart as it was.
func (o *Orchestrator) Checkout(ctx context.Context, sess Session, req Request) (Result, error) {
	if !o.acquire(sess.ID) {
		return Result{}, ErrCheckoutInProgress
	}
	defer o.release(sess.ID)

	log := o.log.With(zap.String("session", sess.ID))
	res := Result{IdempotencyKey: req.IdempotencyKey}
	if res.IdempotencyKey == "" {
		res.IdempotencyKey = uuid.NewString()
	}

	address, err := o.validate(ctx, sess, req)
	if err != nil {
		return res, err
	}

	notices, err := o.recheckStock(ctx, sess)
	res.Notices = notices
	if err != nil {
		return res, err
	}

	items := sess.Cart.Items()
	if len(items) == 0 {
		return res, ErrEmptyCart
	}
	lines := toLineItems(items)
	minor := money.TaxInclusiveMinor(cart.TotalPrice(items))
	res.Total = money.FromMinor(minor)

	if req.PaymentMethod == api.PaymentCard {
		chargeID, err := o.charge(ctx, req, minor, lines, address, res.IdempotencyKey)
		if err != nil {
			return res, err
		}
		res.ChargeID = chargeID
	}

	order, err := o.orders.CreateOrder(ctx, req.Token, api.CreateOrderRequest{
		Items:           lines,
		ShippingAddress: address.Flatten(),
		PaymentMethod:   req.PaymentMethod,
		Total:           res.Total,
		ChargeID:        res.ChargeID,
		IdempotencyKey:  res.IdempotencyKey,
	})
	if err != nil {
		if res.ChargeID != "" {
			log.Error("order creation failed after a successful charge; charge was not reversed",
				zap.String("charge_id", res.ChargeID), zap.String("idempotency_key", res.IdempotencyKey), zap.Error(err))
		}
		return res, fmt.Errorf("create order: %w", err)
	}
	res.OrderID = order.ID

	if err := sess.Cart.Clear(ctx); err != nil {
		log.Error("order created but cart could not be cleared", zap.String("order_id", order.ID), zap.Error(err))
	}
	log.Info("checkout completed", zap.String("order_id", order.ID), zap.String("payment_method", req.PaymentMethod))
	return res, nil
}

func (o *Orchestrator) validate(ctx context.Context, sess Session, req Request) (addressbook.Address, error) {
	if len(sess.Cart.Items()) == 0 {
		return addressbook.Address{}, ErrEmptyCart
	}
	if req.Claims == nil || req.Claims.UserID == "" {
		return addressbook.Address{}, ErrUnauthenticated
	}

	addrs, err := sess.Addresses.List(ctx)
	if err != nil {
		return addressbook.Address{}, err
	}
	if len(addrs) == 0 {
		return addressbook.Address{}, ErrNoShippingAddress
	}

	var address *addressbook.Address
	for i := range addrs {
		if addrs[i].ID == req.AddressID {
			address = &addrs[i]
			break
		}
	}
	if req.AddressID == "" || address == nil {
		return addressbook.Address{}, ErrNoAddressSelected
	}

	if strings.TrimSpace(req.PaymentMethod) == "" {
		return addressbook.Address{}, ErrNoPaymentMethod
	}
	return *address, nil
}

// recheckStock polls live stock and reconciles the cart. Out of stock lines
// block checkout; clamped quantities send the shopper back to review.
func (o *Orchestrator) recheckStock(ctx context.Context, sess Session) ([]cart.Notice, error) {
	snap, err := sess.Stock.Poll(ctx, sess.Cart.ProductIDs())
	if errors.Is(err, stock.ErrStalePoll) {
		latest, ok := sess.Stock.Latest()
		if !ok {
			return nil, err
		}
		snap, err = latest, nil
	}
	if err != nil {
		return nil, err
	}

	rec, err := reconcile.Reconcile(ctx, sess.Cart, snap.Stock)
	if err != nil {
		return nil, err
	}
	if len(rec.OutOfStock) > 0 {
		return rec.Notices, ErrOutOfStock
	}
	if len(rec.Adjusted) > 0 {
		return rec.Notices, ErrQuantityAdjusted
	}
	return rec.Notices, nil
}

func (o *Orchestrator) charge(ctx context.Context, req Request, minor int64, lines []api.LineItem, address addressbook.Address, key string) (string, error) {
	if req.CardToken == "" {
		return "", ErrMissingCard
	}
	name, email := o.billingContact(ctx, req, address)

	intent, err := o.payments.CreateIntent(ctx, req.Token, api.CreateIntentRequest{
		Amount:          minor,
		Currency:        o.currency,
		Items:           lines,
		ShippingAddress: address.Flatten(),
		IdempotencyKey:  key,
	})
	if err != nil {
		return "", fmt.Errorf("create payment intent: %w", err)
	}

	charge, err := o.payments.ConfirmCard(ctx, req.Token, api.ConfirmPaymentRequest{
		ClientSecret: intent.ClientSecret,
		CardToken:    req.CardToken,
		BillingName:  name,
		BillingEmail: email,
	})
	if err != nil {
		return "", fmt.Errorf("confirm payment: %w", err)
	}
	if charge.Status != api.ChargeSucceeded {
		msg := charge.Error
		if msg == "" {
			msg = fmt.Sprintf("payment was not completed (status %s)", charge.Status)
		}
		return "", apperr.Wrap(apperr.ErrPayment, msg, ErrPaymentFailed)
	}
	return charge.ID, nil
}

// billingContact prefers what the shopper typed, then the saved profile,
// then the shipping address name.
func (o *Orchestrator) billingContact(ctx context.Context, req Request, address addressbook.Address) (string, string) {
	name, email := req.BillingName, req.BillingEmail
	if (name == "" || email == "") && o.profiles != nil {
		p, err := o.profiles.GetProfile(ctx, req.Token)
		if err != nil {
			o.log.Warn("profile lookup failed", zap.Error(err))
		} else {
			if name == "" {
				name = p.FullName
			}
			if email == "" {
				email = p.Email
			}
		}
	}
	if name == "" {
		name = address.FullName
	}
	return name, email
}

func (o *Orchestrator) acquire(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[id]; busy {
		return false
	}
	o.inFlight[id] = struct{}{}
	return true
}

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, id)
}

func toLineItems(items []cart.Item) []api.LineItem {
	lines := make([]api.LineItem, len(items))
	for i, it := range items {
		var size *string
		if it.Size != "" {
			s := it.Size
			size = &s
		}
		lines[i] = api.LineItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			Price:     it.Price,
			Size:      size,
		}
	}
	return lines
}
