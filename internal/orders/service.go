// Package orders creates and manages orders. Creation checks and decrements
// stock, verifies card charges and records an outbox event in a single
// Postgres transaction.
package orders

import (
	"context"
	"strings"

	"github.com/fjod/go_storefront/internal/api"
	"github.com/fjod/go_storefront/internal/apperr"
	"github.com/fjod/go_storefront/internal/session"
	"github.com/fjod/go_storefront/pkg/money"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type ChargeVerifier interface {
	VerifyCharge(userID, chargeID string, amount int64) error
}

type StockInvalidator interface {
	InvalidateStock(ctx context.Context, productIDs ...string) error
}

type Service struct {
	repo     Repository
	charges  ChargeVerifier
	stock    StockInvalidator
	currency string
	log      *zap.Logger
}

func NewService(repo Repository, charges ChargeVerifier, stock StockInvalidator, currency string, log *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		charges:  charges,
		stock:    stock,
		currency: strings.ToLower(currency),
		log:      log,
	}
}

// CreateOrder places an order for the caller. The bool is false when the
// idempotency key matched an earlier order, which is returned unchanged.
func (s *Service) CreateOrder(ctx context.Context, claims *session.Claims, req api.CreateOrderRequest) (*Order, bool, error) {
	if err := validateCreate(req); err != nil {
		return nil, false, err
	}

	in := NewOrder{
		UserID:          claims.UserID,
		IdempotencyKey:  req.IdempotencyKey,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: strings.TrimSpace(req.ShippingAddress),
		Currency:        s.currency,
		Status:          StatusPending,
		Items:           make([]Item, len(req.Items)),
		Total:           req.Total,
	}
	for i, l := range req.Items {
		in.Items[i] = Item{ProductID: l.ProductID, Quantity: l.Quantity}
		if l.Size != nil {
			in.Items[i].Size = *l.Size
		}
	}

	var check BeforeCommit
	if req.PaymentMethod == api.PaymentCard {
		if req.ChargeID == "" {
			return nil, false, ErrChargeRequired
		}
		in.ChargeID = req.ChargeID
		in.Status = StatusPaid
		check = func(o *Order) error {
			return s.charges.VerifyCharge(o.UserID, o.ChargeID, money.ToMinor(o.Total))
		}
	}

	order, created, err := s.repo.CreateOrder(ctx, in, check)
	if err != nil {
		return nil, false, err
	}

	log := s.log.With(zap.String("order_id", order.ID.String()), zap.String("user_id", order.UserID))
	if !created {
		log.Info("order replayed for idempotency key", zap.String("idempotency_key", req.IdempotencyKey))
		return order, false, nil
	}
	log.Info("order created",
		zap.String("status", string(order.Status)), zap.String("total", order.Total.String()))
	s.invalidate(ctx, order)
	return order, true, nil
}

func validateCreate(req api.CreateOrderRequest) error {
	if len(req.Items) == 0 {
		return apperr.New(apperr.ErrValidation, "order has no items")
	}
	for _, l := range req.Items {
		if l.ProductID == "" {
			return apperr.New(apperr.ErrValidation, "every item needs a productId")
		}
		if l.Quantity < 1 {
			return apperr.New(apperr.ErrValidation, "item quantity must be at least 1")
		}
	}
	switch {
	case strings.TrimSpace(req.ShippingAddress) == "":
		return apperr.New(apperr.ErrValidation, "shipping address is required")
	case req.PaymentMethod == "":
		return apperr.New(apperr.ErrValidation, "payment method is required")
	case req.IdempotencyKey == "":
		return apperr.New(apperr.ErrValidation, "idempotency key is required")
	case !req.Total.IsPositive():
		return apperr.New(apperr.ErrValidation, "total must be positive")
	}
	return nil
}

// GetOrder returns the order if the caller owns it or is an admin. Other
// users get ErrOrderNotFound.
func (s *Service) GetOrder(ctx context.Context, claims *session.Claims, id string) (*Order, error) {
	orderID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrOrderNotFound
	}
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !claims.IsAdmin() && o.UserID != claims.UserID {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (s *Service) ListOrders(ctx context.Context, claims *session.Claims, page, pageSize int) (api.OrderPage, error) {
	return s.list(ctx, Filter{UserID: claims.UserID}, page, pageSize)
}

func (s *Service) CancelOrder(ctx context.Context, claims *session.Claims, id string) (*Order, error) {
	orderID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrOrderNotFound
	}
	o, err := s.repo.CancelOrder(ctx, orderID, claims.UserID)
	if err != nil {
		return nil, err
	}
	s.log.Info("order cancelled", zap.String("order_id", id), zap.String("user_id", claims.UserID))
	s.invalidate(ctx, o)
	return o, nil
}

// AdminListOrders lists every order, optionally narrowed to one status.
func (s *Service) AdminListOrders(ctx context.Context, status string, page, pageSize int) (api.OrderPage, error) {
	f := Filter{}
	if status != "" {
		st, ok := ParseStatus(status)
		if !ok {
			return api.OrderPage{}, apperr.New(apperr.ErrValidation, "unknown order status "+status)
		}
		f.Status = st
	}
	return s.list(ctx, f, page, pageSize)
}

func (s *Service) UpdateStatus(ctx context.Context, id, status string) (*Order, error) {
	orderID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrOrderNotFound
	}
	to, ok := ParseStatus(status)
	if !ok {
		return nil, apperr.New(apperr.ErrValidation, "unknown order status "+status)
	}
	o, err := s.repo.UpdateStatus(ctx, orderID, to)
	if err != nil {
		return nil, err
	}
	s.log.Info("order status changed", zap.String("order_id", id), zap.String("status", status))
	if releasesStock(to) {
		s.invalidate(ctx, o)
	}
	return o, nil
}

func (s *Service) list(ctx context.Context, f Filter, page, pageSize int) (api.OrderPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	f.Limit = pageSize
	f.Offset = (page - 1) * pageSize

	orders, total, err := s.repo.ListOrders(ctx, f)
	if err != nil {
		return api.OrderPage{}, err
	}
	out := api.OrderPage{
		Orders:   make([]api.Order, len(orders)),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}
	for i, o := range orders {
		out.Orders[i] = o.ToAPI()
	}
	return out, nil
}

// invalidate drops cached stock right away; the outbox event does the same
// for other backoffice instances.
func (s *Service) invalidate(ctx context.Context, o *Order) {
	if s.stock == nil {
		return
	}
	seen := make(map[string]bool, len(o.Items))
	ids := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			ids = append(ids, it.ProductID)
		}
	}
	if err := s.stock.InvalidateStock(ctx, ids...); err != nil {
		s.log.Warn("failed to invalidate stock cache", zap.Strings("product_ids", ids), zap.Error(err))
	}
}
