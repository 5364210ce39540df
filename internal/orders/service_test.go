package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fjod/go_storefront/internal/api"
	"github.com/fjod/go_storefront/internal/apperr"
	"github.com/fjod/go_storefront/internal/session"
	"github.com/fjod/go_storefront/pkg/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeRepo prices every line at 10.00 and keeps orders in memory.
type fakeRepo struct {
	orders  map[uuid.UUID]*Order
	byKey   map[string]*Order
	lastIn  NewOrder
	filter  Filter
	listErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{orders: map[uuid.UUID]*Order{}, byKey: map[string]*Order{}}
}

func (f *fakeRepo) CreateOrder(_ context.Context, in NewOrder, check BeforeCommit) (*Order, bool, error) {
	f.lastIn = in
	if o, ok := f.byKey[in.UserID+in.IdempotencyKey]; ok {
		return o, false, nil
	}
	if in.ChargeID != "" {
		for _, o := range f.orders {
			if o.ChargeID == in.ChargeID {
				return nil, false, ErrChargeAlreadyUsed
			}
		}
	}
	o := &Order{
		ID:             uuid.New(),
		UserID:         in.UserID,
		IdempotencyKey: in.IdempotencyKey,
		Status:         in.Status,
		PaymentMethod:  in.PaymentMethod,
		ChargeID:       in.ChargeID,
		Currency:       in.Currency,
		CreatedAt:      time.Now(),
	}
	for _, it := range in.Items {
		it.Price = decimal.NewFromInt(10)
		o.Items = append(o.Items, it)
	}
	o.Total = money.TaxInclusiveTotal(o.Subtotal())
	if !o.Total.Equal(in.Total) {
		return nil, false, ErrTotalMismatch
	}
	if check != nil {
		if err := check(o); err != nil {
			return nil, false, err
		}
	}
	f.orders[o.ID] = o
	f.byKey[in.UserID+in.IdempotencyKey] = o
	return o, true, nil
}

func (f *fakeRepo) GetOrder(_ context.Context, id uuid.UUID) (*Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (f *fakeRepo) ListOrders(_ context.Context, flt Filter) ([]*Order, int, error) {
	f.filter = flt
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	var out []*Order
	for _, o := range f.orders {
		out = append(out, o)
	}
	return out, len(out), nil
}

func (f *fakeRepo) CancelOrder(_ context.Context, id uuid.UUID, userID string) (*Order, error) {
	o, ok := f.orders[id]
	if !ok || o.UserID != userID {
		return nil, ErrOrderNotFound
	}
	if o.Status != StatusPending {
		return nil, ErrNotCancellable
	}
	o.Status = StatusCancelled
	return o, nil
}

func (f *fakeRepo) UpdateStatus(_ context.Context, id uuid.UUID, to Status) (*Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if !CanTransition(o.Status, to) {
		return nil, ErrInvalidTransition
	}
	o.Status = to
	return o, nil
}

func (f *fakeRepo) GetUnpublishedEvents(context.Context, int) ([]*OutboxEvent, error) { return nil, nil }

func (f *fakeRepo) MarkEventPublished(context.Context, int64) error { return nil }

type fakeCharges struct {
	userID, chargeID string
	amount           int64
	err              error
}

func (f *fakeCharges) VerifyCharge(userID, chargeID string, amount int64) error {
	f.userID, f.chargeID, f.amount = userID, chargeID, amount
	return f.err
}

type fakeInvalidator struct {
	ids []string
}

func (f *fakeInvalidator) InvalidateStock(_ context.Context, ids ...string) error {
	f.ids = append(f.ids, ids...)
	return nil
}

func customer(id string) *session.Claims {
	return &session.Claims{UserID: id, Role: session.RoleCustomer}
}

func orderRequest(method string) api.CreateOrderRequest {
	size := "M"
	return api.CreateOrderRequest{
		Items: []api.LineItem{
			{ProductID: "shirt", Quantity: 1, Price: decimal.NewFromInt(10), Size: &size},
			{ProductID: "mug", Quantity: 1, Price: decimal.NewFromInt(10)},
		},
		ShippingAddress: "Ada Lovelace, 1 Main St, 10115 Berlin, DE",
		PaymentMethod:   method,
		Total:           decimal.RequireFromString("23.80"),
		IdempotencyKey:  "key-1",
	}
}

func newTestService(t *testing.T) (*Service, *fakeRepo, *fakeCharges, *fakeInvalidator) {
	repo := newFakeRepo()
	charges := &fakeCharges{}
	inv := &fakeInvalidator{}
	return NewService(repo, charges, inv, "EUR", zaptest.NewLogger(t)), repo, charges, inv
}

func TestCreateOrder_CashOnDelivery(t *testing.T) {
	svc, repo, charges, inv := newTestService(t)

	o, created, err := svc.CreateOrder(context.Background(), customer("user-1"), orderRequest(api.PaymentCOD))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, "eur", o.Currency)
	assert.Equal(t, "M", repo.lastIn.Items[0].Size)
	assert.Empty(t, repo.lastIn.Items[1].Size)
	assert.Empty(t, charges.chargeID, "no charge lookup for cash on delivery")
	assert.Equal(t, []string{"shirt", "mug"}, inv.ids)
}

func TestCreateOrder_Card(t *testing.T) {
	svc, _, charges, _ := newTestService(t)

	req := orderRequest(api.PaymentCard)
	req.ChargeID = "ch_1"
	o, created, err := svc.CreateOrder(context.Background(), customer("user-1"), req)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, StatusPaid, o.Status)
	assert.Equal(t, "user-1", charges.userID)
	assert.Equal(t, "ch_1", charges.chargeID)
	assert.Equal(t, int64(2380), charges.amount)
}

func TestCreateOrder_CardWithoutCharge(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, _, err := svc.CreateOrder(context.Background(), customer("user-1"), orderRequest(api.PaymentCard))
	assert.ErrorIs(t, err, ErrChargeRequired)
	assert.ErrorIs(t, err, apperr.ErrPayment)
}

func TestCreateOrder_ChargeRejected(t *testing.T) {
	svc, repo, charges, inv := newTestService(t)
	charges.err = apperr.New(apperr.ErrConflict, "charge does not match the order total")

	req := orderRequest(api.PaymentCard)
	req.ChargeID = "ch_1"
	_, _, err := svc.CreateOrder(context.Background(), customer("user-1"), req)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Empty(t, repo.orders)
	assert.Empty(t, inv.ids)
}

func TestCreateOrder_ChargePaysOneOrder(t *testing.T) {
	svc, repo, _, inv := newTestService(t)
	ctx := context.Background()

	req := orderRequest(api.PaymentCard)
	req.ChargeID = "ch_1"
	first, created, err := svc.CreateOrder(ctx, customer("user-1"), req)
	require.NoError(t, err)
	require.True(t, created)
	inv.ids = nil

	req.IdempotencyKey = "key-2"
	_, _, err = svc.CreateOrder(ctx, customer("user-1"), req)
	assert.ErrorIs(t, err, ErrChargeAlreadyUsed)
	assert.Equal(t, 409, apperr.HTTPStatus(err))
	assert.Len(t, repo.orders, 1)
	assert.Empty(t, inv.ids)

	// Same key and charge is still a replay, not a reuse.
	req.IdempotencyKey = "key-1"
	again, created, err := svc.CreateOrder(ctx, customer("user-1"), req)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
}

func TestCreateOrder_Replay(t *testing.T) {
	svc, _, _, inv := newTestService(t)
	ctx := context.Background()

	first, _, err := svc.CreateOrder(ctx, customer("user-1"), orderRequest(api.PaymentCOD))
	require.NoError(t, err)
	inv.ids = nil

	again, created, err := svc.CreateOrder(ctx, customer("user-1"), orderRequest(api.PaymentCOD))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Empty(t, inv.ids)
}

func TestCreateOrder_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *api.CreateOrderRequest)
	}{
		{"no items", func(r *api.CreateOrderRequest) { r.Items = nil }},
		{"missing product", func(r *api.CreateOrderRequest) { r.Items[0].ProductID = "" }},
		{"zero quantity", func(r *api.CreateOrderRequest) { r.Items[1].Quantity = 0 }},
		{"blank address", func(r *api.CreateOrderRequest) { r.ShippingAddress = "  " }},
		{"no payment method", func(r *api.CreateOrderRequest) { r.PaymentMethod = "" }},
		{"no idempotency key", func(r *api.CreateOrderRequest) { r.IdempotencyKey = "" }},
		{"zero total", func(r *api.CreateOrderRequest) { r.Total = decimal.Zero }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _, _ := newTestService(t)
			req := orderRequest(api.PaymentCOD)
			tt.mutate(&req)

			_, _, err := svc.CreateOrder(context.Background(), customer("user-1"), req)
			assert.ErrorIs(t, err, apperr.ErrValidation)
			assert.Empty(t, repo.orders)
		})
	}
}

func TestGetOrder_Ownership(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	o, _, err := svc.CreateOrder(ctx, customer("user-1"), orderRequest(api.PaymentCOD))
	require.NoError(t, err)

	got, err := svc.GetOrder(ctx, customer("user-1"), o.ID.String())
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	_, err = svc.GetOrder(ctx, customer("user-2"), o.ID.String())
	assert.ErrorIs(t, err, ErrOrderNotFound)

	admin := &session.Claims{UserID: "root", Role: session.RoleAdmin}
	_, err = svc.GetOrder(ctx, admin, o.ID.String())
	assert.NoError(t, err)

	_, err = svc.GetOrder(ctx, admin, "not-a-uuid")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCancelOrder(t *testing.T) {
	svc, _, _, inv := newTestService(t)
	ctx := context.Background()
	o, _, err := svc.CreateOrder(ctx, customer("user-1"), orderRequest(api.PaymentCOD))
	require.NoError(t, err)
	inv.ids = nil

	_, err = svc.CancelOrder(ctx, customer("user-2"), o.ID.String())
	assert.ErrorIs(t, err, ErrOrderNotFound)

	cancelled, err := svc.CancelOrder(ctx, customer("user-1"), o.ID.String())
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.ElementsMatch(t, []string{"shirt", "mug"}, inv.ids)

	_, err = svc.CancelOrder(ctx, customer("user-1"), o.ID.String())
	assert.ErrorIs(t, err, ErrNotCancellable)
}

func TestUpdateStatus(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	o, _, err := svc.CreateOrder(ctx, customer("user-1"), orderRequest(api.PaymentCOD))
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, o.ID.String(), "teleported")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.UpdateStatus(ctx, o.ID.String(), "shipped")
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	updated, err := svc.UpdateStatus(ctx, o.ID.String(), "processing")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, updated.Status)
}

func TestAdminListOrders_Paging(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()

	page, err := svc.AdminListOrders(ctx, "pending", 3, 500)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Page)
	assert.Equal(t, MaxPageSize, page.PageSize)
	assert.Equal(t, Filter{Status: StatusPending, Limit: MaxPageSize, Offset: 2 * MaxPageSize}, repo.filter)

	page, err = svc.ListOrders(ctx, customer("user-1"), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, DefaultPageSize, page.PageSize)
	assert.Equal(t, Filter{UserID: "user-1", Limit: DefaultPageSize}, repo.filter)

	_, err = svc.AdminListOrders(ctx, "bogus", 1, 10)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
