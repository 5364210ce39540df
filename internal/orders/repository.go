package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fjod/go_storefront/internal/apperr"
	"github.com/fjod/go_storefront/pkg/money"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const maxTxAttempts = 3

const (
	constraintIdempotencyKey = "orders_idempotency_key_uniq"
	constraintChargeID       = "orders_charge_id_uniq"
)

// NewOrder is an order as submitted by a client. Prices in Items are ignored;
// they are read from the catalog while the stock rows are locked.
type NewOrder struct {
	UserID          string
	IdempotencyKey  string
	PaymentMethod   string
	ChargeID        string
	ShippingAddress string
	Currency        string
	Status          Status
	Items           []Item
	Total           decimal.Decimal
}

// BeforeCommit runs inside the order transaction once the order is priced.
// Returning an error rolls everything back.
type BeforeCommit func(o *Order) error

type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

type Repository interface {
	CreateOrder(ctx context.Context, in NewOrder, check BeforeCommit) (*Order, bool, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	ListOrders(ctx context.Context, f Filter) ([]*Order, int, error)
	CancelOrder(ctx context.Context, id uuid.UUID, userID string) (*Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to Status) (*Order, error)
	GetUnpublishedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventPublished(ctx context.Context, id int64) error
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateOrder locks the stock rows of every line, checks availability and the
// tax-inclusive total against catalog prices, decrements stock and stores the
// order with its outbox event in one serializable transaction. A second call
// with the same user and idempotency key returns the first order and false.
func (r *PostgresRepository) CreateOrder(ctx context.Context, in NewOrder, check BeforeCommit) (*Order, bool, error) {
	for attempt := 1; ; attempt++ {
		order, created, err := r.createOrderTx(ctx, in, check)
		switch {
		case err == nil:
			return order, created, nil
		case isUniqueViolation(err, constraintChargeID):
			return nil, false, ErrChargeAlreadyUsed
		case isUniqueViolation(err, constraintIdempotencyKey):
			existing, getErr := r.orderByKey(ctx, r.db, in.UserID, in.IdempotencyKey)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		case isSerializationFailure(err) && attempt < maxTxAttempts:
			continue
		default:
			return nil, false, err
		}
	}
}

func (r *PostgresRepository) createOrderTx(ctx context.Context, in NewOrder, check BeforeCommit) (*Order, bool, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	existing, err := r.orderByKey(ctx, tx, in.UserID, in.IdempotencyKey)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrOrderNotFound) {
		return nil, false, err
	}

	if in.ChargeID != "" {
		if err := chargeUnused(ctx, tx, in.ChargeID); err != nil {
			return nil, false, err
		}
	}

	items, err := lockAndPrice(ctx, tx, in.Items)
	if err != nil {
		return nil, false, err
	}

	status := in.Status
	if status == "" {
		status = StatusPending
	}
	order := &Order{
		ID:              uuid.New(),
		UserID:          in.UserID,
		IdempotencyKey:  in.IdempotencyKey,
		Status:          status,
		PaymentMethod:   in.PaymentMethod,
		ChargeID:        in.ChargeID,
		ShippingAddress: in.ShippingAddress,
		Currency:        in.Currency,
		Items:           items,
	}
	order.Total = money.TaxInclusiveTotal(order.Subtotal())
	if !order.Total.Equal(in.Total) {
		return nil, false, fmt.Errorf("expected %s, got %s: %w", order.Total, in.Total, ErrTotalMismatch)
	}

	if check != nil {
		if err := check(order); err != nil {
			return nil, false, err
		}
	}

	for _, it := range order.Items {
		if err := adjustStock(ctx, tx, it, -it.Quantity); err != nil {
			return nil, false, err
		}
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (id, user_id, idempotency_key, status, payment_method, charge_id,
		                    shipping_address, total_amount, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, NOW(), NOW())
		RETURNING created_at, updated_at`,
		order.ID,
		order.UserID,
		order.IdempotencyKey,
		order.Status,
		order.PaymentMethod,
		order.ChargeID,
		order.ShippingAddress,
		order.Total,
		order.Currency,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("insert order: %w", err)
	}

	for i, it := range order.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, line_no, product_id, name, size, quantity, price)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)`,
			order.ID, i+1, it.ProductID, it.Name, it.Size, it.Quantity, it.Price)
		if err != nil {
			return nil, false, fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := insertEvent(ctx, tx, newEvent(EventOrderCreated, order)); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit order: %w", err)
	}
	return order, true, nil
}

type stockKey struct {
	productID string
	size      string
}

// lockAndPrice merges duplicate lines, locks the stock row behind every line
// in a fixed order and fills in catalog names and prices.
func lockAndPrice(ctx context.Context, tx *sql.Tx, lines []Item) ([]Item, error) {
	var items []Item
	index := make(map[stockKey]int)
	for _, l := range lines {
		k := stockKey{l.ProductID, l.Size}
		if i, ok := index[k]; ok {
			items[i].Quantity += l.Quantity
			continue
		}
		index[k] = len(items)
		items = append(items, Item{ProductID: l.ProductID, Size: l.Size, Quantity: l.Quantity})
	}

	keys := make([]stockKey, 0, len(index))
	for k := range index {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].productID != keys[j].productID {
			return keys[i].productID < keys[j].productID
		}
		return keys[i].size < keys[j].size
	})

	for _, k := range keys {
		it := &items[index[k]]

		var stock int
		var hasSizes bool
		err := tx.QueryRowContext(ctx, `
			SELECT p.name, p.price, p.stock,
			       EXISTS (SELECT 1 FROM product_sizes s WHERE s.product_id = p.id)
			FROM products p
			WHERE p.id = $1
			FOR UPDATE OF p`, it.ProductID).Scan(&it.Name, &it.Price, &stock, &hasSizes)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.Wrap(apperr.ErrValidation,
				fmt.Sprintf("product %s is no longer available", it.ProductID), ErrUnknownProduct)
		}
		if err != nil {
			return nil, fmt.Errorf("lock product: %w", err)
		}

		if hasSizes {
			if it.Size == "" {
				return nil, apperr.Wrap(apperr.ErrValidation,
					fmt.Sprintf("choose a size for %s", it.Name), ErrSizeRequired)
			}
			err := tx.QueryRowContext(ctx, `
				SELECT stock FROM product_sizes
				WHERE product_id = $1 AND size = $2
				FOR UPDATE`, it.ProductID, it.Size).Scan(&stock)
			if errors.Is(err, sql.ErrNoRows) {
				stock = 0
			} else if err != nil {
				return nil, fmt.Errorf("lock size: %w", err)
			}
		}

		if stock < it.Quantity {
			return nil, apperr.Wrap(apperr.ErrConflict,
				fmt.Sprintf("insufficient stock for %s: %d requested, %d available", lineLabel(*it), it.Quantity, stock),
				ErrInsufficientStock)
		}
	}
	return items, nil
}

func lineLabel(it Item) string {
	if it.Size != "" {
		return fmt.Sprintf("%s (size %s)", it.Name, it.Size)
	}
	return it.Name
}

// adjustStock moves stock for one line by delta. Sized lines hit their size
// row; anything without a matching size row falls back to the product.
func adjustStock(ctx context.Context, q querier, it Item, delta int) error {
	if it.Size != "" {
		res, err := q.ExecContext(ctx, `
			UPDATE product_sizes SET stock = stock + $3
			WHERE product_id = $1 AND size = $2`, it.ProductID, it.Size, delta)
		if err != nil {
			return fmt.Errorf("update size stock: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
	}
	if _, err := q.ExecContext(ctx,
		`UPDATE products SET stock = stock + $2 WHERE id = $1`, it.ProductID, delta); err != nil {
		return fmt.Errorf("update product stock: %w", err)
	}
	return nil
}

func insertEvent(ctx context.Context, q querier, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO outbox (aggregate_id, event_type, payload) VALUES ($1, $2, $3)`,
		ev.OrderID, ev.EventType, payload)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

const orderColumns = `id, user_id, idempotency_key, status, payment_method, charge_id,
	shipping_address, total_amount, currency, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*Order, error) {
	var o Order
	var chargeID sql.NullString
	err := row.Scan(
		&o.ID,
		&o.UserID,
		&o.IdempotencyKey,
		&o.Status,
		&o.PaymentMethod,
		&chargeID,
		&o.ShippingAddress,
		&o.Total,
		&o.Currency,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}
	o.ChargeID = chargeID.String
	return &o, nil
}

func (r *PostgresRepository) orderByKey(ctx context.Context, q querier, userID, key string) (*Order, error) {
	o, err := scanOrder(q.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 AND idempotency_key = $2`, userID, key))
	if err != nil {
		return nil, err
	}
	if err := attachItems(ctx, q, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *PostgresRepository) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := attachItems(ctx, r.db, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

// ListOrders returns one page of orders, newest first, and the number of
// orders matching the filter.
func (r *PostgresRepository) ListOrders(ctx context.Context, f Filter) ([]*Order, int, error) {
	var where []string
	var args []any
	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	query := `SELECT ` + orderColumns + ` FROM orders` + clause + ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("row iteration error: %w", err)
	}

	if err := attachItems(ctx, r.db, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func attachItems(ctx context.Context, q querier, orders []*Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID.String())
	}

	rows, err := q.QueryContext(ctx, `
		SELECT order_id, product_id, name, size, quantity, price
		FROM order_items
		WHERE order_id = ANY($1::uuid[])
		ORDER BY order_id, line_no`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID uuid.UUID
		var it Item
		var size sql.NullString
		if err := rows.Scan(&orderID, &it.ProductID, &it.Name, &size, &it.Quantity, &it.Price); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		it.Size = size.String
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	return rows.Err()
}

// CancelOrder cancels a pending order owned by userID and puts its items back
// into stock.
func (r *PostgresRepository) CancelOrder(ctx context.Context, id uuid.UUID, userID string) (*Order, error) {
	return r.transition(ctx, id, StatusCancelled, func(o *Order) error {
		if o.UserID != userID {
			return ErrOrderNotFound
		}
		if o.Status != StatusPending {
			return ErrNotCancellable
		}
		return nil
	})
}

// UpdateStatus moves an order along the status transition table.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, to Status) (*Order, error) {
	return r.transition(ctx, id, to, func(o *Order) error {
		if !CanTransition(o.Status, to) {
			return apperr.Wrap(apperr.ErrConflict,
				fmt.Sprintf("cannot move order from %s to %s", o.Status, to), ErrInvalidTransition)
		}
		return nil
	})
}

func (r *PostgresRepository) transition(ctx context.Context, id uuid.UUID, to Status, allow func(o *Order) error) (*Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	o, err := scanOrder(tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if err := attachItems(ctx, tx, []*Order{o}); err != nil {
		return nil, err
	}
	if err := allow(o); err != nil {
		return nil, err
	}

	if releasesStock(to) {
		for _, it := range o.Items {
			if err := adjustStock(ctx, tx, it, it.Quantity); err != nil {
				return nil, err
			}
		}
	}

	err = tx.QueryRowContext(ctx,
		`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING updated_at`,
		id, to).Scan(&o.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	o.Status = to

	eventType := EventOrderStatusChanged
	if to == StatusCancelled {
		eventType = EventOrderCancelled
	}
	if err := insertEvent(ctx, tx, newEvent(eventType, o)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit status change: %w", err)
	}
	return o, nil
}

func (r *PostgresRepository) GetUnpublishedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

func (r *PostgresRepository) MarkEventPublished(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox SET published_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark event published: %w", err)
	}
	return nil
}

// chargeUnused fails when an earlier order already consumed chargeID. The
// unique index on orders.charge_id still guards concurrent inserts.
func chargeUnused(ctx context.Context, q querier, chargeID string) error {
	var used bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE charge_id = $1)`, chargeID).Scan(&used)
	if err != nil {
		return fmt.Errorf("check charge: %w", err)
	}
	if used {
		return ErrChargeAlreadyUsed
	}
	return nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == constraint
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && (pqErr.Code == "40001" || pqErr.Code == "40P01")
}
