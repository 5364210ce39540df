// Package cart holds the shopper's pending purchase. A Store owns the lines of
// one cart session and mirrors them to durable storage after every mutation.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fjod/go_storefront/internal/snapshot"
	"github.com/fjod/go_storefront/internal/storage"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrNotHydrated = errors.New("cart: store is not hydrated")

type State int

const (
	StateUninitialized State = iota
	StateHydrating
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateHydrating:
		return "hydrating"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Key is the storage key of a session's cart.
func Key(sessionID string) string {
	return "cart:" + sessionID
}

// Store serialises all operations on one cart behind a mutex, so concurrent
// callers are applied one after another.
type Store struct {
	mu    sync.Mutex
	key   string
	kv    storage.Store
	log   *zap.Logger
	state State
	items []Item
}

func NewStore(kv storage.Store, sessionID string, log *zap.Logger) *Store {
	return &Store{
		key: Key(sessionID),
		kv:  kv,
		log: log.With(zap.String("cart_key", Key(sessionID))),
	}
}

// Hydrate loads the saved cart. It is a no-op once the store is ready. A
// document that cannot be read is discarded and the cart starts empty.
func (s *Store) Hydrate(ctx context.Context) ([]Notice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateReady {
		return nil, nil
	}
	s.state = StateHydrating

	data, err := s.kv.Get(ctx, s.key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.state = StateUninitialized
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if errors.Is(err, storage.ErrNotFound) {
		s.items = nil
		s.state = StateReady
		return nil, nil
	}

	var notices []Notice
	items, version, err := snapshot.Decode[Item](data)
	if err != nil {
		s.log.Warn("discarding unreadable cart", zap.Error(err), zap.Int("version", version))
		if delErr := s.kv.Delete(ctx, s.key); delErr != nil {
			s.log.Warn("failed to delete unreadable cart", zap.Error(delErr))
		}
		s.items = nil
		s.state = StateReady
		return []Notice{{
			Kind:    NoticeStorageReset,
			Message: "Your saved cart could not be read and was reset.",
		}}, nil
	}

	kept, dropped := sanitize(items)
	for _, d := range dropped {
		s.log.Warn("dropping cart entry", zap.String("line_id", d.item.ID), zap.String("reason", d.reason))
		if d.duplicate {
			continue
		}
		notices = append(notices, Notice{
			Kind:        NoticeInvalidEntry,
			LineID:      d.item.ID,
			ProductName: d.item.Name,
			Size:        d.item.Size,
			Message:     "An invalid item was removed from your cart.",
		})
	}

	s.items = kept
	s.state = StateReady

	if len(dropped) > 0 || version != snapshot.Version {
		if err := s.persist(ctx, kept); err != nil {
			s.log.Warn("failed to write back cleaned cart", zap.Error(err))
		}
	}
	return notices, nil
}

type droppedItem struct {
	item      Item
	reason    string
	duplicate bool
}

// sanitize drops entries that cannot be kept. Duplicate line ids keep the
// first occurrence.
func sanitize(items []Item) ([]Item, []droppedItem) {
	kept := make([]Item, 0, len(items))
	var dropped []droppedItem
	seen := make(map[string]struct{}, len(items))

	for _, it := range items {
		if reason := it.invalidReason(); reason != "" {
			dropped = append(dropped, droppedItem{item: it, reason: reason})
			continue
		}
		if it.ID == "" {
			it.ID = LineID(it.ProductID, it.Size)
		}
		if _, dup := seen[it.ID]; dup {
			dropped = append(dropped, droppedItem{item: it, reason: "duplicate line id", duplicate: true})
			continue
		}
		seen[it.ID] = struct{}{}
		kept = append(kept, it)
	}
	return kept, dropped
}

// AddItem merges item into the cart. Items missing a product id, name or
// price, or with no stock, are ignored. A quantity below 1 means 1.
func (s *Store) AddItem(ctx context.Context, item Item, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return ErrNotHydrated
	}
	if item.ProductID == "" || item.Name == "" || !item.Price.IsPositive() {
		s.log.Warn("ignoring invalid item", zap.String("product_id", item.ProductID), zap.String("name", item.Name))
		return nil
	}
	if item.Stock < 1 {
		s.log.Info("ignoring out of stock item", zap.String("product_id", item.ProductID), zap.String("size", item.Size))
		return nil
	}
	if quantity < 1 {
		quantity = 1
	}

	item.ID = LineID(item.ProductID, item.Size)
	next := s.cloneItems()

	if i := indexOf(next, item.ID); i >= 0 {
		q := min(next[i].Quantity+quantity, next[i].Stock)
		if q < 1 {
			return nil
		}
		next[i].Quantity = q
	} else {
		item.Quantity = min(quantity, item.Stock)
		next = append(next, item)
	}

	return s.commit(ctx, next)
}

func (s *Store) RemoveItem(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return ErrNotHydrated
	}
	return s.removeLocked(ctx, id)
}

func (s *Store) removeLocked(ctx context.Context, id string) error {
	i := indexOf(s.items, id)
	if i < 0 {
		return nil
	}
	next := s.cloneItems()
	next = append(next[:i], next[i+1:]...)
	return s.commit(ctx, next)
}

// UpdateItemQuantity sets a line's quantity capped at its stock. A quantity of
// zero or less removes the line.
func (s *Store) UpdateItemQuantity(ctx context.Context, id string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return ErrNotHydrated
	}
	if quantity <= 0 {
		return s.removeLocked(ctx, id)
	}

	i := indexOf(s.items, id)
	if i < 0 {
		return nil
	}
	next := s.cloneItems()
	q := min(quantity, next[i].Stock)
	if q < 1 {
		q = 1
	}
	next[i].Quantity = q
	return s.commit(ctx, next)
}

// UpdateItemStock records a new stock ceiling and lowers the quantity to it.
// It never raises the quantity and never lowers it below 1. It reports
// whether the quantity changed.
func (s *Store) UpdateItemStock(ctx context.Context, id string, stock int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return false, ErrNotHydrated
	}
	i := indexOf(s.items, id)
	if i < 0 {
		return false, nil
	}
	if stock < 0 {
		stock = 0
	}

	next := s.cloneItems()
	line := &next[i]
	clamped := false
	if line.Quantity > stock && stock >= 1 {
		line.Quantity = stock
		clamped = true
	}
	if line.Stock == stock && !clamped {
		return false, nil
	}
	line.Stock = stock
	return clamped, s.commit(ctx, next)
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return ErrNotHydrated
	}
	return s.commit(ctx, nil)
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cloneItems()
}

func (s *Store) Item(id string) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := indexOf(s.items, id); i >= 0 {
		return s.items[i], true
	}
	return Item{}, false
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store) TotalItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return TotalItems(s.items)
}

func (s *Store) TotalPrice() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return TotalPrice(s.items)
}

// ProductIDs lists each product in the cart once, in line order.
func (s *Store) ProductIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(s.items))
	ids := make([]string, 0, len(s.items))
	for _, it := range s.items {
		if it.ProductID == "" {
			continue
		}
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}
	return ids
}

func TotalItems(items []Item) int {
	total := 0
	for _, it := range items {
		total += it.Quantity
	}
	return total
}

func TotalPrice(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// commit persists next and only then makes it the current state, so a failed
// write leaves the cart as it was.
func (s *Store) commit(ctx context.Context, next []Item) error {
	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.items = next
	return nil
}

func (s *Store) persist(ctx context.Context, items []Item) error {
	data, err := snapshot.Encode(items)
	if err != nil {
		return err
	}
	if err := s.kv.Put(ctx, s.key, data); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func (s *Store) cloneItems() []Item {
	if len(s.items) == 0 {
		return nil
	}
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

func indexOf(items []Item, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}
