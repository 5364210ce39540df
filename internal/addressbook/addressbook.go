// Package addressbook keeps the shipping addresses a shopper entered, stored
// next to the cart under addresses:{session}.
package addressbook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fjod/go_storefront/internal/apperr"
	"github.com/fjod/go_storefront/internal/snapshot"
	"github.com/fjod/go_storefront/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Address struct {
	ID         string `json:"id"`
	FullName   string `json:"fullName"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

func (a Address) Validate() error {
	var missing []string
	if strings.TrimSpace(a.FullName) == "" {
		missing = append(missing, "fullName")
	}
	if strings.TrimSpace(a.Line1) == "" {
		missing = append(missing, "line1")
	}
	if strings.TrimSpace(a.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(a.PostalCode) == "" {
		missing = append(missing, "postalCode")
	}
	if strings.TrimSpace(a.Country) == "" {
		missing = append(missing, "country")
	}
	if len(missing) > 0 {
		return apperr.New(apperr.ErrValidation, "missing address fields: "+strings.Join(missing, ", "))
	}
	return nil
}

// Flatten renders the address as the single line stored on an order.
func (a Address) Flatten() string {
	parts := []string{a.FullName, a.Line1}
	if a.Line2 != "" {
		parts = append(parts, a.Line2)
	}
	parts = append(parts, strings.TrimSpace(a.PostalCode+" "+a.City), a.Country)
	if a.Phone != "" {
		parts = append(parts, a.Phone)
	}
	return strings.Join(parts, ", ")
}

func Key(sessionID string) string {
	return "addresses:" + sessionID
}

type Book struct {
	mu     sync.Mutex
	key    string
	kv     storage.Store
	log    *zap.Logger
	loaded bool
	addrs  []Address
}

func New(kv storage.Store, sessionID string, log *zap.Logger) *Book {
	return &Book{key: Key(sessionID), kv: kv, log: log}
}

func (b *Book) load(ctx context.Context) error {
	if b.loaded {
		return nil
	}
	data, err := b.kv.Get(ctx, b.key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		b.addrs = nil
	case err != nil:
		return fmt.Errorf("load addresses: %w", err)
	default:
		addrs, _, decErr := snapshot.Decode[Address](data)
		if decErr != nil {
			b.log.Warn("discarding unreadable address book", zap.String("key", b.key), zap.Error(decErr))
			if err := b.kv.Delete(ctx, b.key); err != nil {
				b.log.Warn("failed to delete address book", zap.Error(err))
			}
		}
		for _, a := range addrs {
			if a.ID == "" || a.Validate() != nil {
				continue
			}
			b.addrs = append(b.addrs, a)
		}
	}
	b.loaded = true
	return nil
}

func (b *Book) List(ctx context.Context) ([]Address, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.load(ctx); err != nil {
		return nil, err
	}
	out := make([]Address, len(b.addrs))
	copy(out, b.addrs)
	return out, nil
}

func (b *Book) Get(ctx context.Context, id string) (Address, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.load(ctx); err != nil {
		return Address{}, false, err
	}
	for _, a := range b.addrs {
		if a.ID == id {
			return a, true, nil
		}
	}
	return Address{}, false, nil
}

// Add validates and stores a, assigning an id when it has none.
func (b *Book) Add(ctx context.Context, a Address) (Address, error) {
	if err := a.Validate(); err != nil {
		return Address{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.load(ctx); err != nil {
		return Address{}, err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	next := append(append([]Address(nil), b.addrs...), a)
	if err := b.save(ctx, next); err != nil {
		return Address{}, err
	}
	return a, nil
}

func (b *Book) Remove(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.load(ctx); err != nil {
		return err
	}
	next := make([]Address, 0, len(b.addrs))
	for _, a := range b.addrs {
		if a.ID != id {
			next = append(next, a)
		}
	}
	if len(next) == len(b.addrs) {
		return nil
	}
	return b.save(ctx, next)
}

func (b *Book) save(ctx context.Context, addrs []Address) error {
	data, err := snapshot.Encode(addrs)
	if err != nil {
		return err
	}
	if err := b.kv.Put(ctx, b.key, data); err != nil {
		return fmt.Errorf("save addresses: %w", err)
	}
	b.addrs = addrs
	return nil
}
