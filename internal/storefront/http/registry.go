package http

import (
	"context"
	"fmt"
	"sync"

	"github.com/fjod/go_storefront/internal/addressbook"
	"github.com/fjod/go_storefront/internal/apperr"
	"github.com/fjod/go_storefront/internal/cart"
	"github.com/fjod/go_storefront/internal/checkout"
	"github.com/fjod/go_storefront/internal/stock"
	"github.com/fjod/go_storefront/internal/storage"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Session is the hydrated state behind one cart_sid cookie.
type Session struct {
	ID        string
	Cart      *cart.Store
	Addresses *addressbook.Book
	Stock     *stock.Oracle

	mu      sync.Mutex
	pending []cart.Notice

	// refs counts requests holding the session; guarded by Registry.mu.
	refs int
}

// TakeNotices returns the hydration notices not shown yet and forgets them.
func (s *Session) TakeNotices() []cart.Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.pending
	s.pending = nil
	return n
}

func (s *Session) checkout() checkout.Session {
	return checkout.Session{ID: s.ID, Cart: s.Cart, Addresses: s.Addresses, Stock: s.Stock}
}

// Registry keeps the most recently used sessions hydrated in memory. An
// evicted session is rebuilt from storage on its next request, unless a
// request still holds it: held sessions stay reachable through inUse so one
// id never has two live cart stores.
type Registry struct {
	sessions *lru.Cache
	kv       storage.Store
	fetcher  stock.Fetcher
	parallel int
	log      *zap.Logger
	sfg      singleflight.Group

	mu    sync.Mutex
	inUse map[string]*Session
}

func NewRegistry(kv storage.Store, fetcher stock.Fetcher, size, parallel int, log *zap.Logger) (*Registry, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	return &Registry{
		sessions: cache,
		kv:       kv,
		fetcher:  fetcher,
		parallel: parallel,
		log:      log,
		inUse:    make(map[string]*Session),
	}, nil
}

// Acquire returns the session for id, hydrating its cart on first use, and
// pins it until release is called. Concurrent first requests for one id
// share a single hydration.
func (r *Registry) Acquire(ctx context.Context, id string) (*Session, func(), error) {
	r.mu.Lock()
	if s := r.lookupLocked(id); s != nil {
		r.pinLocked(s)
		r.mu.Unlock()
		return s, r.releaser(s), nil
	}
	r.mu.Unlock()

	v, err, _ := r.sfg.Do(id, func() (interface{}, error) {
		r.mu.Lock()
		if s := r.lookupLocked(id); s != nil {
			r.mu.Unlock()
			return s, nil
		}
		r.mu.Unlock()

		log := r.log.With(zap.String("session", id))
		s := &Session{
			ID:        id,
			Cart:      cart.NewStore(r.kv, id, log),
			Addresses: addressbook.New(r.kv, id, log),
			Stock:     stock.NewOracle(r.fetcher, r.parallel, log),
		}
		notices, err := s.Cart.Hydrate(ctx)
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrUnavailable, "cart storage is unavailable", err)
		}
		s.pending = notices

		r.mu.Lock()
		r.sessions.Add(id, s)
		r.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s := v.(*Session)
	// s may have been evicted before it was pinned; prefer whatever is
	// current so the id keeps a single store.
	if cur := r.lookupLocked(id); cur != nil {
		s = cur
	} else {
		r.sessions.Add(id, s)
	}
	r.pinLocked(s)
	return s, r.releaser(s), nil
}

// lookupLocked finds a cached or pinned session, re-admitting a pinned one
// to the cache.
func (r *Registry) lookupLocked(id string) *Session {
	if v, ok := r.sessions.Get(id); ok {
		return v.(*Session)
	}
	if s, ok := r.inUse[id]; ok {
		r.sessions.Add(id, s)
		return s
	}
	return nil
}

func (r *Registry) pinLocked(s *Session) {
	s.refs++
	r.inUse[s.ID] = s
}

func (r *Registry) releaser(s *Session) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			s.refs--
			if s.refs == 0 {
				delete(r.inUse, s.ID)
			}
		})
	}
}

func (r *Registry) Len() int {
	return r.sessions.Len()
}
