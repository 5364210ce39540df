// Package stock polls live availability for the products in a cart.
package stock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fjod/go_storefront/internal/catalog"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrStalePoll is returned when a newer poll was dispatched while this one
// was in flight. Its result must not be applied.
var ErrStalePoll = errors.New("stock: poll superseded by a newer one")

type Snapshot struct {
	Generation uint64
	Stock      map[string]catalog.StockInfo
	FetchedAt  time.Time
}

// Oracle issues one stock lookup per product and joins them into a
// Snapshot. Every poll is stamped with a generation; only the newest
// dispatched poll may become the latest snapshot.
type Oracle struct {
	fetcher  Fetcher
	parallel int
	log      *zap.Logger

	dispatched atomic.Uint64

	mu      sync.Mutex
	applied uint64
	latest  Snapshot
}

func NewOracle(fetcher Fetcher, parallel int, log *zap.Logger) *Oracle {
	if parallel < 1 {
		parallel = 1
	}
	return &Oracle{fetcher: fetcher, parallel: parallel, log: log}
}

// Poll fetches stock for productIDs. A failed lookup degrades to zero stock
// for that product and never fails the batch. Nothing is retried.
func (o *Oracle) Poll(ctx context.Context, productIDs []string) (Snapshot, error) {
	gen := o.dispatched.Add(1)
	ids := dedupe(productIDs)
	results := make([]catalog.StockInfo, len(ids))

	var g errgroup.Group
	g.SetLimit(o.parallel)
	for i, id := range ids {
		g.Go(func() error {
			info, err := o.fetcher.FetchStock(ctx, id)
			if err != nil {
				o.log.Warn("stock lookup failed, assuming none available",
					zap.String("product_id", id), zap.Uint64("generation", gen), zap.Error(err))
				info = catalog.NoStock()
			}
			results[i] = info
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Generation: gen,
		Stock:      make(map[string]catalog.StockInfo, len(ids)),
		FetchedAt:  time.Now(),
	}
	for i, id := range ids {
		snap.Stock[id] = results[i]
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if gen < o.dispatched.Load() || gen <= o.applied {
		o.log.Debug("discarding stale stock poll", zap.Uint64("generation", gen))
		return Snapshot{}, ErrStalePoll
	}
	o.applied = gen
	o.latest = snap
	return snap, nil
}

// Latest returns the most recently applied snapshot.
func (o *Oracle) Latest() (Snapshot, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.latest, o.applied > 0
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
