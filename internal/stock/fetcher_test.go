package stock

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/go_storefront/internal/apperr"
	"github.com/fjod/go_storefront/pkg/circuitbreaker"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestHTTPFetcher(t *testing.T) {
	var hits atomic.Int32
	r := chi.NewRouter()
	r.Get("/api/v1/products/{id}/stock", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		switch chi.URLParam(r, "id") {
		case "shirt":
			_, _ = w.Write([]byte(`{"sizes":[{"size":"M","stock":2}],"hasSizes":true,"totalStock":2}`))
		case "mug":
			_, _ = w.Write([]byte(`{"hasSizes":false,"totalStock":4}`))
		case "ghost":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"product not found","code":"not_found"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL+"/", time.Second, zaptest.NewLogger(t))
	ctx := context.Background()

	info, err := f.FetchStock(ctx, "shirt")
	require.NoError(t, err)
	assert.True(t, info.HasSizes)
	assert.Equal(t, 2, info.ForSize("M"))

	info, err = f.FetchStock(ctx, "mug")
	require.NoError(t, err)
	assert.Equal(t, 4, info.TotalStock)
	assert.NotNil(t, info.Sizes)

	// not found does not count against the breaker
	for i := 0; i < 6; i++ {
		_, err = f.FetchStock(ctx, "ghost")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	}

	for i := 0; i < 5; i++ {
		_, err = f.FetchStock(ctx, "broken")
		require.Error(t, err)
		assert.False(t, circuitbreaker.IsOpen(err))
	}
	before := hits.Load()
	_, err = f.FetchStock(ctx, "shirt")
	assert.True(t, circuitbreaker.IsOpen(err))
	assert.Equal(t, before, hits.Load(), "open breaker short-circuits")
}
