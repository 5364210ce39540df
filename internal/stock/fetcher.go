package stock

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fjod/go_storefront/internal/apperr"
	"github.com/fjod/go_storefront/internal/catalog"
	"github.com/fjod/go_storefront/internal/httpx"
	"github.com/fjod/go_storefront/pkg/circuitbreaker"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type Fetcher interface {
	FetchStock(ctx context.Context, productID string) (catalog.StockInfo, error)
}

// HTTPFetcher reads stock from the backoffice. Calls go through a circuit
// breaker so a failing backoffice is not hammered by every cart view.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker[catalog.StockInfo]
}

func NewHTTPFetcher(baseURL string, timeout time.Duration, log *zap.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpx.NewClient(timeout),
		cb: circuitbreaker.New[catalog.StockInfo]("stock-fetcher", log, circuitbreaker.Settings{
			ConsecutiveFailures: 5,
			OpenTimeout:         10 * time.Second,
			Ignore: func(err error) bool {
				return errors.Is(err, apperr.ErrNotFound)
			},
		}),
	}
}

func (f *HTTPFetcher) FetchStock(ctx context.Context, productID string) (catalog.StockInfo, error) {
	return f.cb.Execute(func() (catalog.StockInfo, error) {
		endpoint := fmt.Sprintf("%s/api/v1/products/%s/stock", f.baseURL, url.PathEscape(productID))
		req, err := httpx.NewRequest(ctx, http.MethodGet, endpoint, "", nil)
		if err != nil {
			return catalog.StockInfo{}, err
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return catalog.StockInfo{}, fmt.Errorf("fetch stock %s: %w", productID, err)
		}
		defer resp.Body.Close()

		var info catalog.StockInfo
		if err := httpx.DecodeResponse(resp, &info); err != nil {
			return catalog.StockInfo{}, fmt.Errorf("fetch stock %s: %w", productID, err)
		}
		if info.Sizes == nil {
			info.Sizes = []catalog.SizeStock{}
		}
		return info, nil
	})
}
