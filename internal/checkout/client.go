package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fjod/go_storefront/internal/api"
	"github.com/fjod/go_storefront/internal/apperr"
	"github.com/fjod/go_storefront/internal/httpx"
	"github.com/fjod/go_storefront/pkg/circuitbreaker"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// BackofficeClient calls the backoffice payment, order and profile endpoints
// on behalf of a signed-in shopper.
type BackofficeClient struct {
	baseURL string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker[struct{}]
}

func NewBackofficeClient(baseURL string, timeout time.Duration, log *zap.Logger) *BackofficeClient {
	return &BackofficeClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpx.NewClient(timeout),
		cb: circuitbreaker.New[struct{}]("backoffice", log, circuitbreaker.Settings{
			ConsecutiveFailures: 5,
			OpenTimeout:         15 * time.Second,
			Ignore:              isClientError,
		}),
	}
}

// isClientError reports answers from a healthy backoffice that rejected the
// request itself.
func isClientError(err error) bool {
	for _, kind := range []error{
		apperr.ErrValidation, apperr.ErrUnauthorized, apperr.ErrForbidden,
		apperr.ErrNotFound, apperr.ErrConflict, apperr.ErrPayment,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

func (c *BackofficeClient) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	_, err := c.cb.Execute(func() (struct{}, error) {
		req, err := httpx.NewRequest(ctx, method, c.baseURL+path, token, body)
		if err != nil {
			return struct{}{}, err
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return struct{}{}, apperr.Wrap(apperr.ErrUnavailable, "backoffice is unavailable", err)
		}
		defer resp.Body.Close()
		return struct{}{}, httpx.DecodeResponse(resp, out)
	})
	if circuitbreaker.IsOpen(err) {
		return apperr.Wrap(apperr.ErrUnavailable, "backoffice is unavailable", err)
	}
	return err
}

func (c *BackofficeClient) CreateIntent(ctx context.Context, token string, req api.CreateIntentRequest) (api.CreateIntentResponse, error) {
	var out api.CreateIntentResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/payments/intents", token, req, &out)
	return out, err
}

func (c *BackofficeClient) ConfirmCard(ctx context.Context, token string, req api.ConfirmPaymentRequest) (api.ConfirmPaymentResponse, error) {
	var out api.ConfirmPaymentResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/payments/confirm", token, req, &out)
	return out, err
}

func (c *BackofficeClient) CreateOrder(ctx context.Context, token string, req api.CreateOrderRequest) (api.Order, error) {
	var out api.Order
	err := c.do(ctx, http.MethodPost, "/api/v1/orders", token, req, &out)
	return out, err
}

func (c *BackofficeClient) GetOrder(ctx context.Context, token, id string) (api.Order, error) {
	var out api.Order
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/orders/%s", url.PathEscape(id)), token, nil, &out)
	return out, err
}

func (c *BackofficeClient) GetProfile(ctx context.Context, token string) (api.Profile, error) {
	var out api.Profile
	err := c.do(ctx, http.MethodGet, "/api/v1/profile", token, nil, &out)
	return out, err
}

func (c *BackofficeClient) GetProduct(ctx context.Context, id string) (api.ProductSummary, error) {
	var out api.ProductSummary
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/products/%s", url.PathEscape(id)), "", nil, &out)
	return out, err
}
