package checkout

import (
	"context"
	"sync"

	"github.com/fjod/go_storefront/internal/api"
	"github.com/fjod/go_storefront/internal/catalog"
)

// MockPayments implements PaymentProvider for testing
type MockPayments struct {
	mu         sync.Mutex
	Intents    []api.CreateIntentRequest
	Confirms   []api.ConfirmPaymentRequest
	IntentErr  error
	ConfirmErr error
	Status     string
	Message    string
}

func (m *MockPayments) CreateIntent(_ context.Context, _ string, req api.CreateIntentRequest) (api.CreateIntentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Intents = append(m.Intents, req)
	if m.IntentErr != nil {
		return api.CreateIntentResponse{}, m.IntentErr
	}
	return api.CreateIntentResponse{ID: "pi_1", ClientSecret: "pi_1_secret"}, nil
}

func (m *MockPayments) ConfirmCard(_ context.Context, _ string, req api.ConfirmPaymentRequest) (api.ConfirmPaymentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Confirms = append(m.Confirms, req)
	if m.ConfirmErr != nil {
		return api.ConfirmPaymentResponse{}, m.ConfirmErr
	}
	status := m.Status
	if status == "" {
		status = api.ChargeSucceeded
	}
	return api.ConfirmPaymentResponse{ID: "ch_1", Status: status, Error: m.Message}, nil
}

func (m *MockPayments) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Intents) + len(m.Confirms)
}

// MockOrders implements OrderCreator for testing
type MockOrders struct {
	mu       sync.Mutex
	Requests []api.CreateOrderRequest
	Err      error
	Block    chan struct{}
	Entered  chan struct{}
}

func (m *MockOrders) CreateOrder(_ context.Context, _ string, req api.CreateOrderRequest) (api.Order, error) {
	if m.Entered != nil {
		m.Entered <- struct{}{}
	}
	if m.Block != nil {
		<-m.Block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return api.Order{}, m.Err
	}
	return api.Order{ID: "order-1", Status: "pending", Total: req.Total}, nil
}

// MockProfiles implements ProfileSource for testing
type MockProfiles struct {
	Profile api.Profile
	Err     error
}

func (m *MockProfiles) GetProfile(context.Context, string) (api.Profile, error) {
	return m.Profile, m.Err
}

// MockFetcher implements stock.Fetcher for testing
type MockFetcher struct {
	Stock map[string]catalog.StockInfo
}

func (m *MockFetcher) FetchStock(_ context.Context, id string) (catalog.StockInfo, error) {
	info, ok := m.Stock[id]
	if !ok {
		return catalog.StockInfo{}, context.DeadlineExceeded
	}
	return info, nil
}
