package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/cucumber/godog"
	"github.com/fjod/go_storefront/internal/addressbook"
	"github.com/fjod/go_storefront/internal/api"
	"github.com/fjod/go_storefront/internal/cart"
	"github.com/fjod/go_storefront/internal/catalog"
	"github.com/fjod/go_storefront/internal/reconcile"
	"github.com/fjod/go_storefront/internal/session"
	"github.com/fjod/go_storefront/internal/stock"
	"github.com/fjod/go_storefront/internal/storage"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type checkoutTestContext struct {
	ctx      context.Context
	store    *cart.Store
	book     *addressbook.Book
	fetcher  *MockFetcher
	payments *MockPayments
	orders   *MockOrders
	oracle   *stock.Oracle
	orch     *Orchestrator

	claims     *session.Claims
	addressID  string
	notices    []cart.Notice
	outOfStock []string
	result     Result
	err        error
}

func (c *checkoutTestContext) reset() error {
	log := zap.NewNop()
	kv := storage.NewMemoryStore()

	c.ctx = context.Background()
	c.store = cart.NewStore(kv, "sess-bdd", log)
	if _, err := c.store.Hydrate(c.ctx); err != nil {
		return err
	}
	c.book = addressbook.New(kv, "sess-bdd", log)
	c.fetcher = &MockFetcher{Stock: map[string]catalog.StockInfo{}}
	c.payments = &MockPayments{}
	c.orders = &MockOrders{}
	c.oracle = stock.NewOracle(c.fetcher, 4, log)
	c.orch = NewOrchestrator(c.payments, c.orders, &MockProfiles{}, "eur", log)
	c.claims = nil
	c.addressID = ""
	c.notices = nil
	c.outOfStock = nil
	c.result = Result{}
	c.err = nil
	return nil
}

func (c *checkoutTestContext) session() Session {
	return Session{ID: "sess-bdd", Cart: c.store, Addresses: c.book, Stock: c.oracle}
}

// --- given ---

func (c *checkoutTestContext) aSizedCartLine(productID, size string, quantity, ceiling int) error {
	return c.store.AddItem(c.ctx, cart.Item{
		ProductID: productID,
		Name:      "Product " + productID,
		Price:     decimal.RequireFromString("10.00"),
		Size:      size,
		Stock:     ceiling,
	}, quantity)
}

func (c *checkoutTestContext) anUnsizedCartLine(productID string, quantity, ceiling int) error {
	return c.aSizedCartLine(productID, "", quantity, ceiling)
}

func (c *checkoutTestContext) oracleReportsSize(productID, size string, n int) error {
	c.fetcher.Stock[productID] = catalog.StockInfo{
		Sizes:      []catalog.SizeStock{{Size: size, Stock: n}},
		HasSizes:   true,
		TotalStock: n,
	}
	return nil
}

func (c *checkoutTestContext) oracleReportsTotal(productID string, n int) error {
	c.fetcher.Stock[productID] = catalog.StockInfo{Sizes: []catalog.SizeStock{}, TotalStock: n}
	return nil
}

func (c *checkoutTestContext) theShopperIsSignedIn() error {
	c.claims = &session.Claims{UserID: "u1", Role: session.RoleCustomer}
	return nil
}

func (c *checkoutTestContext) theShopperHasASavedAddress() error {
	a, err := c.book.Add(c.ctx, addressbook.Address{
		FullName:   "Ada L",
		Line1:      "1 Main St",
		City:       "Berlin",
		PostalCode: "10115",
		Country:    "DE",
	})
	if err != nil {
		return err
	}
	c.addressID = a.ID
	return nil
}

func (c *checkoutTestContext) theShopperHasNoSavedAddresses() error {
	c.addressID = ""
	return nil
}

func (c *checkoutTestContext) orderCreationFails() error {
	c.orders.Err = errors.New("backoffice returned 500")
	return nil
}

// --- when ---

func (c *checkoutTestContext) theCartIsReconciled() error {
	snap, err := c.oracle.Poll(c.ctx, c.store.ProductIDs())
	if err != nil {
		return err
	}
	res, err := reconcile.Reconcile(c.ctx, c.store, snap.Stock)
	if err != nil {
		return err
	}
	c.notices = res.Notices
	c.outOfStock = reconcile.OutOfStock(c.store.Items(), snap.Stock)
	return nil
}

func (c *checkoutTestContext) theShopperChecksOutWith(method string) error {
	req := Request{
		Claims:        c.claims,
		AddressID:     c.addressID,
		PaymentMethod: method,
	}
	if method == api.PaymentCard {
		req.CardToken = "tok_visa"
		req.BillingName = "Ada L"
		req.BillingEmail = "ada@example.com"
	}
	c.result, c.err = c.orch.Checkout(c.ctx, c.session(), req)
	return nil
}

func (c *checkoutTestContext) concurrentAdds(adds, quantity int, productID, size string, ceiling int) error {
	item := cart.Item{
		ProductID: productID,
		Name:      "Product " + productID,
		Price:     decimal.RequireFromString("10.00"),
		Size:      size,
		Stock:     ceiling,
	}
	var wg sync.WaitGroup
	errs := make(chan error, adds)
	for i := 0; i < adds; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.store.AddItem(c.ctx, item, quantity)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// --- then ---

func (c *checkoutTestContext) lineHasQuantity(id string, quantity int) error {
	item, ok := c.store.Item(id)
	if !ok {
		return fmt.Errorf("line %q is not in the cart", id)
	}
	if item.Quantity != quantity {
		return fmt.Errorf("expected quantity %d for %q, got %d", quantity, id, item.Quantity)
	}
	return nil
}

func (c *checkoutTestContext) aNoticeIsShown(kind string) error {
	for _, n := range c.notices {
		if string(n.Kind) == kind {
			return nil
		}
	}
	return fmt.Errorf("expected a %q notice, got %v", kind, c.notices)
}

func (c *checkoutTestContext) noNoticeIsShown() error {
	if len(c.notices) != 0 {
		return fmt.Errorf("expected no notices, got %v", c.notices)
	}
	return nil
}

func (c *checkoutTestContext) lineIsFlaggedOutOfStock(id string) error {
	for _, got := range c.outOfStock {
		if got == id {
			return nil
		}
	}
	return fmt.Errorf("expected %q to be out of stock, got %v", id, c.outOfStock)
}

func (c *checkoutTestContext) checkoutFailsWith(substring string) error {
	if c.err == nil {
		return errors.New("expected checkout to fail but it succeeded")
	}
	if !strings.Contains(strings.ToLower(c.err.Error()), strings.ToLower(substring)) {
		return fmt.Errorf("expected error to contain %q, got %q", substring, c.err.Error())
	}
	return nil
}

func (c *checkoutTestContext) thePaymentBoundaryWasNotContacted() error {
	if n := c.payments.calls(); n != 0 {
		return fmt.Errorf("expected no payment calls, got %d", n)
	}
	return nil
}

func (c *checkoutTestContext) theCartStillHasLines(n int) error {
	if got := c.store.Len(); got != n {
		return fmt.Errorf("expected %d cart lines, got %d", n, got)
	}
	return nil
}

func (c *checkoutTestContext) anOrderIsPlaced() error {
	if c.err != nil {
		return fmt.Errorf("expected checkout to succeed, got %v", c.err)
	}
	if c.result.OrderID == "" {
		return errors.New("expected an order id")
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &checkoutTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		return ctx, tc.reset()
	})

	// Given steps
	ctx.Step(`^a cart line "([^"]*)" size "([^"]*)" with quantity (\d+) and stock (\d+)$`, tc.aSizedCartLine)
	ctx.Step(`^a cart line "([^"]*)" without size with quantity (\d+) and stock (\d+)$`, tc.anUnsizedCartLine)
	ctx.Step(`^the stock oracle reports "([^"]*)" size "([^"]*)" at (\d+)$`, tc.oracleReportsSize)
	ctx.Step(`^the stock oracle reports "([^"]*)" without sizes at (\d+)$`, tc.oracleReportsTotal)
	ctx.Step(`^the shopper is signed in$`, tc.theShopperIsSignedIn)
	ctx.Step(`^the shopper has a saved address$`, tc.theShopperHasASavedAddress)
	ctx.Step(`^the shopper has no saved addresses$`, tc.theShopperHasNoSavedAddresses)
	ctx.Step(`^order creation fails with a server error$`, tc.orderCreationFails)

	// When steps
	ctx.Step(`^the cart is reconciled$`, tc.theCartIsReconciled)
	ctx.Step(`^the shopper checks out with "([^"]*)"$`, tc.theShopperChecksOutWith)
	ctx.Step(`^(\d+) concurrent adds of (\d+) "([^"]*)" size "([^"]*)" with stock (\d+)$`, tc.concurrentAdds)

	// Then steps
	ctx.Step(`^line "([^"]*)" has quantity (\d+)$`, tc.lineHasQuantity)
	ctx.Step(`^a "([^"]*)" notice is shown$`, tc.aNoticeIsShown)
	ctx.Step(`^no notice is shown$`, tc.noNoticeIsShown)
	ctx.Step(`^line "([^"]*)" is flagged out of stock$`, tc.lineIsFlaggedOutOfStock)
	ctx.Step(`^checkout fails with "([^"]*)"$`, tc.checkoutFailsWith)
	ctx.Step(`^the payment boundary was not contacted$`, tc.thePaymentBoundaryWasNotContacted)
	ctx.Step(`^the cart still has (\d+) lines?$`, tc.theCartStillHasLines)
	ctx.Step(`^an order is placed$`, tc.anOrderIsPlaced)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
