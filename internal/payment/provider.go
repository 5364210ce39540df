// Package payment is a simulated card payment provider: intents are created
// for an amount, confirmed with a card token and expire when left unconfirmed.
package payment

import (
	"strings"
	"sync"
	"time"

	"github.com/fjod/go_storefront/internal/api"
	"github.com/fjod/go_storefront/internal/apperr"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultIntentTTL is how long an intent may stay unconfirmed.
	DefaultIntentTTL = 30 * time.Minute

	// CleanupInterval is how often the background sweep runs.
	CleanupInterval = 30 * time.Second

	// retention keeps finished intents around so orders can verify charges.
	retention = 24 * time.Hour

	statusExpired = "expired"
)

var (
	ErrIntentNotFound   = apperr.New(apperr.ErrNotFound, "payment intent not found")
	ErrIntentExpired    = apperr.New(apperr.ErrConflict, "payment intent expired")
	ErrChargeNotFound   = apperr.New(apperr.ErrPayment, "charge not found")
	ErrChargeMismatch   = apperr.New(apperr.ErrConflict, "charge does not match the order total")
	ErrChargeIncomplete = apperr.New(apperr.ErrPayment, "charge has not succeeded")
)

type Intent struct {
	ID              string
	ClientSecret    string
	UserID          string
	Amount          int64
	Currency        string
	Items           []api.LineItem
	ShippingAddress string
	IdempotencyKey  string
	Status          string
	ChargeID        string
	LastError       string
	BillingName     string
	BillingEmail    string
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

func (i *Intent) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// Provider keeps intents in memory.
type Provider struct {
	mu       sync.RWMutex
	intents  map[string]*Intent // intent id -> intent
	bySecret map[string]string  // client secret -> intent id
	byKey    map[string]string  // user id + idempotency key -> intent id
	byCharge map[string]string  // charge id -> intent id
	status   StatusSource
	ttl      time.Duration
	log      *zap.Logger
	now      func() time.Time

	stopCleanup chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func NewProvider(status StatusSource, ttl time.Duration, log *zap.Logger) *Provider {
	if ttl <= 0 {
		ttl = DefaultIntentTTL
	}
	p := &Provider{
		intents:     make(map[string]*Intent),
		bySecret:    make(map[string]string),
		byKey:       make(map[string]string),
		byCharge:    make(map[string]string),
		status:      status,
		ttl:         ttl,
		log:         log,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	p.wg.Add(1)
	go p.cleanupLoop()

	return p
}

func (p *Provider) cleanupLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.expireIntents()
		case <-p.stopCleanup:
			return
		}
	}
}

// expireIntents marks unconfirmed intents past their TTL as expired and
// forgets finished ones after the retention window.
func (p *Provider) expireIntents() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	expired := 0
	for id, intent := range p.intents {
		if intent.Status != api.ChargeSucceeded && intent.Status != statusExpired && intent.IsExpired(now) {
			intent.Status = statusExpired
			expired++
			continue
		}
		if now.Sub(intent.ExpiresAt) > retention {
			p.forget(id, intent)
		}
	}
	if expired > 0 {
		p.log.Info("payment intents expired", zap.Int("count", expired))
	}
}

func (p *Provider) forget(id string, intent *Intent) {
	delete(p.intents, id)
	delete(p.bySecret, intent.ClientSecret)
	if intent.IdempotencyKey != "" {
		delete(p.byKey, idempotencyIndex(intent.UserID, intent.IdempotencyKey))
	}
	if intent.ChargeID != "" {
		delete(p.byCharge, intent.ChargeID)
	}
}

func idempotencyIndex(userID, key string) string {
	return userID + "\x00" + key
}

// CreateIntent registers a new intent. A retry with the same idempotency key
// and amount returns the intent created the first time.
func (p *Provider) CreateIntent(userID string, req api.CreateIntentRequest) (*Intent, error) {
	if req.Amount <= 0 {
		return nil, apperr.New(apperr.ErrValidation, "amount must be positive")
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		return nil, apperr.New(apperr.ErrValidation, "currency is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if req.IdempotencyKey != "" {
		if id, ok := p.byKey[idempotencyIndex(userID, req.IdempotencyKey)]; ok {
			existing := p.intents[id]
			if existing.Amount != req.Amount || existing.Currency != currency {
				return nil, apperr.New(apperr.ErrConflict, "idempotency key reused with a different amount")
			}
			if existing.Status == api.ChargeSucceeded || (existing.Status != statusExpired && !existing.IsExpired(now)) {
				return cloneIntent(existing), nil
			}
			p.forget(id, existing)
		}
	}

	id := "pi_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	intent := &Intent{
		ID:              id,
		ClientSecret:    id + "_secret_" + strings.ReplaceAll(uuid.New().String(), "-", ""),
		UserID:          userID,
		Amount:          req.Amount,
		Currency:        currency,
		Items:           req.Items,
		ShippingAddress: req.ShippingAddress,
		IdempotencyKey:  req.IdempotencyKey,
		Status:          api.ChargeRequiresInput,
		CreatedAt:       now,
		ExpiresAt:       now.Add(p.ttl),
	}
	p.intents[id] = intent
	p.bySecret[intent.ClientSecret] = id
	if req.IdempotencyKey != "" {
		p.byKey[idempotencyIndex(userID, req.IdempotencyKey)] = id
	}

	p.log.Info("payment intent created",
		zap.String("intent_id", id), zap.String("user_id", userID), zap.Int64("amount", req.Amount))
	return cloneIntent(intent), nil
}

// Confirm charges the card behind the client secret. A decline is reported in
// the response, not as an error, and leaves the intent open for another card.
func (p *Provider) Confirm(userID string, req api.ConfirmPaymentRequest) (api.ConfirmPaymentResponse, error) {
	if req.ClientSecret == "" {
		return api.ConfirmPaymentResponse{}, apperr.New(apperr.ErrValidation, "client secret is required")
	}
	if req.CardToken == "" {
		return api.ConfirmPaymentResponse{}, apperr.New(apperr.ErrValidation, "card token is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	id, ok := p.bySecret[req.ClientSecret]
	if !ok {
		return api.ConfirmPaymentResponse{}, ErrIntentNotFound
	}
	intent := p.intents[id]
	if intent.UserID != userID {
		return api.ConfirmPaymentResponse{}, ErrIntentNotFound
	}

	switch {
	case intent.Status == api.ChargeSucceeded:
		return api.ConfirmPaymentResponse{ID: intent.ChargeID, Status: api.ChargeSucceeded}, nil
	case intent.Status == statusExpired || intent.IsExpired(p.now()):
		intent.Status = statusExpired
		return api.ConfirmPaymentResponse{}, ErrIntentExpired
	}

	intent.BillingName = req.BillingName
	intent.BillingEmail = req.BillingEmail

	status, refusal := p.status.GetStatus(req.CardToken)
	if status != api.ChargeSucceeded {
		intent.Status = api.ChargeRequiresInput
		intent.LastError = refusal.Message()
		p.log.Info("payment declined",
			zap.String("intent_id", intent.ID), zap.String("reason", intent.LastError))
		return api.ConfirmPaymentResponse{ID: intent.ID, Status: api.ChargeFailed, Error: intent.LastError}, nil
	}

	intent.Status = api.ChargeSucceeded
	intent.LastError = ""
	intent.ChargeID = "ch_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	p.byCharge[intent.ChargeID] = intent.ID

	p.log.Info("payment succeeded",
		zap.String("intent_id", intent.ID), zap.String("charge_id", intent.ChargeID), zap.Int64("amount", intent.Amount))
	return api.ConfirmPaymentResponse{ID: intent.ChargeID, Status: api.ChargeSucceeded}, nil
}

// VerifyCharge checks that chargeID is a succeeded charge of amount minor
// units made by userID.
func (p *Provider) VerifyCharge(userID, chargeID string, amount int64) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	id, ok := p.byCharge[chargeID]
	if !ok {
		return ErrChargeNotFound
	}
	intent := p.intents[id]
	if intent.UserID != userID {
		return ErrChargeNotFound
	}
	if intent.Status != api.ChargeSucceeded {
		return ErrChargeIncomplete
	}
	if intent.Amount != amount {
		return ErrChargeMismatch
	}
	return nil
}

func (p *Provider) Intent(id string) (*Intent, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	intent, ok := p.intents[id]
	if !ok {
		return nil, false
	}
	return cloneIntent(intent), true
}

// Close stops the background sweep.
func (p *Provider) Close() {
	p.stopOnce.Do(func() {
		close(p.stopCleanup)
	})
	p.wg.Wait()
}

func cloneIntent(i *Intent) *Intent {
	c := *i
	c.Items = append([]api.LineItem(nil), i.Items...)
	return &c
}
