package orders

import (
	"time"

	"github.com/fjod/go_storefront/internal/api"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusPaid       Status = "paid"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusPaid, StatusProcessing, StatusCancelled},
	StatusPaid:       {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped},
	StatusShipped:    {StatusDelivered},
}

func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusPaid, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return st, true
	default:
		return "", false
	}
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// releasesStock reports whether moving an order to status returns its items
// to stock.
func releasesStock(status Status) bool {
	return status == StatusCancelled
}

type Item struct {
	ProductID string
	Name      string
	Size      string
	Quantity  int
	Price     decimal.Decimal
}

type Order struct {
	ID              uuid.UUID
	UserID          string
	IdempotencyKey  string
	Status          Status
	PaymentMethod   string
	ChargeID        string
	ShippingAddress string
	Total           decimal.Decimal
	Currency        string
	Items           []Item
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (o *Order) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

func (o *Order) ToAPI() api.Order {
	items := make([]api.LineItem, len(o.Items))
	for i, it := range o.Items {
		var size *string
		if it.Size != "" {
			s := it.Size
			size = &s
		}
		items[i] = api.LineItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			Price:     it.Price,
			Size:      size,
		}
	}
	return api.Order{
		ID:              o.ID.String(),
		UserID:          o.UserID,
		Status:          string(o.Status),
		PaymentMethod:   o.PaymentMethod,
		ChargeID:        o.ChargeID,
		ShippingAddress: o.ShippingAddress,
		Total:           o.Total,
		Currency:        o.Currency,
		Items:           items,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

type Filter struct {
	UserID string
	Status Status
	Limit  int
	Offset int
}

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderCancelled     = "OrderCancelled"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type EventItem struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size,omitempty"`
	Quantity  int    `json:"quantity"`
}

// Event is the payload written to the outbox and published to Kafka.
type Event struct {
	EventType  string          `json:"event_type"`
	OrderID    string          `json:"order_id"`
	UserID     string          `json:"user_id"`
	Status     string          `json:"status"`
	Total      decimal.Decimal `json:"total"`
	Items      []EventItem     `json:"items"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func newEvent(eventType string, o *Order) Event {
	items := make([]EventItem, len(o.Items))
	for i, it := range o.Items {
		items[i] = EventItem{ProductID: it.ProductID, Size: it.Size, Quantity: it.Quantity}
	}
	return Event{
		EventType:  eventType,
		OrderID:    o.ID.String(),
		UserID:     o.UserID,
		Status:     string(o.Status),
		Total:      o.Total,
		Items:      items,
		OccurredAt: time.Now().UTC(),
	}
}
