package cart

import (
	"github.com/shopspring/decimal"
)

type Item struct {
	ID        string          `json:"id"`
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image,omitempty"`
	Size      string          `json:"size,omitempty"`
	Quantity  int             `json:"quantity"`
	// Stock is the last known availability for this line and caps Quantity
	// until a fresh stock poll says otherwise.
	Stock int `json:"stock"`
}

// LineID keys a product and size to one cart line, so two sizes of the same
// product occupy two lines.
func LineID(productID, size string) string {
	if size == "" {
		return productID
	}
	return productID + "-" + size
}

func (i Item) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// invalidReason reports why an item cannot be kept, or "" when it can.
func (i Item) invalidReason() string {
	switch {
	case i.ProductID == "":
		return "missing product id"
	case i.Name == "":
		return "missing name"
	case !i.Price.IsPositive():
		return "missing price"
	case i.Quantity < 1:
		return "invalid quantity"
	default:
		return ""
	}
}

type NoticeKind string

const (
	NoticeInvalidEntry     NoticeKind = "invalid_entry"
	NoticeStorageReset     NoticeKind = "storage_reset"
	NoticeQuantityAdjusted NoticeKind = "quantity_adjusted"
	NoticeOutOfStock       NoticeKind = "out_of_stock"
)

// Notice is a message meant for the shopper.
type Notice struct {
	Kind        NoticeKind `json:"kind"`
	LineID      string     `json:"lineId,omitempty"`
	ProductName string     `json:"productName,omitempty"`
	Size        string     `json:"size,omitempty"`
	Message     string     `json:"message"`
}
