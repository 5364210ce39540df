// Package reconcile keeps cart quantities within live stock without ever
// dropping a line the shopper added.
package reconcile

import (
	"context"
	"fmt"

	"github.com/fjod/go_storefront/internal/cart"
	"github.com/fjod/go_storefront/internal/catalog"
)

// Cart is the part of cart.Store the reconciler mutates.
type Cart interface {
	Items() []cart.Item
	UpdateItemStock(ctx context.Context, id string, stock int) (bool, error)
	RemoveItem(ctx context.Context, id string) error
}

type Adjustment struct {
	LineID string
	From   int
	To     int
}

type Result struct {
	Notices    []cart.Notice
	Adjusted   []Adjustment
	OutOfStock []string
	Removed    []string
}

// Changed reports whether any quantity was lowered or any line removed.
func (r Result) Changed() bool {
	return len(r.Adjusted) > 0 || len(r.Removed) > 0
}

// Available is the stock that applies to one line: the line's size when the
// product is sized, the product total otherwise. An unknown size has none.
func Available(item cart.Item, info catalog.StockInfo) int {
	if info.HasSizes && item.Size != "" {
		return info.ForSize(item.Size)
	}
	return info.TotalStock
}

// Reconcile applies a stock snapshot to the cart. Lines over availability are
// lowered to it; lines with nothing available are flagged and left as they
// are; lines missing from the snapshot keep their last known ceiling.
// Running it twice with the same snapshot changes nothing the second time.
func Reconcile(ctx context.Context, c Cart, stock map[string]catalog.StockInfo) (Result, error) {
	var res Result

	for _, item := range c.Items() {
		if item.ProductID == "" {
			if err := c.RemoveItem(ctx, item.ID); err != nil {
				return res, err
			}
			res.Removed = append(res.Removed, item.ID)
			res.Notices = append(res.Notices, cart.Notice{
				Kind:    cart.NoticeInvalidEntry,
				LineID:  item.ID,
				Message: "An invalid item was removed from your cart.",
			})
			continue
		}

		info, ok := stock[item.ProductID]
		if !ok {
			continue
		}

		avail := Available(item, info)
		if avail <= 0 {
			res.OutOfStock = append(res.OutOfStock, item.ID)
			res.Notices = append(res.Notices, cart.Notice{
				Kind:        cart.NoticeOutOfStock,
				LineID:      item.ID,
				ProductName: item.Name,
				Size:        item.Size,
				Message:     fmt.Sprintf("%s is out of stock.", describe(item)),
			})
			continue
		}

		clamped, err := c.UpdateItemStock(ctx, item.ID, avail)
		if err != nil {
			return res, err
		}
		if clamped {
			res.Adjusted = append(res.Adjusted, Adjustment{LineID: item.ID, From: item.Quantity, To: avail})
			res.Notices = append(res.Notices, cart.Notice{
				Kind:        cart.NoticeQuantityAdjusted,
				LineID:      item.ID,
				ProductName: item.Name,
				Size:        item.Size,
				Message:     fmt.Sprintf("Quantity of %s was adjusted to %d, the number available.", describe(item), avail),
			})
		}
	}
	return res, nil
}

// OutOfStock lists the ids of lines with nothing available in stock.
func OutOfStock(items []cart.Item, stock map[string]catalog.StockInfo) []string {
	var ids []string
	for _, item := range items {
		info, ok := stock[item.ProductID]
		if !ok {
			continue
		}
		if Available(item, info) <= 0 {
			ids = append(ids, item.ID)
		}
	}
	return ids
}

func describe(item cart.Item) string {
	if item.Size == "" {
		return item.Name
	}
	return fmt.Sprintf("%s (size %s)", item.Name, item.Size)
}
