package catalog

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type SizeStock struct {
	Size  string `json:"size"`
	Stock int    `json:"stock"`
}

// StockInfo is the availability of one product. Sized products carry a
// per-size breakdown; TotalStock is always the sum across sizes.
type StockInfo struct {
	Sizes      []SizeStock `json:"sizes"`
	HasSizes   bool        `json:"hasSizes"`
	TotalStock int         `json:"totalStock"`
}

// NoStock is the value a failed lookup degrades to.
func NoStock() StockInfo {
	return StockInfo{Sizes: []SizeStock{}}
}

// ForSize returns the stock of one size, 0 when the size is unknown.
func (s StockInfo) ForSize(size string) int {
	for _, ss := range s.Sizes {
		if ss.Size == size {
			return ss.Stock
		}
	}
	return 0
}

// Category is either a bare reference or a resolved record.
type Category interface {
	CategoryID() string
	isCategory()
}

type CategoryRef struct {
	ID string
}

type CategoryRecord struct {
	ID   string
	Name string
	Slug string
}

func (c CategoryRef) CategoryID() string { return c.ID }

func (c CategoryRecord) CategoryID() string { return c.ID }

func (CategoryRef) isCategory() {}

func (CategoryRecord) isCategory() {}

type categoryJSON struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Slug string `json:"slug,omitempty"`
}

func (c CategoryRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(categoryJSON{Kind: "ref", ID: c.ID})
}

func (c CategoryRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(categoryJSON{Kind: "record", ID: c.ID, Name: c.Name, Slug: c.Slug})
}

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image"`
	Category    Category        `json:"category,omitempty"`
	Sizes       []SizeStock     `json:"sizes,omitempty"`
	// Stock applies to products without sizes.
	Stock     int       `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

func (p *Product) HasSizes() bool {
	return len(p.Sizes) > 0
}

func (p *Product) StockInfo() StockInfo {
	if !p.HasSizes() {
		return StockInfo{Sizes: []SizeStock{}, TotalStock: p.Stock}
	}
	total := 0
	sizes := make([]SizeStock, len(p.Sizes))
	for i, s := range p.Sizes {
		sizes[i] = s
		total += s.Stock
	}
	return StockInfo{Sizes: sizes, HasSizes: true, TotalStock: total}
}
