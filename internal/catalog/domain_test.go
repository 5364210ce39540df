package catalog

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProduct_StockInfo(t *testing.T) {
	sized := &Product{ID: "shirt", Sizes: []SizeStock{{"S", 1}, {"M", 2}}}
	info := sized.StockInfo()
	assert.True(t, info.HasSizes)
	assert.Equal(t, 3, info.TotalStock)
	assert.Equal(t, 2, info.ForSize("M"))
	assert.Equal(t, 0, info.ForSize("XL"))

	plain := &Product{ID: "mug", Stock: 10}
	info = plain.StockInfo()
	assert.False(t, info.HasSizes)
	assert.Equal(t, 10, info.TotalStock)
	assert.NotNil(t, info.Sizes)
}

func TestCategory_JSON(t *testing.T) {
	p := Product{ID: "mug", Name: "Mug", Price: decimal.RequireFromString("8.5"), Category: CategoryRef{ID: "kitchen"}}
	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"category":{"kind":"ref","id":"kitchen"}`)

	p.Category = CategoryRecord{ID: "apparel", Name: "Apparel", Slug: "apparel"}
	data, err = json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"category":{"kind":"record","id":"apparel","name":"Apparel","slug":"apparel"}`)

	var c Category = CategoryRecord{ID: "a"}
	assert.Equal(t, "a", c.CategoryID())
}
