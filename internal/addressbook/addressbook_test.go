package addressbook

import (
	"context"
	"testing"

	"github.com/fjod/go_storefront/internal/apperr"
	"github.com/fjod/go_storefront/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func home() Address {
	return Address{
		FullName:   "Ada Lovelace",
		Line1:      "12 St James's Square",
		City:       "London",
		PostalCode: "SW1Y 4JH",
		Country:    "GB",
	}
}

func TestFlatten(t *testing.T) {
	a := home()
	assert.Equal(t, "Ada Lovelace, 12 St James's Square, SW1Y 4JH London, GB", a.Flatten())

	a.Line2 = "Flat 3"
	a.Phone = "+44 20 0000"
	assert.Equal(t, "Ada Lovelace, 12 St James's Square, Flat 3, SW1Y 4JH London, GB, +44 20 0000", a.Flatten())
}

func TestBook_AddListRemove(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	b := New(kv, "sess-1", zaptest.NewLogger(t))

	list, err := b.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	saved, err := b.Add(ctx, home())
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)

	_, err = b.Add(ctx, Address{FullName: "Nobody"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	// a second book over the same storage sees the address
	other := New(kv, "sess-1", zaptest.NewLogger(t))
	got, ok, err := other.Get(ctx, saved.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, saved, got)

	require.NoError(t, b.Remove(ctx, saved.ID))
	require.NoError(t, b.Remove(ctx, "missing"))
	list, err = b.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestBook_DiscardsUnreadable(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	require.NoError(t, kv.Put(ctx, Key("sess-1"), []byte(`{"version":3,"items":[]}`)))

	b := New(kv, "sess-1", zaptest.NewLogger(t))
	list, err := b.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = kv.Get(ctx, Key("sess-1"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBook_LegacyArray(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	require.NoError(t, kv.Put(ctx, Key("sess-1"), []byte(`[{"id":"a1","fullName":"Ada","line1":"x","city":"y","postalCode":"z","country":"GB"},{"fullName":"no id"}]`)))

	b := New(kv, "sess-1", zaptest.NewLogger(t))
	list, err := b.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a1", list[0].ID)
}
