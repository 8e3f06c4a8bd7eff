package store

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string {
	return &s
}

func testStores(t *testing.T) map[string]RecordStore {
	t.Helper()
	pebbleStore, err := NewPebbleMemStore()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pebbleStore.Close()
	})
	return map[string]RecordStore{
		"memory": NewMemoryStore(),
		"pebble": pebbleStore,
	}
}

func TestCreateAndFind(t *testing.T) {
	for name, rs := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			rec := Record{ID: "m1", Role: "user", Content: strPtr("hello")}
			created, err := rs.Create(ctx, rec)
			require.NoError(t, err)
			assert.Equal(t, rec, created)

			found, err := rs.FindByID(ctx, "m1")
			require.NoError(t, err)
			assert.Equal(t, rec, found)
		})
	}
}

func TestFindMissing(t *testing.T) {
	for name, rs := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := rs.FindByID(context.Background(), "nope")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestCreateDuplicate(t *testing.T) {
	for name, rs := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := rs.Create(ctx, Record{ID: "m1", Role: "user"})
			require.NoError(t, err)
			_, err = rs.Create(ctx, Record{ID: "m1", Role: "user"})
			require.Error(t, err)
		})
	}
}

func TestCreateEmptyID(t *testing.T) {
	for name, rs := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := rs.Create(context.Background(), Record{Role: "user"})
			require.Error(t, err)
		})
	}
}

func TestUpdatePartial(t *testing.T) {
	for name, rs := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := rs.Create(ctx, Record{ID: "m1", Role: "assistant", Status: strPtr("pending")})
			require.NoError(t, err)

			updated, err := rs.Update(ctx, "m1", Update{Content: strPtr("01234")})
			require.NoError(t, err)
			require.NotNil(t, updated.Content)
			assert.Equal(t, "01234", *updated.Content)
			// untouched fields survive
			require.NotNil(t, updated.Status)
			assert.Equal(t, "pending", *updated.Status)

			updated, err = rs.Update(ctx, "m1", Update{Status: strPtr("finished")})
			require.NoError(t, err)
			require.NotNil(t, updated.Content)
			assert.Equal(t, "01234", *updated.Content)
			assert.Equal(t, "finished", *updated.Status)

			found, err := rs.FindByID(ctx, "m1")
			require.NoError(t, err)
			assert.Equal(t, updated, found)
		})
	}
}

func TestUpdateMissing(t *testing.T) {
	for name, rs := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := rs.Update(context.Background(), "nope", Update{Content: strPtr("x")})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestUpdateIsZero(t *testing.T) {
	assert.True(t, Update{}.IsZero())
	assert.False(t, Update{Content: strPtr("")}.IsZero())
	assert.False(t, Update{Status: strPtr("pending")}.IsZero())
}
