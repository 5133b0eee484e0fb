package fs_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchgate/patchgate/service/dao"
	"github.com/patchgate/patchgate/service/dao/store/fs"
)

type record struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

func newStore(t *testing.T) *fs.Store[record] {
	t.Helper()
	s, err := fs.New[record](filepath.Join(t.TempDir(), "records"),
		func(r *record) string { return r.ID })
	require.NoError(t, err)
	return s
}

func TestStoreSaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Save(ctx, &record{ID: "r1", Value: "v1"}))

	loaded, err := s.Load(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "v1", loaded.Value)

	// overwrite
	require.NoError(t, s.Save(ctx, &record{ID: "r1", Value: "v2"}))
	loaded, err = s.Load(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "v2", loaded.Value)

	require.NoError(t, s.Delete(ctx, "r1"))
	_, err = s.Load(ctx, "r1")
	assert.ErrorIs(t, err, dao.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "r1"), dao.ErrNotFound)
}

func TestStoreListSortedByKey(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for _, id := range []string{"b", "c", "a"} {
		require.NoError(t, s.Save(ctx, &record{ID: id}))
	}

	records, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "a", records[0].ID)
	assert.Equal(t, "b", records[1].ID)
	assert.Equal(t, "c", records[2].ID)
}

func TestStoreInvalidInput(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	assert.ErrorIs(t, s.Save(ctx, nil), dao.ErrNilEntity)
	assert.ErrorIs(t, s.Save(ctx, &record{}), dao.ErrInvalidID)
	_, err := s.Load(ctx, "")
	assert.ErrorIs(t, err, dao.ErrInvalidID)

	_, err = fs.New[record]("", func(r *record) string { return r.ID })
	assert.Error(t, err)
}

func TestStoreRejectsUnsafeKeys(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for _, key := range []string{"../outside", "a/b", "a\\b", "key with space", ".."} {
		t.Run(key, func(t *testing.T) {
			assert.ErrorIs(t, s.Save(ctx, &record{ID: key}), dao.ErrInvalidID)
			_, err := s.Load(ctx, key)
			assert.ErrorIs(t, err, dao.ErrInvalidID)
			assert.ErrorIs(t, s.Delete(ctx, key), dao.ErrInvalidID)
		})
	}
}
