package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WongZhiYun/Lost-Found/models"
)

func TestMemoryStore(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(
		models.Report{ID: 1, Title: "Red wallet", Location: "Library", Category: "wallet", ImageRef: "a.jpg", Approved: true, CreatedAt: base},
		models.Report{ID: 2, Title: "Blue phone", Location: "Cafe", Category: "phone", Approved: true, CreatedAt: base.Add(time.Hour)},
		models.Report{ID: 3, Title: "Wallet", Category: "wallet", ImageRef: "c.jpg", Approved: false, CreatedAt: base.Add(2 * time.Hour)},
		models.Report{ID: 4, Title: "Scarf", Description: "found with a WALLET", Approved: true, CreatedAt: base.Add(time.Hour)},
	)
	ctx := context.Background()

	got, err := store.ListApproved(ctx, models.ReportFilter{})
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 2, 1}, ids(got), "newest first, id breaks ties")

	got, err = store.ListApproved(ctx, models.ReportFilter{Text: "wallet"})
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 1}, ids(got))

	got, err = store.ListApproved(ctx, models.ReportFilter{Category: "wallet"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids(got))

	got, err = store.ListWithImages(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids(got))

	require.NoError(t, store.UpdateFingerprint(ctx, 3, "ffff"))
	r, err := store.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "ffff", r.Fingerprint)

	_, err = store.Get(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.UpdateFingerprint(ctx, 42, "ffff"), ErrNotFound)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, "memory", "", "post")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
	assert.NoError(t, s.EnsureFingerprintColumn(ctx))
	assert.NoError(t, s.Close())

	s, err = Open(ctx, "sqlite", ":memory:", "report")
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	assert.NoError(t, s.Close())

	_, err = Open(ctx, "mysql", "", "post")
	assert.ErrorContains(t, err, "unknown database driver")

	_, err = Open(ctx, "memory", "", "items")
	assert.Error(t, err)
}
