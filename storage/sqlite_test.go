package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WongZhiYun/Lost-Found/models"
	"github.com/WongZhiYun/Lost-Found/scoring"
)

const postDDL = `
CREATE TABLE post (
    id INTEGER PRIMARY KEY,
    title VARCHAR(100) NOT NULL,
    description TEXT NOT NULL,
    type VARCHAR(10) NOT NULL,
    location VARCHAR(50),
    category VARCHAR(50),
    image VARCHAR(100),
    date_posted DATETIME,
    user_id INTEGER,
    is_approved BOOLEAN,
    image_hash TEXT
)`

const reportDDL = `
CREATE TABLE report (
    id INTEGER PRIMARY KEY,
    title VARCHAR(200),
    description TEXT,
    date_event DATETIME,
    place VARCHAR(200),
    category VARCHAR(100),
    image_filename VARCHAR(300),
    status VARCHAR(50) DEFAULT 'pending',
    owner_id INTEGER,
    created_at DATETIME
)`

func setupSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:", PostSchema)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.DB().Exec(postDDL)
	require.NoError(t, err)

	rows := []struct {
		id       int64
		title    string
		desc     string
		location any
		category any
		image    any
		date     string
		approved any
		hash     any
	}{
		{1, "Red wallet", "brown leather", "Library", "wallet", "wallet.jpg", "2024-05-01 10:00:00.000000", 1, "c3d4e5f60718293a"},
		{2, "Blue phone", "cracked screen", "Cafe", "phone", nil, "2024-05-02 09:30:00.000000", 1, nil},
		{3, "Keys", "ring of keys near the wallet shop", nil, "keys", "", "2024-05-03 08:00:00.000000", 1, nil},
		{4, "Hidden wallet", "awaiting moderation", "Gym", "wallet", "hidden.png", "2024-05-04 08:00:00.000000", 0, nil},
		{5, "100% cotton scarf", "grey_scarf", "Hall", "clothing", "scarf.png", "2024-05-05 08:00:00.000000", 1, nil},
		{6, "Umbrella", "black", "Bus stop", "misc", nil, "2024-05-06 08:00:00.000000", nil, nil},
	}
	for _, r := range rows {
		_, err := store.DB().Exec(
			`INSERT INTO post (id, title, description, type, location, category, image, date_posted, is_approved, image_hash)
			 VALUES (?, ?, ?, 'lost', ?, ?, ?, ?, ?, ?)`,
			r.id, r.title, r.desc, r.location, r.category, r.image, r.date, r.approved, r.hash)
		require.NoError(t, err)
	}
	return store
}

func ids(reports []models.Report) []int64 {
	out := make([]int64, 0, len(reports))
	for _, r := range reports {
		out = append(out, r.ID)
	}
	return out
}

func TestSQLiteStore_ListApproved(t *testing.T) {
	store := setupSQLite(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		filter   models.ReportFilter
		expected []int64
	}{
		{"all approved newest first", models.ReportFilter{}, []int64{5, 3, 2, 1}},
		{"category", models.ReportFilter{Category: "wallet"}, []int64{1}},
		{"text matches any field", models.ReportFilter{Text: "wallet"}, []int64{3, 1}},
		{"text is case insensitive", models.ReportFilter{Text: "CAFE"}, []int64{2}},
		{"text and category", models.ReportFilter{Text: "wallet", Category: "keys"}, []int64{3}},
		{"percent is literal", models.ReportFilter{Text: "%"}, []int64{5}},
		{"underscore is literal", models.ReportFilter{Text: "_"}, []int64{5}},
		{"no match", models.ReportFilter{Text: "zzz_nomatch"}, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListApproved(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ids(got))
		})
	}
}

func TestSQLiteStore_ListApprovedFoldsUnicode(t *testing.T) {
	store := setupSQLite(t)
	ctx := context.Background()

	_, err := store.DB().Exec(`INSERT INTO post (id, title, description, type, location, date_posted, is_approved)
		VALUES (7, 'ÉCHARPE ROUGE', 'laine', 'lost', 'Gare du Nord', '2024-05-07 08:00:00.000000', 1)`)
	require.NoError(t, err)

	for _, text := range []string{"écharpe", "ÉCHARPE", "Écharpe rouge", "GARE"} {
		got, err := store.ListApproved(ctx, models.ReportFilter{Text: text})
		require.NoError(t, err)
		require.Equal(t, []int64{7}, ids(got), text)
		assert.Positive(t, scoring.TextScore(got[0], text), text)
	}

	// The in-memory store agrees.
	r, err := store.Get(ctx, 7)
	require.NoError(t, err)
	got, err := NewMemoryStore(*r).ListApproved(ctx, models.ReportFilter{Text: "écharpe"})
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, ids(got))
}

func TestSQLiteStore_ListApprovedMatchesTextInProcess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewSQLiteStoreFromDB(db, PostSchema)
	mock.ExpectQuery(`SELECT .+ FROM post WHERE \(is_approved\) AND category = \? ORDER BY date_posted DESC, id DESC`).
		WithArgs("wallet").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "description", "location", "category", "image", "image_hash", "approved", "date_posted"}).
			AddRow(2, "Portefeuille ÉTÉ", "", "", "wallet", "", "", true, "2024-05-02 10:00:00").
			AddRow(1, "Red wallet", "", "", "wallet", "", "", true, "2024-05-01 10:00:00"))

	got, err := store.ListApproved(context.Background(), models.ReportFilter{Text: "été", Category: "wallet"})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids(got))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_Get(t *testing.T) {
	store := setupSQLite(t)
	ctx := context.Background()

	r, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Red wallet", r.Title)
	assert.Equal(t, "Library", r.Location)
	assert.Equal(t, "wallet.jpg", r.ImageRef)
	assert.Equal(t, "c3d4e5f60718293a", r.Fingerprint)
	assert.True(t, r.Approved)
	assert.True(t, r.CreatedAt.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)), "got %v", r.CreatedAt)

	r, err = store.Get(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, r.Location)
	assert.Empty(t, r.Fingerprint)

	r, err = store.Get(ctx, 4)
	require.NoError(t, err)
	assert.False(t, r.Approved)

	_, err = store.Get(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ListWithImages(t *testing.T) {
	store := setupSQLite(t)

	got, err := store.ListWithImages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 4, 5}, ids(got))
}

func TestSQLiteStore_UpdateFingerprint(t *testing.T) {
	store := setupSQLite(t)
	ctx := context.Background()

	require.NoError(t, store.UpdateFingerprint(ctx, 5, "00ff00ff00ff00ff"))
	r, err := store.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "00ff00ff00ff00ff", r.Fingerprint)

	err = store.UpdateFingerprint(ctx, 99, "00")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_EnsureFingerprintColumn(t *testing.T) {
	store, err := NewSQLiteStore(":memory:", ReportSchema)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	err = store.EnsureFingerprintColumn(ctx)
	assert.ErrorIs(t, err, ErrNotFound, "table does not exist yet")

	_, err = store.DB().Exec(reportDDL)
	require.NoError(t, err)
	_, err = store.DB().Exec(`INSERT INTO report (id, title, place, image_filename, status, created_at)
		VALUES (1, 'Black umbrella', 'Station', 'umbrella.jpg', 'approved', '2024-06-01 12:00:00')`)
	require.NoError(t, err)

	require.NoError(t, store.EnsureFingerprintColumn(ctx))
	require.NoError(t, store.EnsureFingerprintColumn(ctx), "second run is a no-op")

	require.NoError(t, store.UpdateFingerprint(ctx, 1, "abcdef0123456789"))
	got, err := store.ListApproved(ctx, models.ReportFilter{Text: "station"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Station", got[0].Location)
	assert.Equal(t, "umbrella.jpg", got[0].ImageRef)
	assert.Equal(t, "abcdef0123456789", got[0].Fingerprint)
}

func TestSQLiteStore_PropagatesQueryErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewSQLiteStoreFromDB(db, PostSchema)
	mock.ExpectQuery("SELECT .+ FROM post WHERE").WillReturnError(errors.New("disk I/O error"))

	_, err = store.ListApproved(context.Background(), models.ReportFilter{})
	assert.EqualError(t, err, "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_UpdateFingerprintExecError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewSQLiteStoreFromDB(db, PostSchema)
	mock.ExpectExec("UPDATE post SET image_hash").
		WithArgs("abcd", int64(7)).
		WillReturnError(errors.New("database is locked"))

	err = store.UpdateFingerprint(context.Background(), 7, "abcd")
	assert.EqualError(t, err, "database is locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for _, s := range []string{
		"2024-05-01T10:00:00Z",
		"2024-05-01 10:00:00",
		"2024-05-01 10:00:00.000000",
		"2024-05-01T10:00:00",
	} {
		assert.True(t, parseTimestamp(s).Equal(want), s)
	}
	assert.True(t, parseTimestamp("garbage").IsZero())
}
