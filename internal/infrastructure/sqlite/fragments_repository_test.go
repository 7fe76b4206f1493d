package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func setupTestRepo(t *testing.T) (*DB, *FragmentsRepository) {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "fragments.db"))
	require.NoError(t, err, "Failed to create test database")
	t.Cleanup(func() { db.Close() })
	return db, db.Fragments()
}

func TestFragmentsRepository_PutGetLast(t *testing.T) {
	_, repo := setupTestRepo(t)
	ctx := context.Background()
	stored := time.UnixMilli(1_700_000_000_000)

	err := repo.Put(ctx, Record{ModelID: "house", FragmentsCount: 12, Source: "api:abc", Data: []byte("fragments"), StoredAt: stored})
	require.NoError(t, err)

	got, err := repo.Last(ctx)
	require.NoError(t, err)
	require.Equal(t, &Record{
		Key:            LastKey,
		ModelID:        "house",
		FragmentsCount: 12,
		Source:         "api:abc",
		Data:           []byte("fragments"),
		StoredAt:       stored,
	}, got)
}

func TestFragmentsRepository_PutReplaces(t *testing.T) {
	_, repo := setupTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, Record{ModelID: "a", Data: []byte("one")}))
	require.NoError(t, repo.Put(ctx, Record{ModelID: "b", Data: []byte("two")}))

	got, err := repo.Last(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", got.ModelID)
	require.Equal(t, []byte("two"), got.Data)

	entries, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestFragmentsRepository_RequiresModelID(t *testing.T) {
	_, repo := setupTestRepo(t)
	require.Error(t, repo.Put(context.Background(), Record{Data: []byte("x")}))
}

func TestFragmentsRepository_NotFound(t *testing.T) {
	_, repo := setupTestRepo(t)
	ctx := context.Background()

	_, err := repo.Last(ctx)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = repo.Stat(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, repo.Delete(ctx, "missing"))
}

func TestFragmentsRepository_StatCompresses(t *testing.T) {
	_, repo := setupTestRepo(t)
	ctx := context.Background()
	data := make([]byte, 64*1024)
	for i := range data {
		data[i] = byte(i % 7)
	}

	require.NoError(t, repo.Put(ctx, Record{Key: "big", ModelID: "big", Data: data}))
	e, err := repo.Stat(ctx, "big")
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), e.Size)
	require.Less(t, e.StoredSize, e.Size)
	require.Len(t, e.Digest, 64)
	require.WithinDuration(t, time.Now(), e.StoredAt, time.Minute)
}

func TestFragmentsRepository_ChecksumMismatch(t *testing.T) {
	db, repo := setupTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Put(ctx, Record{ModelID: "house", Data: []byte("fragments")}))

	_, err := db.conn.Exec("UPDATE fragments SET digest = ? WHERE key = ?", make([]byte, 32), LastKey)
	require.NoError(t, err)

	_, err = repo.Last(ctx)
	require.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestFragmentsRepository_CorruptPayload(t *testing.T) {
	db, repo := setupTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Put(ctx, Record{ModelID: "house", Data: []byte("fragments")}))

	_, err := db.conn.Exec("UPDATE fragments SET payload = ? WHERE key = ?", []byte("not zstd"), LastKey)
	require.NoError(t, err)

	_, err = repo.Last(ctx)
	require.ErrorContains(t, err, "decompress")
}

func TestFragmentsRepository_ListDeleteClear(t *testing.T) {
	_, repo := setupTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, Record{Key: "old", ModelID: "a", Data: []byte("a"), StoredAt: time.UnixMilli(1000)}))
	require.NoError(t, repo.Put(ctx, Record{Key: "new", ModelID: "b", Data: []byte("b"), StoredAt: time.UnixMilli(2000)}))
	require.NoError(t, repo.Put(ctx, Record{Key: "mid", ModelID: "c", Data: []byte("c"), StoredAt: time.UnixMilli(1500)}))

	entries, err := repo.List(ctx)
	require.NoError(t, err)
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	require.Equal(t, []string{"new", "mid", "old"}, keys)

	require.NoError(t, repo.Delete(ctx, "mid"))
	n, err := repo.Clear(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	entries, err = repo.List(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestFragmentsRepository_RoundTripProperty(t *testing.T) {
	_, repo := setupTestRepo(t)
	ctx := context.Background()

	rapid.Check(t, func(rt *rapid.T) {
		data := rapid.SliceOf(rapid.Byte()).Draw(rt, "data")
		count := rapid.IntRange(0, 1_000_000).Draw(rt, "count")

		require.NoError(rt, repo.Put(ctx, Record{ModelID: "m", FragmentsCount: count, Data: data}))
		got, err := repo.Last(ctx)
		require.NoError(rt, err)
		require.Equal(rt, len(data), len(got.Data))
		if len(data) > 0 {
			require.Equal(rt, data, got.Data)
		}
		require.Equal(rt, count, got.FragmentsCount)
	})
}
