package sqlitedb

import (
	"context"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"code.autosig.org/golang/pkg/credentials"
	"code.autosig.org/golang/pkg/credentials/credtest"
)

// setupTestStore creates a CredStore on a named in-memory database.
// The name derived from t.Name() isolates the tests.
func setupTestStore(t *testing.T) *CredStore {
	t.Helper()

	db, err := NewMemoryDB(url.PathEscape(t.Name()))
	require.NoError(t, err)

	store, err := NewCredStore(db)
	if err != nil {
		_ = db.Close()
		t.Fatalf("failed NewCredStore, got error %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestCredStore(t *testing.T) {
	credtest.Run(t, func(t *testing.T) credentials.CredStore {
		return setupTestStore(t)
	})
}

func TestCredStore_MigrateIdempotent(t *testing.T) {
	store := setupTestStore(t)

	require.NoError(t, Migrate(store.db.Writer))
	require.NoError(t, Migrate(store.db.Writer))
}

func TestCredStore_Rebuild(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	record := credtest.NewRecord(credentials.Teacher, "T001")
	require.NoError(t, store.InsertRecord(ctx, &record))

	require.NoError(t, Rebuild(store.db.Writer))

	count, err := store.RecordCount(ctx, credentials.Teacher)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// schema is usable after rebuild
	require.NoError(t, store.InsertRecord(ctx, &record))
}

func TestCredStore_File(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "autosig.db")

	db, err := NewDB(path)
	require.NoError(t, err)
	store, err := NewCredStore(db)
	require.NoError(t, err)

	record := credtest.NewRecord(credentials.Student, "S001")
	record.WxOpenId = "openid-S001"
	require.NoError(t, store.InsertRecord(ctx, &record))
	require.NoError(t, store.Close())

	// reopen & reload
	db, err = NewDB(path)
	require.NoError(t, err)
	store, err = NewCredStore(db)
	require.NoError(t, err)
	defer store.Close()

	var loaded credentials.Record
	require.NoError(t, store.FindByOpenId(ctx, credentials.Student, "openid-S001", &loaded))
	assert.NoError(t, credtest.Equal(record, loaded))
}

func TestCredStore_EmptyOpenIdNotIndexed(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"S001", "S002"} {
		record := credtest.NewRecord(credentials.Student, id)
		require.NoError(t, store.InsertRecord(ctx, &record))
	}

	var loaded credentials.Record
	err := store.FindByOpenId(ctx, credentials.Student, "", &loaded)
	assert.ErrorIs(t, err, credentials.ErrNotFound)
}
