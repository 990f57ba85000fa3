package callstore_test

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for the SQL store tests
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igoforth/ws-rpc/callstore"
)

// stores returns one instance of every Store implementation, each backed by
// fresh state.
func stores(t *testing.T) map[string]callstore.Store {
	t.Helper()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "calls.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	return map[string]callstore.Store{
		"memory": callstore.NewMemoryStore(),
		"sql":    callstore.NewSQLStore(db),
	}
}

func call(id string, sentAt, timeoutAt int64) callstore.Call {
	return callstore.Call{
		ID:        id,
		Method:    "remoteMethod",
		Params:    `{"id":"123"}`,
		Callback:  "onDone",
		SentAt:    sentAt,
		TimeoutAt: timeoutAt,
	}
}

func TestSaveIsVisibleToGet(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			want := call("durable-1", 100, 1100)
			require.NoError(t, store.Save(want))

			got, ok, err := store.Get("durable-1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, want, got)

			_, ok, err = store.Get("durable-99")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestSaveReplacesByID(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Save(call("durable-1", 100, 1100)))
			replaced := call("durable-1", 200, 2200)
			require.NoError(t, store.Save(replaced))

			got, ok, err := store.Get("durable-1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, replaced, got)

			all, err := store.ListAll()
			require.NoError(t, err)
			assert.Len(t, all, 1)
		})
	}
}

func TestGetReturnsACopy(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Save(call("durable-1", 100, 1100)))
			got, _, err := store.Get("durable-1")
			require.NoError(t, err)
			got.Method = "mutated"

			again, _, err := store.Get("durable-1")
			require.NoError(t, err)
			assert.Equal(t, "remoteMethod", again.Method)
		})
	}
}

func TestDelete(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Save(call("durable-1", 100, 1100)))

			ok, err := store.Delete("durable-1")
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = store.Delete("durable-1")
			require.NoError(t, err)
			assert.False(t, ok, "second delete reports absence")
		})
	}
}

func TestListExpired(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Save(call("durable-1", 10, 500)))
			require.NoError(t, store.Save(call("durable-2", 20, 300)))
			require.NoError(t, store.Save(call("durable-3", 30, 900)))

			expired, err := store.ListExpired(500)
			require.NoError(t, err)
			require.Len(t, expired, 2)
			// Sorted ascending by timeout.
			assert.Equal(t, "durable-2", expired[0].ID)
			assert.Equal(t, "durable-1", expired[1].ID)
		})
	}
}

func TestListAllSortedBySentAt(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Save(call("durable-2", 300, 900)))
			require.NoError(t, store.Save(call("durable-1", 100, 800)))
			require.NoError(t, store.Save(call("durable-3", 200, 700)))

			all, err := store.ListAll()
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, []string{"durable-1", "durable-3", "durable-2"},
				[]string{all[0].ID, all[1].ID, all[2].ID})
		})
	}
}

func TestClear(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Save(call("durable-1", 100, 1100)))
			require.NoError(t, store.Save(call("durable-2", 200, 2200)))
			require.NoError(t, store.Clear())

			all, err := store.ListAll()
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

// The SQL store shares its table across store instances on the same handle,
// which is exactly how a recreated peer finds its predecessor's calls.
func TestSQLStoreSharesState(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "calls.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	first := callstore.NewSQLStore(db)
	require.NoError(t, first.Save(call("durable-1", 100, 1100)))

	second := callstore.NewSQLStore(db)
	got, ok, err := second.Get("durable-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "remoteMethod", got.Method)
}
