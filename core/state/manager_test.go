package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"stablevault/storage"
)

func TestManagerSnapshotRevert(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)

	require.NoError(t, mgr.KVPut([]byte("a"), uint64(1)))
	snap := mgr.Snapshot()
	require.NoError(t, mgr.KVPut([]byte("a"), uint64(2)))
	require.NoError(t, mgr.KVPut([]byte("b"), uint64(3)))
	require.NoError(t, mgr.KVDelete([]byte("a")))

	ok, err := mgr.KVGet([]byte("a"), nil)
	require.NoError(t, err)
	require.False(t, ok)

	mgr.RevertToSnapshot(snap)

	var a uint64
	ok, err = mgr.KVGet([]byte("a"), &a)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), a)

	ok, err = mgr.KVGet([]byte("b"), nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestManagerNestedSnapshots(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())

	outer := mgr.Snapshot()
	require.NoError(t, mgr.KVPut([]byte("k"), uint64(1)))
	inner := mgr.Snapshot()
	require.NoError(t, mgr.KVPut([]byte("k"), uint64(2)))

	mgr.RevertToSnapshot(inner)
	var v uint64
	_, err := mgr.KVGet([]byte("k"), &v)
	require.NoError(t, err)
	require.Equal(t, uint64(1), v)

	mgr.RevertToSnapshot(outer)
	ok, err := mgr.KVGet([]byte("k"), nil)
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, mgr.Pending())
}

func TestManagerCommitFlushesToDatabase(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)

	require.NoError(t, mgr.KVPut([]byte("persisted"), "value"))
	require.Zero(t, db.Len(), "writes stay in the overlay until commit")
	require.Equal(t, 1, mgr.Pending())

	require.NoError(t, mgr.Commit())
	require.Equal(t, 1, db.Len())
	require.Zero(t, mgr.Pending())

	reopened := NewManager(db)
	var out string
	ok, err := reopened.KVGet([]byte("persisted"), &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "value", out)

	require.NoError(t, reopened.KVDelete([]byte("persisted")))
	require.NoError(t, reopened.Commit())
	require.Zero(t, db.Len())
}

func TestKVRejectsEmptyKey(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	require.Error(t, mgr.KVPut(nil, uint64(1)))
	_, err := mgr.KVGet(nil, nil)
	require.Error(t, err)
	require.Error(t, mgr.KVDelete(nil))
}
