package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewStoreMemory(t *testing.T) {
	store, err := NewStore(DefaultStoreKind, "")
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, store)
	require.NoError(t, CloseIfSupported(store))
}

func TestNewStoreSQLite(t *testing.T) {
	store, err := NewStore("sqlite", filepath.Join(t.TempDir(), "evovis.db"))
	require.NoError(t, err)
	require.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, CloseIfSupported(store))

	_, err = NewStore("sqlite", "")
	require.Error(t, err)
}

func TestNewStoreUnsupported(t *testing.T) {
	_, err := NewStore("unknown", "")
	require.Error(t, err)
}
