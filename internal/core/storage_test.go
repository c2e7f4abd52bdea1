package core

import (
	"path/filepath"
	"testing"

	"batchledger/internal/infra/persistence/memory"
	"batchledger/internal/infra/persistence/sqlite"
)

func TestOpenPersistentStoreMemoryDriver(t *testing.T) {
	t.Setenv("BATCHLEDGER_STORAGE_DRIVER", string(StorageMemory))

	store, err := OpenPersistentStore(DefaultRulesEngine())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestOpenPersistentStoreSQLiteDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	t.Setenv("BATCHLEDGER_STORAGE_DRIVER", string(StorageSQLite))
	t.Setenv("BATCHLEDGER_SQLITE_PATH", path)

	store, err := OpenPersistentStore(nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	sq, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}
	defer func() { _ = sq.Close() }()
	if sq.Path() != path {
		t.Fatalf("expected path %s, got %s", path, sq.Path())
	}
}

func TestOpenPersistentStoreDefaultsToSQLite(t *testing.T) {
	t.Setenv("BATCHLEDGER_STORAGE_DRIVER", "")
	t.Setenv("BATCHLEDGER_SQLITE_PATH", filepath.Join(t.TempDir(), "default.db"))

	store, err := OpenPersistentStore(nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	sq, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("expected sqlite store by default, got %T", store)
	}
	_ = sq.Close()
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	t.Setenv("BATCHLEDGER_STORAGE_DRIVER", "etcd")

	if _, err := OpenPersistentStore(nil); err == nil {
		t.Fatalf("expected unknown driver to fail")
	}
}
