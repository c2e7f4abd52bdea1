package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"

	"batchledger/internal/infra/persistence/postgres/testutil"
	"batchledger/pkg/domain"
)

func openStubStore(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)

	store, err := NewStore("postgres://stub", nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store, conn
}

func TestNewStoreEnsuresStateTable(t *testing.T) {
	_, conn := openStubStore(t)

	var sawDDL bool
	for _, q := range conn.Execs {
		if strings.Contains(q, "CREATE TABLE IF NOT EXISTS state") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("state table DDL never issued: %v", conn.Execs)
	}
}

func TestCommitPersistsAllBuckets(t *testing.T) {
	store, conn := openStubStore(t)

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateBatch(domain.Batch{
			ID:       "B1",
			Quantity: 10,
			OwnerRef: "u1",
			Label:    "lot",
			Status:   domain.StatusCreated,
			Holder:   "0xaaa",
			History:  []string{"created"},
		}); err != nil {
			return err
		}
		tx.AppendEvent(domain.Event{Type: domain.EventBatchCreated, BatchID: "B1"})
		return nil
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	for _, bucket := range []string{"roles", "batches", "batch_index", "owner_index", "events"} {
		if _, ok := conn.Buckets[bucket]; !ok {
			t.Fatalf("bucket %s never written; got %v", bucket, conn.Buckets)
		}
	}

	var batches map[string]domain.Batch
	if err := json.Unmarshal(conn.Buckets["batches"], &batches); err != nil {
		t.Fatalf("decode batches bucket: %v", err)
	}
	if _, ok := batches["B1"]; !ok {
		t.Fatalf("batch missing from persisted bucket: %v", batches)
	}
}

func TestNewStoreHydratesFromExistingSnapshot(t *testing.T) {
	db, conn := testutil.NewStubDB()
	seed := map[string]domain.Batch{
		"B1": {ID: "B1", Quantity: 5, OwnerRef: "u1", Status: domain.StatusAtDistributor, History: []string{"created", "received"}},
	}
	payload, err := json.Marshal(seed)
	if err != nil {
		t.Fatalf("encode seed: %v", err)
	}
	conn.Buckets["batches"] = payload
	order, _ := json.Marshal([]string{"B1"})
	conn.Buckets["batch_index"] = order

	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)

	store, err := NewStore("postgres://stub", nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	got, ok := store.GetBatch("B1")
	if !ok {
		t.Fatalf("seeded batch not hydrated")
	}
	if got.Status != domain.StatusAtDistributor || len(got.History) != 2 {
		t.Fatalf("hydrated batch differs: %+v", got)
	}
}

func TestNewStoreFailsWhenUnreachable(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)

	if _, err := NewStore("postgres://stub", nil); err == nil {
		t.Fatalf("expected ping failure to surface")
	}
}

func TestPersistFailureSurfacesAfterCommit(t *testing.T) {
	store, conn := openStubStore(t)
	conn.FailBegin = true

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateBatch(domain.Batch{ID: "B1", Quantity: 1, History: []string{"created"}})
		return err
	})
	if err == nil || !strings.Contains(err.Error(), "begin") {
		t.Fatalf("expected begin failure, got %v", err)
	}
}
