// Package sqlite persists the ledger as JSON snapshot buckets in an embedded
// SQLite file. It layers durability over the in-memory store: transactional
// semantics stay identical, and the full committed state is written after
// every successful transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"batchledger/internal/infra/persistence/memory"
	"batchledger/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

// Store is a sqlite-backed persistent ledger store.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (or creates) the database at path and hydrates committed
// state from it. An empty path selects ./batchledger.db.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = "batchledger.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine), db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

const (
	bucketRoles      = "roles"
	bucketBatches    = "batches"
	bucketBatchIndex = "batch_index"
	bucketOwnerIndex = "owner_index"
	bucketEvents     = "events"
)

var buckets = []string{bucketRoles, bucketBatches, bucketBatchIndex, bucketOwnerIndex, bucketEvents}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	payloads := make(map[string][]byte, len(buckets))
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		payloads[bucket] = payload
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if len(payloads) == 0 {
		return nil
	}

	snapshot := memory.Snapshot{}
	decode := func(bucket string, target any) error {
		payload, ok := payloads[bucket]
		if !ok {
			return nil
		}
		if err := json.Unmarshal(payload, target); err != nil {
			return fmt.Errorf("decode %s: %w", bucket, err)
		}
		return nil
	}
	if err := decode(bucketRoles, &snapshot.Roles); err != nil {
		return err
	}
	if err := decode(bucketBatches, &snapshot.Batches); err != nil {
		return err
	}
	if err := decode(bucketBatchIndex, &snapshot.BatchOrder); err != nil {
		return err
	}
	if err := decode(bucketOwnerIndex, &snapshot.OwnerIndex); err != nil {
		return err
	}
	if err := decode(bucketEvents, &snapshot.Events); err != nil {
		return err
	}
	s.ImportState(snapshot)
	return nil
}

func (s *Store) persist() (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.ExportState()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range buckets {
		var data []byte
		switch bucket {
		case bucketRoles:
			data, err = json.Marshal(snapshot.Roles)
		case bucketBatches:
			data, err = json.Marshal(snapshot.Batches)
		case bucketBatchIndex:
			data, err = json.Marshal(snapshot.BatchOrder)
		case bucketOwnerIndex:
			data, err = json.Marshal(snapshot.OwnerIndex)
		case bucketEvents:
			data, err = json.Marshal(snapshot.Events)
		}
		if err != nil {
			retErr = fmt.Errorf("encode %s: %w", bucket, err)
			return retErr
		}
		if _, err = tx.Exec(`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", bucket, err)
			return retErr
		}
	}
	return tx.Commit()
}

// RunInTransaction applies fn through the in-memory store and snapshots the
// committed state to sqlite on success.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if pErr := s.persist(); pErr != nil {
		return res, pErr
	}
	return res, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
