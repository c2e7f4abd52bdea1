// Command ledger-check opens the configured persistent store read-only and
// verifies ledger integrity invariants: index consistency, history presence,
// label mappings, and event sequence density. It exits non-zero with a
// violation report when the ledger is inconsistent.
package main

import (
	"fmt"
	"io"
	"os"

	"batchledger/internal/core"
	"batchledger/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	if err := run(os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		exitFunc(1)
	}
}

func run(w io.Writer) error {
	store, err := core.OpenPersistentStore(core.DefaultRulesEngine())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	viols := checkLedger(store)
	if len(viols) > 0 {
		for _, v := range viols {
			fmt.Fprintf(w, "violation: %s\n", v)
		}
		return fmt.Errorf("ledger check failed with %d violations", len(viols))
	}
	fmt.Fprintf(w, "ledger ok: %d batches, %d events\n", store.CountBatches(), len(store.Events()))
	return nil
}

// checkLedger verifies committed state against the ledger invariants and
// returns human-readable violation descriptions.
func checkLedger(store domain.PersistentStore) []string {
	var viols []string

	ids := store.BatchIDs()
	batches := store.ListBatches()
	if len(ids) != len(batches) {
		viols = append(viols, fmt.Sprintf("index lists %d ids but store holds %d batches", len(ids), len(batches)))
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			viols = append(viols, fmt.Sprintf("batch id %q indexed more than once", id))
			continue
		}
		seen[id] = struct{}{}
		if _, ok := store.GetBatch(id); !ok {
			viols = append(viols, fmt.Sprintf("indexed batch id %q does not resolve", id))
		}
	}
	for _, b := range batches {
		if _, ok := seen[b.ID]; !ok {
			viols = append(viols, fmt.Sprintf("batch %q is stored but not indexed", b.ID))
		}
	}

	// Per-owner index must contain exactly the owner's batches in global
	// creation order.
	owners := make(map[string][]string)
	byID := make(map[string]domain.Batch, len(batches))
	for _, b := range batches {
		byID[b.ID] = b
	}
	for _, id := range ids {
		if b, ok := byID[id]; ok {
			owners[b.OwnerRef] = append(owners[b.OwnerRef], id)
		}
	}
	for owner, want := range owners {
		got := store.BatchIDsByOwner(owner)
		if len(got) != len(want) {
			viols = append(viols, fmt.Sprintf("owner %q index holds %d ids, want %d", owner, len(got), len(want)))
			continue
		}
		for i := range want {
			if got[i] != want[i] {
				viols = append(viols, fmt.Sprintf("owner %q index entry %d is %q, want %q", owner, i, got[i], want[i]))
				break
			}
		}
	}

	for _, b := range batches {
		if len(b.History) == 0 {
			viols = append(viols, fmt.Sprintf("batch %q has an empty history", b.ID))
		}
		if !b.Status.Valid() {
			viols = append(viols, fmt.Sprintf("batch %q carries unknown status %q", b.ID, b.Status))
			continue
		}
		if _, err := b.Status.Label(); err != nil {
			viols = append(viols, fmt.Sprintf("batch %q status %q has no label: %v", b.ID, b.Status, err))
		}
	}

	events := store.Events()
	for i, ev := range events {
		if ev.Seq != uint64(i)+1 {
			viols = append(viols, fmt.Sprintf("event %d carries sequence %d, want %d", i, ev.Seq, i+1))
		}
		if ev.BatchID == "" {
			viols = append(viols, fmt.Sprintf("event %d has no batch id", ev.Seq))
			continue
		}
		if _, ok := byID[ev.BatchID]; !ok {
			viols = append(viols, fmt.Sprintf("event %d references unknown batch %q", ev.Seq, ev.BatchID))
		}
	}

	if roles := store.Roles(); !roles.IsZero() {
		if err := roles.Validate(); err != nil {
			viols = append(viols, fmt.Sprintf("role registry invalid: %v", err))
		}
	}
	return viols
}
