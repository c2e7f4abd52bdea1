// Package exports materializes compliance artifacts from the ledger, a
// batch's full audit trail or the global event log, into an archive store.
// Jobs run asynchronously so auditor requests never hold the ledger mutex
// longer than a read.
package exports

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	archivecore "batchledger/internal/archive/core"
	"batchledger/pkg/domain"
)

// Kind selects what an export materializes.
type Kind string

const (
	// KindBatchHistory exports one batch's append-only history.
	KindBatchHistory Kind = "batch_history"
	// KindEventLog exports the global committed event log.
	KindEventLog Kind = "event_log"
)

// Format selects the artifact encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Status describes the lifecycle stage of an export request.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Ledger is the read surface the worker needs. *core.Service satisfies it.
type Ledger interface {
	GetBatch(id string) (domain.Batch, error)
	Events() []domain.Event
}

// Artifact captures one stored export artifact.
type Artifact struct {
	Key         string    `json:"key"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record tracks an export request and its resulting artifacts.
type Record struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"kind"`
	BatchID     string     `json:"batch_id,omitempty"`
	Formats     []Format   `json:"formats"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Artifacts   []Artifact `json:"artifacts,omitempty"`
	RequestedBy string     `json:"requested_by"`
	Reason      string     `json:"reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Input represents an enqueue request for the worker.
type Input struct {
	Kind        Kind
	BatchID     string
	Formats     []Format
	RequestedBy string
	Reason      string
}

// AuditLogger records export audit entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures audit trail metadata for exports.
type AuditEntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	Actor      string    `json:"actor"`
	Kind       Kind      `json:"kind"`
	BatchID    string    `json:"batch_id,omitempty"`
	Status     Status    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Note       string    `json:"note,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Worker executes ledger exports asynchronously.
type Worker struct {
	ledger Ledger
	store  archivecore.Store
	audit  AuditLogger

	queue chan task
	mu    sync.RWMutex
	jobs  map[string]*Record

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	id    string
	input Input
}

// NewWorker constructs an export worker. The audit logger may be nil.
func NewWorker(ledger Ledger, store archivecore.Store, audit AuditLogger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		ledger: ledger,
		store:  store,
		audit:  audit,
		queue:  make(chan task, 32),
		jobs:   make(map[string]*Record),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case t := <-w.queue:
			w.process(t)
		}
	}
}

// Enqueue schedules an export job and returns the queued record.
func (w *Worker) Enqueue(ctx context.Context, input Input) (Record, error) {
	if w.ledger == nil {
		return Record{}, fmt.Errorf("export ledger not configured")
	}
	switch input.Kind {
	case KindBatchHistory:
		if strings.TrimSpace(input.BatchID) == "" {
			return Record{}, fmt.Errorf("batch id required for %s export", KindBatchHistory)
		}
	case KindEventLog:
	default:
		return Record{}, fmt.Errorf("unknown export kind %s", input.Kind)
	}

	formats := input.Formats
	if len(formats) == 0 {
		formats = []Format{FormatJSON, FormatCSV}
	}
	uniq := make([]Format, 0, len(formats))
	seen := make(map[Format]struct{}, len(formats))
	for _, format := range formats {
		if _, dup := seen[format]; dup {
			continue
		}
		if format != FormatJSON && format != FormatCSV {
			return Record{}, fmt.Errorf("unsupported export format %s", format)
		}
		uniq = append(uniq, format)
		seen[format] = struct{}{}
	}

	id := newID()
	now := time.Now().UTC()
	record := Record{
		ID:          id,
		Kind:        input.Kind,
		BatchID:     input.BatchID,
		Formats:     uniq,
		Status:      StatusQueued,
		RequestedBy: input.RequestedBy,
		Reason:      input.Reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	queued := record.copy()
	w.mu.Unlock()

	w.record(ctx, id, StatusQueued, "")

	select {
	case w.queue <- task{id: id, input: input}:
	default:
		return Record{}, fmt.Errorf("export queue full")
	}
	return queued, nil
}

// Get returns a snapshot of the export record.
func (w *Worker) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return record.copy(), true
}

func (w *Worker) process(t task) {
	w.setStatus(t.id, StatusRunning, "")
	w.record(w.ctx, t.id, StatusRunning, "")

	payloads, err := w.materialize(t.input)
	if err != nil {
		w.fail(t.id, err.Error())
		return
	}

	artifacts := make([]Artifact, 0, len(payloads))
	for _, p := range payloads {
		artifact := p.artifact
		if w.store != nil {
			info, err := w.store.Put(w.ctx, artifact.Key, bytes.NewReader(p.payload), archivecore.PutOptions{
				ContentType: artifact.ContentType,
				Metadata:    map[string]string{"export_id": t.id, "kind": string(t.input.Kind)},
			})
			if err != nil {
				w.fail(t.id, fmt.Sprintf("store artifact: %v", err))
				return
			}
			artifact.SizeBytes = info.Size
			artifact.URL = info.URL
			artifact.CreatedAt = info.LastModified
		}
		artifacts = append(artifacts, artifact)
	}
	w.complete(t.id, artifacts)
}

type rendered struct {
	artifact Artifact
	payload  []byte
}

func (w *Worker) materialize(input Input) ([]rendered, error) {
	formats := input.Formats
	if len(formats) == 0 {
		formats = []Format{FormatJSON, FormatCSV}
	}
	switch input.Kind {
	case KindBatchHistory:
		batch, err := w.ledger.GetBatch(input.BatchID)
		if err != nil {
			return nil, err
		}
		return renderBatchHistory(batch, formats)
	case KindEventLog:
		return renderEventLog(w.ledger.Events(), formats)
	default:
		return nil, fmt.Errorf("unknown export kind %s", input.Kind)
	}
}

func renderBatchHistory(batch domain.Batch, formats []Format) ([]rendered, error) {
	out := make([]rendered, 0, len(formats))
	for _, format := range formats {
		switch format {
		case FormatJSON:
			payload, err := json.Marshal(struct {
				BatchID string   `json:"batch_id"`
				Label   string   `json:"label"`
				Status  string   `json:"status"`
				History []string `json:"history"`
			}{batch.ID, batch.Label, string(batch.Status), batch.History})
			if err != nil {
				return nil, fmt.Errorf("marshal history: %w", err)
			}
			out = append(out, newRendered(format, "application/json", fmt.Sprintf("history/%s/%s.json", batch.ID, newID()), payload))
		case FormatCSV:
			buf := &bytes.Buffer{}
			writer := csv.NewWriter(buf)
			if err := writer.Write([]string{"index", "entry"}); err != nil {
				return nil, err
			}
			for i, entry := range batch.History {
				if err := writer.Write([]string{strconv.Itoa(i), entry}); err != nil {
					return nil, err
				}
			}
			writer.Flush()
			if err := writer.Error(); err != nil {
				return nil, err
			}
			out = append(out, newRendered(format, "text/csv", fmt.Sprintf("history/%s/%s.csv", batch.ID, newID()), buf.Bytes()))
		default:
			return nil, fmt.Errorf("unsupported export format %s", format)
		}
	}
	return out, nil
}

func renderEventLog(events []domain.Event, formats []Format) ([]rendered, error) {
	out := make([]rendered, 0, len(formats))
	for _, format := range formats {
		switch format {
		case FormatJSON:
			payload, err := json.Marshal(events)
			if err != nil {
				return nil, fmt.Errorf("marshal events: %w", err)
			}
			out = append(out, newRendered(format, "application/json", fmt.Sprintf("events/%s.json", newID()), payload))
		case FormatCSV:
			buf := &bytes.Buffer{}
			writer := csv.NewWriter(buf)
			if err := writer.Write([]string{"seq", "type", "batch_id", "occurred_at", "status_label", "location", "from", "to"}); err != nil {
				return nil, err
			}
			for _, ev := range events {
				row := []string{
					strconv.FormatUint(ev.Seq, 10),
					string(ev.Type),
					ev.BatchID,
					ev.OccurredAt.UTC().Format(time.RFC3339),
					ev.StatusLabel,
					ev.Location,
					string(ev.From),
					string(ev.To),
				}
				if err := writer.Write(row); err != nil {
					return nil, err
				}
			}
			writer.Flush()
			if err := writer.Error(); err != nil {
				return nil, err
			}
			out = append(out, newRendered(format, "text/csv", fmt.Sprintf("events/%s.csv", newID()), buf.Bytes()))
		default:
			return nil, fmt.Errorf("unsupported export format %s", format)
		}
	}
	return out, nil
}

func newRendered(format Format, contentType, key string, payload []byte) rendered {
	return rendered{
		artifact: Artifact{
			Key:         key,
			Format:      format,
			ContentType: contentType,
			SizeBytes:   int64(len(payload)),
			CreatedAt:   time.Now().UTC(),
		},
		payload: payload,
	}
}

func (w *Worker) setStatus(id string, status Status, message string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = now
	}
	w.mu.Unlock()
}

func (w *Worker) complete(id string, artifacts []Artifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.record(w.ctx, id, StatusSucceeded, "")
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.record(w.ctx, id, StatusFailed, reason)
}

func (w *Worker) record(ctx context.Context, id string, status Status, note string) {
	if w.audit == nil {
		return
	}
	w.mu.RLock()
	rec, ok := w.jobs[id]
	var entry AuditEntry
	if ok {
		entry = AuditEntry{
			Actor:   rec.RequestedBy,
			Kind:    rec.Kind,
			BatchID: rec.BatchID,
			Reason:  rec.Reason,
		}
	}
	w.mu.RUnlock()
	entry.ID = newID()
	entry.Action = "ledger_export"
	entry.Status = status
	entry.Note = note
	entry.OccurredAt = time.Now().UTC()
	w.audit.Record(ctx, entry)
}

func (r Record) copy() Record {
	dup := r
	dup.Formats = append([]Format(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = append([]Artifact(nil), r.Artifacts...)
	}
	return dup
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%x", b[:])
}

// MemoryAuditLog captures audit entries in-memory for assertions.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// Record stores an audit entry.
func (l *MemoryAuditLog) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a defensive copy of recorded audit entries.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
