package core

import (
	"context"
	"testing"

	"batchledger/pkg/domain"
)

const (
	manufacturerID = domain.Identity("0x1000000000000000000000000000000000000001")
	distributorID  = domain.Identity("0x2000000000000000000000000000000000000002")
	retailerID     = domain.Identity("0x3000000000000000000000000000000000000003")
	strangerID     = domain.Identity("0x4000000000000000000000000000000000000004")
)

func testRegistry() RoleRegistry {
	return RoleRegistry{
		Manufacturer: manufacturerID,
		Distributor:  distributorID,
		Retailer:     retailerID,
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewInMemoryService(nil, testRegistry())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func createTestBatch(t *testing.T, svc *Service, id string) Batch {
	t.Helper()
	batch, _, err := svc.CreateBatch(context.Background(), manufacturerID, CreateBatchInput{
		ID:       id,
		Quantity: 100,
		OwnerRef: "u1",
		Label:    "L1",
		Location: "Plant A",
	})
	if err != nil {
		t.Fatalf("create batch %s: %v", id, err)
	}
	return batch
}

func TestNewServiceRejectsInvalidRegistry(t *testing.T) {
	cases := []struct {
		name     string
		registry RoleRegistry
	}{
		{"blank manufacturer", RoleRegistry{Distributor: distributorID, Retailer: retailerID}},
		{"blank distributor", RoleRegistry{Manufacturer: manufacturerID, Retailer: retailerID}},
		{"duplicate identity", RoleRegistry{Manufacturer: manufacturerID, Distributor: manufacturerID, Retailer: retailerID}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewInMemoryService(nil, tc.registry); !domain.IsKind(err, domain.KindInvalidArgument) {
				t.Fatalf("expected invalid_argument, got %v", err)
			}
		})
	}
}

func TestNewServiceAdoptsPersistedRoles(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	newDist := domain.Identity("0x5000000000000000000000000000000000000005")
	if _, err := svc.SetDistributor(ctx, manufacturerID, newDist); err != nil {
		t.Fatalf("set distributor: %v", err)
	}

	// Reconstructing over the same store keeps the reassignment.
	again, err := NewService(svc.Store(), testRegistry())
	if err != nil {
		t.Fatalf("reopen service: %v", err)
	}
	if got := again.Roles().Distributor; got != newDist {
		t.Fatalf("expected persisted distributor %s, got %s", newDist, got)
	}

	// A different manufacturer must be rejected.
	mismatched := testRegistry()
	mismatched.Manufacturer = strangerID
	if _, err := NewService(svc.Store(), mismatched); !domain.IsKind(err, domain.KindInvalidArgument) {
		t.Fatalf("expected invalid_argument for manufacturer mismatch, got %v", err)
	}
}

func TestCreateBatchThenGet(t *testing.T) {
	svc := newTestService(t)
	createTestBatch(t, svc, "B1")

	batch, err := svc.GetBatch("B1")
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if batch.Status != StatusCreated {
		t.Fatalf("expected status %s, got %s", StatusCreated, batch.Status)
	}
	if batch.Holder != manufacturerID {
		t.Fatalf("expected holder %s, got %s", manufacturerID, batch.Holder)
	}
	if batch.Location != "Plant A" {
		t.Fatalf("expected location Plant A, got %s", batch.Location)
	}
	if len(batch.History) != 1 {
		t.Fatalf("expected history length 1, got %d", len(batch.History))
	}
	if batch.History[0] != "created by manufacturer at Plant A" {
		t.Fatalf("unexpected history entry: %q", batch.History[0])
	}
	if !svc.Exists("B1") {
		t.Fatalf("expected B1 to exist")
	}
	if svc.Count() != 1 {
		t.Fatalf("expected count 1, got %d", svc.Count())
	}
	if ids := svc.BatchIDsByOwner("u1"); len(ids) != 1 || ids[0] != "B1" {
		t.Fatalf("unexpected owner index: %v", ids)
	}
}

func TestCreateBatchDuplicateLeavesStateUntouched(t *testing.T) {
	svc := newTestService(t)
	createTestBatch(t, svc, "B1")
	eventsBefore := len(svc.Events())

	_, _, err := svc.CreateBatch(context.Background(), manufacturerID, CreateBatchInput{
		ID:       "B1",
		Quantity: 5,
		OwnerRef: "u2",
		Label:    "other",
		Location: "elsewhere",
	})
	if !domain.IsKind(err, domain.KindAlreadyExists) {
		t.Fatalf("expected already_exists, got %v", err)
	}
	batch, err := svc.GetBatch("B1")
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if batch.Quantity != 100 || batch.OwnerRef != "u1" {
		t.Fatalf("duplicate create mutated the batch: %+v", batch)
	}
	if got := len(svc.Events()); got != eventsBefore {
		t.Fatalf("duplicate create emitted an event: %d -> %d", eventsBefore, got)
	}
	if svc.Count() != 1 {
		t.Fatalf("expected count 1, got %d", svc.Count())
	}
}

func TestCreateBatchValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.CreateBatch(ctx, distributorID, CreateBatchInput{ID: "B1", Quantity: 1, Label: "L"}); !domain.IsKind(err, domain.KindUnauthorized) {
		t.Fatalf("expected unauthorized for distributor, got %v", err)
	}
	if _, _, err := svc.CreateBatch(ctx, strangerID, CreateBatchInput{ID: "B1", Quantity: 1, Label: "L"}); !domain.IsKind(err, domain.KindUnauthorized) {
		t.Fatalf("expected unauthorized for stranger, got %v", err)
	}
	if _, _, err := svc.CreateBatch(ctx, manufacturerID, CreateBatchInput{Quantity: 1, Label: "L"}); !domain.IsKind(err, domain.KindInvalidArgument) {
		t.Fatalf("expected invalid_argument for blank id, got %v", err)
	}
	if _, _, err := svc.CreateBatch(ctx, manufacturerID, CreateBatchInput{ID: "B1", Quantity: 0, Label: "L"}); !domain.IsKind(err, domain.KindInvalidArgument) {
		t.Fatalf("expected invalid_argument for zero quantity, got %v", err)
	}
	if svc.Count() != 0 {
		t.Fatalf("failed creates mutated the store")
	}
}

func TestUpdateStatusLifecycleChain(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	createTestBatch(t, svc, "B1")

	batch, _, err := svc.UpdateStatus(ctx, manufacturerID, "B1", StatusInTransitToDistributor, "Depot")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if batch.Status != StatusInTransitToDistributor {
		t.Fatalf("expected dispatched status, got %s", batch.Status)
	}
	if batch.Holder != manufacturerID {
		t.Fatalf("dispatch must not move the holder, got %s", batch.Holder)
	}
	if batch.Location != "Depot" {
		t.Fatalf("expected location Depot, got %s", batch.Location)
	}

	batch, _, err = svc.UpdateStatus(ctx, distributorID, "B1", StatusAtDistributor, "Depot")
	if err != nil {
		t.Fatalf("receive at distributor: %v", err)
	}
	if batch.Status != StatusAtDistributor {
		t.Fatalf("expected at_distributor, got %s", batch.Status)
	}
	if batch.Holder != distributorID {
		t.Fatalf("receiving must move the holder to the distributor, got %s", batch.Holder)
	}

	if _, _, err = svc.UpdateStatus(ctx, distributorID, "B1", StatusInTransitToRetailer, "Truck 7"); err != nil {
		t.Fatalf("dispatch to retailer: %v", err)
	}
	batch, _, err = svc.UpdateStatus(ctx, retailerID, "B1", StatusAtRetailer, "Store 12")
	if err != nil {
		t.Fatalf("receive at retailer: %v", err)
	}
	if batch.Holder != retailerID {
		t.Fatalf("receiving must move the holder to the retailer, got %s", batch.Holder)
	}
	batch, _, err = svc.UpdateStatus(ctx, retailerID, "B1", StatusDeliveredToConsumer, "Store 12")
	if err != nil {
		t.Fatalf("deliver to consumer: %v", err)
	}
	if !batch.Status.Terminal() {
		t.Fatalf("expected terminal status, got %s", batch.Status)
	}
	// One creation entry plus five transitions.
	if len(batch.History) != 6 {
		t.Fatalf("expected history length 6, got %d", len(batch.History))
	}

	// Terminal batches accept no further transitions.
	if _, _, err = svc.UpdateStatus(ctx, retailerID, "B1", StatusCreated, "anywhere"); !domain.IsKind(err, domain.KindInvalidTransition) {
		t.Fatalf("expected invalid_transition after terminal, got %v", err)
	}
}

func TestUpdateStatusWrongCaller(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	createTestBatch(t, svc, "B1")

	for _, caller := range []domain.Identity{distributorID, retailerID, strangerID} {
		if _, _, err := svc.UpdateStatus(ctx, caller, "B1", StatusInTransitToDistributor, "Depot"); !domain.IsKind(err, domain.KindUnauthorized) {
			t.Fatalf("caller %s: expected unauthorized, got %v", caller, err)
		}
	}
	batch, err := svc.GetBatch("B1")
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if batch.Status != StatusCreated || len(batch.History) != 1 {
		t.Fatalf("rejected transitions mutated the batch: %+v", batch)
	}
}

func TestUpdateStatusUnreachableTarget(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	createTestBatch(t, svc, "B1")

	// Premature delivery: created -> delivered_to_consumer is not an edge,
	// regardless of who asks.
	if _, _, err := svc.UpdateStatus(ctx, retailerID, "B1", StatusDeliveredToConsumer, "Store 12"); !domain.IsKind(err, domain.KindInvalidTransition) {
		t.Fatalf("expected invalid_transition, got %v", err)
	}
	if _, _, err := svc.UpdateStatus(ctx, manufacturerID, "B1", StatusAtRetailer, "Store 12"); !domain.IsKind(err, domain.KindInvalidTransition) {
		t.Fatalf("expected invalid_transition, got %v", err)
	}

	history, err := svc.History("B1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("rejected transitions appended history: %v", history)
	}
	if got := len(svc.Events()); got != 1 {
		t.Fatalf("rejected transitions emitted events: %d", got)
	}
}

func TestUpdateStatusMissingBatch(t *testing.T) {
	svc := newTestService(t)
	if _, _, err := svc.UpdateStatus(context.Background(), manufacturerID, "nope", StatusInTransitToDistributor, "Depot"); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestHistoryGrowsByOnePerMutation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	createTestBatch(t, svc, "B1")

	steps := []struct {
		caller   domain.Identity
		target   BatchStatus
		location string
	}{
		{manufacturerID, StatusInTransitToDistributor, "Depot"},
		{distributorID, StatusAtDistributor, "Depot"},
		{distributorID, StatusInTransitToRetailer, "Truck"},
	}
	for i, step := range steps {
		if _, _, err := svc.UpdateStatus(ctx, step.caller, "B1", step.target, step.location); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		history, err := svc.History("B1")
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if len(history) != i+2 {
			t.Fatalf("after step %d expected history length %d, got %d", i, i+2, len(history))
		}
	}
}

func TestTransferOwnership(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	createTestBatch(t, svc, "B1")

	external := domain.Identity("0x9000000000000000000000000000000000000009")
	batch, _, err := svc.TransferOwnership(ctx, manufacturerID, "B1", external, "Warehouse Z")
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if batch.Holder != external {
		t.Fatalf("expected holder %s, got %s", external, batch.Holder)
	}
	if batch.Location != "Warehouse Z" {
		t.Fatalf("expected location Warehouse Z, got %s", batch.Location)
	}
	if batch.Status != StatusCreated {
		t.Fatalf("transfer must not change status, got %s", batch.Status)
	}
	if len(batch.History) != 2 {
		t.Fatalf("expected history length 2, got %d", len(batch.History))
	}
}

func TestTransferOwnershipPreconditions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	createTestBatch(t, svc, "B1")

	if _, _, err := svc.TransferOwnership(ctx, distributorID, "B1", retailerID, "X"); !domain.IsKind(err, domain.KindUnauthorized) {
		t.Fatalf("expected unauthorized for non-holder, got %v", err)
	}
	if _, _, err := svc.TransferOwnership(ctx, manufacturerID, "B1", "", "X"); !domain.IsKind(err, domain.KindInvalidArgument) {
		t.Fatalf("expected invalid_argument for blank holder, got %v", err)
	}
	if _, _, err := svc.TransferOwnership(ctx, manufacturerID, "B1", manufacturerID, "X"); !domain.IsKind(err, domain.KindInvalidArgument) {
		t.Fatalf("expected invalid_argument for same holder, got %v", err)
	}
	if _, _, err := svc.TransferOwnership(ctx, manufacturerID, "nope", retailerID, "X"); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestRoleReassignmentTakesEffect(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	createTestBatch(t, svc, "B1")
	if _, _, err := svc.UpdateStatus(ctx, manufacturerID, "B1", StatusInTransitToDistributor, "Depot"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	newDist := domain.Identity("0x5000000000000000000000000000000000000005")
	if _, err := svc.SetDistributor(ctx, manufacturerID, newDist); err != nil {
		t.Fatalf("set distributor: %v", err)
	}

	// The old distributor identity lost the role.
	if _, _, err := svc.UpdateStatus(ctx, distributorID, "B1", StatusAtDistributor, "Depot"); !domain.IsKind(err, domain.KindUnauthorized) {
		t.Fatalf("expected unauthorized for old distributor, got %v", err)
	}
	batch, _, err := svc.UpdateStatus(ctx, newDist, "B1", StatusAtDistributor, "Depot")
	if err != nil {
		t.Fatalf("new distributor receive: %v", err)
	}
	if batch.Holder != newDist {
		t.Fatalf("expected holder %s, got %s", newDist, batch.Holder)
	}
}

func TestSetRoleValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.SetDistributor(ctx, distributorID, strangerID); !domain.IsKind(err, domain.KindUnauthorized) {
		t.Fatalf("expected unauthorized for non-manufacturer, got %v", err)
	}
	if _, err := svc.SetRetailer(ctx, manufacturerID, ""); !domain.IsKind(err, domain.KindInvalidArgument) {
		t.Fatalf("expected invalid_argument for blank identity, got %v", err)
	}
	if _, err := svc.SetDistributor(ctx, manufacturerID, manufacturerID); !domain.IsKind(err, domain.KindInvalidArgument) {
		t.Fatalf("expected invalid_argument for manufacturer collision, got %v", err)
	}
}

func TestEventsFollowCommitOrder(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	createTestBatch(t, svc, "B1")
	createTestBatch(t, svc, "B2")
	if _, _, err := svc.UpdateStatus(ctx, manufacturerID, "B1", StatusInTransitToDistributor, "Depot"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if _, _, err := svc.TransferOwnership(ctx, manufacturerID, "B2", strangerID, "Yard"); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	events := svc.Events()
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	for i, ev := range events {
		if ev.Seq != uint64(i)+1 {
			t.Fatalf("event %d carries sequence %d", i, ev.Seq)
		}
	}
	if events[0].Type != domain.EventBatchCreated || events[0].BatchID != "B1" {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[2].Type != domain.EventBatchStatusUpdated {
		t.Fatalf("expected status event, got %s", events[2].Type)
	}
	if label, err := StatusInTransitToDistributor.Label(); err != nil || events[2].StatusLabel != label {
		t.Fatalf("status event label %q does not round-trip (%v)", events[2].StatusLabel, err)
	}
	if events[3].Type != domain.EventBatchTransferred || events[3].From != manufacturerID || events[3].To != strangerID {
		t.Fatalf("unexpected transfer event: %+v", events[3])
	}
}

func TestGetBatchNotFound(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.GetBatch("missing"); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
	if _, err := svc.History("missing"); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
	if svc.Exists("missing") {
		t.Fatalf("missing batch reported as existing")
	}
}

func TestBatchIDsCreationOrder(t *testing.T) {
	svc := newTestService(t)
	for _, id := range []string{"B3", "B1", "B2"} {
		createTestBatch(t, svc, id)
	}
	ids := svc.BatchIDs()
	want := []string{"B3", "B1", "B2"}
	if len(ids) != len(want) {
		t.Fatalf("expected %d ids, got %d", len(want), len(ids))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected creation order %v, got %v", want, ids)
		}
	}
}
