package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quarters-data/internal/config"
	"quarters-data/internal/domain"
	"quarters-data/internal/metrics"
	"quarters-data/internal/repository"
	"quarters-data/internal/store"
)

type testEnv struct {
	store   *repository.MemoryStore
	kv      *store.MemoryKV
	queue   *QueueService
	units   *UnitService
	alloc   *AllocationService
	imports *ImportService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	mem := repository.NewMemoryStore()
	kv := store.NewMemoryKV()
	m := metrics.New(prometheus.NewRegistry())
	audit := NewAuditRecorder(mem, logger)
	letters := NewLetterClient(config.LetterConfig{}, logger)

	return &testEnv{
		store:   mem,
		kv:      kv,
		queue:   NewQueueService(mem, audit, m, logger),
		units:   NewUnitService(mem, mem, audit, m, logger),
		alloc:   NewAllocationService(mem, mem, mem, letters, audit, m, logger),
		imports: NewImportService(mem, kv, audit, m, config.ImportConfig{MaxRows: 100, TimeoutSec: 60}, logger),
	}
}

func testActor() domain.Actor {
	return domain.Actor{UserID: "admin-1", IPAddress: "10.0.0.1", UserAgent: "test"}
}

func (e *testEnv) addEntry(t *testing.T, svcNo, name, category string) string {
	t.Helper()
	resp, err := e.queue.AddEntry(context.Background(), testActor(), AddEntryRequest{
		SvcNo:    svcNo,
		FullName: name,
		Category: category,
		Rank:     "Maj",
	})
	require.NoError(t, err)
	return resp.QueueID
}

func (e *testEnv) addUnit(t *testing.T, quarter, room, category string) string {
	t.Helper()
	resp, err := e.units.CreateUnit(context.Background(), testActor(), SaveUnitRequest{
		QuarterName:       quarter,
		Location:          "Mogadishu Cantonment",
		Category:          category,
		AccommodationType: "Two Bedroom Flat",
		NoOfRooms:         2,
		BlockName:         "1",
		FlatHouseRoomName: room,
	})
	require.NoError(t, err)
	return resp.UnitID
}

func TestCreateRequest_FreezesAndRemovesQueueEntry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	queueID := env.addEntry(t, "N/12345", "John Okoro", domain.CategoryOfficer)
	unitID := env.addUnit(t, "Eagle Quarters", "Flat 5", domain.CategoryOfficer)

	resp, err := env.alloc.CreateRequest(ctx, testActor(), CreateRequestRequest{QueueID: queueID, UnitID: unitID})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.RequestID)

	year := time.Now().Year()
	assert.Equal(t, fmt.Sprintf("DHQ/GAR/ABJ/%d/0001/ACCN", year), resp.LetterID)

	// The queue row is gone; the request carries the frozen snapshot.
	_, err = env.queue.GetEntry(ctx, queueID)
	assert.True(t, domain.IsNotFound(err))

	list, err := env.queue.ListQueue(ctx, ListQueueRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, list.Total)

	req, err := env.alloc.GetRequest(ctx, resp.RequestID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestPending, req.Status)
	assert.Contains(t, string(req.PersonnelData), "N/12345")

	// The unit stays Vacant until approval.
	detail, err := env.units.GetUnit(ctx, unitID)
	require.NoError(t, err)
	assert.Equal(t, domain.UnitVacant, detail.Unit.Status)
}

func TestCreateRequest_CategoryMismatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	queueID := env.addEntry(t, "N/22222", "Ibrahim Musa", domain.CategoryNCO)
	unitID := env.addUnit(t, "Falcon Quarters", "Flat 1", domain.CategoryOfficer)

	_, err := env.alloc.CreateRequest(ctx, testActor(), CreateRequestRequest{QueueID: queueID, UnitID: unitID})
	assert.True(t, domain.IsValidation(err))

	// Nothing happened: the entry is still queued.
	entry, err := env.queue.GetEntry(ctx, queueID)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Sequence)
}

func TestCreateRequest_AllowedAgainstOccupiedUnit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// House the first person.
	q1 := env.addEntry(t, "N/11111", "Adamu Bello", domain.CategoryOfficer)
	unitID := env.addUnit(t, "Eagle Quarters", "Flat 5", domain.CategoryOfficer)
	r1, err := env.alloc.CreateRequest(ctx, testActor(), CreateRequestRequest{QueueID: q1, UnitID: unitID})
	require.NoError(t, err)
	_, err = env.alloc.Approve(ctx, testActor(), r1.RequestID)
	require.NoError(t, err)

	// Vacancy is not enforced at creation time; the conflict surfaces at
	// approval.
	q2 := env.addEntry(t, "N/22222", "Chidi Eze", domain.CategoryOfficer)
	r2, err := env.alloc.CreateRequest(ctx, testActor(), CreateRequestRequest{QueueID: q2, UnitID: unitID})
	require.NoError(t, err)

	_, err = env.alloc.Approve(ctx, testActor(), r2.RequestID)
	assert.True(t, domain.IsConflict(err))
}

func TestApprove_OccupiesUnit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	queueID := env.addEntry(t, "N/12345", "John Okoro", domain.CategoryOfficer)
	unitID := env.addUnit(t, "Eagle Quarters", "Flat 5", domain.CategoryOfficer)
	created, err := env.alloc.CreateRequest(ctx, testActor(), CreateRequestRequest{QueueID: queueID, UnitID: unitID})
	require.NoError(t, err)

	resp, err := env.alloc.Approve(ctx, testActor(), created.RequestID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestApproved, resp.Request.Status)
	assert.Equal(t, "admin-1", resp.Request.ApprovedBy)
	assert.Empty(t, resp.DisplacedUnitID)

	assert.Equal(t, domain.UnitOccupied, resp.Unit.Status)
	assert.Equal(t, "N/12345", resp.Unit.OccupantSvcNo)
	assert.Equal(t, "John Okoro", resp.Unit.OccupantName)
	require.NotNil(t, resp.Unit.OccupancyStartDate)

	// One open history span.
	detail, err := env.units.GetUnit(ctx, unitID)
	require.NoError(t, err)
	require.Len(t, detail.History, 1)
	assert.Nil(t, detail.History[0].EndDate)
	assert.Equal(t, "N/12345", detail.History[0].SvcNo)
}

func TestApprove_NonPendingRequestConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	queueID := env.addEntry(t, "N/12345", "John Okoro", domain.CategoryOfficer)
	unitID := env.addUnit(t, "Eagle Quarters", "Flat 5", domain.CategoryOfficer)
	created, err := env.alloc.CreateRequest(ctx, testActor(), CreateRequestRequest{QueueID: queueID, UnitID: unitID})
	require.NoError(t, err)

	_, err = env.alloc.Approve(ctx, testActor(), created.RequestID)
	require.NoError(t, err)

	// Approving again must conflict, not double-occupy.
	_, err = env.alloc.Approve(ctx, testActor(), created.RequestID)
	assert.True(t, domain.IsConflict(err))
}

func TestApprove_DisplacesPreviousUnit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// House the person in unit A.
	queueID := env.addEntry(t, "N/12345", "John Okoro", domain.CategoryOfficer)
	unitA := env.addUnit(t, "Eagle Quarters", "Flat 5", domain.CategoryOfficer)
	created, err := env.alloc.CreateRequest(ctx, testActor(), CreateRequestRequest{QueueID: queueID, UnitID: unitA})
	require.NoError(t, err)
	_, err = env.alloc.Approve(ctx, testActor(), created.RequestID)
	require.NoError(t, err)

	// They re-apply while still housed and get approved into unit B.
	queueID2 := env.addEntry(t, "N/12345", "John Okoro", domain.CategoryOfficer)
	unitB := env.addUnit(t, "Falcon Quarters", "Flat 2", domain.CategoryOfficer)
	created2, err := env.alloc.CreateRequest(ctx, testActor(), CreateRequestRequest{QueueID: queueID2, UnitID: unitB})
	require.NoError(t, err)

	resp, err := env.alloc.Approve(ctx, testActor(), created2.RequestID)
	require.NoError(t, err)
	assert.Equal(t, unitA, resp.DisplacedUnitID)

	// A is vacated and archived; B is occupied.
	detailA, err := env.units.GetUnit(ctx, unitA)
	require.NoError(t, err)
	assert.Equal(t, domain.UnitVacant, detailA.Unit.Status)
	assert.Empty(t, detailA.Unit.OccupantSvcNo)

	detailB, err := env.units.GetUnit(ctx, unitB)
	require.NoError(t, err)
	assert.Equal(t, domain.UnitOccupied, detailB.Unit.Status)

	past, err := env.units.ListPastAllocations(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, past.Total)
	assert.Contains(t, past.Items[0].ReasonForLeaving, "re-allocated to")
}

func TestRefuse_ReinsertsAtFront(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.addEntry(t, "N/11111", "Adamu Bello", domain.CategoryOfficer)
	env.addEntry(t, "N/22222", "Chidi Eze", domain.CategoryOfficer)
	env.addEntry(t, "N/33333", "Sani Abubakar", domain.CategoryOfficer)
	unitID := env.addUnit(t, "Eagle Quarters", "Flat 5", domain.CategoryOfficer)

	created, err := env.alloc.CreateRequest(ctx, testActor(), CreateRequestRequest{QueueID: first, UnitID: unitID})
	require.NoError(t, err)

	// After creation the remaining entries shifted up.
	list, err := env.queue.ListQueue(ctx, ListQueueRequest{})
	require.NoError(t, err)
	require.Equal(t, 2, list.Total)
	assert.Equal(t, "N/22222", list.Items[0].SvcNo)
	assert.Equal(t, 1, list.Items[0].Sequence)

	refused, err := env.alloc.Refuse(ctx, testActor(), RefuseRequestCommand{
		RequestID: created.RequestID,
		Reason:    "Declined the unit",
	})
	require.NoError(t, err)

	// The refused person is back at the front; everyone else moved down.
	list, err = env.queue.ListQueue(ctx, ListQueueRequest{})
	require.NoError(t, err)
	require.Equal(t, 3, list.Total)
	assert.Equal(t, "N/11111", list.Items[0].SvcNo)
	assert.Equal(t, 1, list.Items[0].Sequence)
	assert.False(t, list.Items[0].HasAllocationRequest)
	assert.Equal(t, "N/22222", list.Items[1].SvcNo)
	assert.Equal(t, 2, list.Items[1].Sequence)

	entry, err := env.queue.GetEntry(ctx, refused.QueueID)
	require.NoError(t, err)
	assert.Equal(t, "N/11111", entry.SvcNo)

	// The request is gone.
	_, err = env.alloc.GetRequest(ctx, created.RequestID)
	assert.True(t, domain.IsNotFound(err))

	// The unit was never touched.
	detail, err := env.units.GetUnit(ctx, unitID)
	require.NoError(t, err)
	assert.Equal(t, domain.UnitVacant, detail.Unit.Status)
}

func TestRefuse_RequiresReason(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.alloc.Refuse(context.Background(), testActor(), RefuseRequestCommand{RequestID: "some-id"})
	assert.True(t, domain.IsValidation(err))
}

func TestTransfer_RevertsRequestAndVacatesSource(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	queueID := env.addEntry(t, "N/12345", "John Okoro", domain.CategoryOfficer)
	unitA := env.addUnit(t, "Eagle Quarters", "Flat 5", domain.CategoryOfficer)
	unitB := env.addUnit(t, "Falcon Quarters", "Flat 2", domain.CategoryOfficer)

	created, err := env.alloc.CreateRequest(ctx, testActor(), CreateRequestRequest{QueueID: queueID, UnitID: unitA})
	require.NoError(t, err)
	_, err = env.alloc.Approve(ctx, testActor(), created.RequestID)
	require.NoError(t, err)

	resp, err := env.units.Transfer(ctx, testActor(), TransferRequest{FromUnitID: unitA, ToUnitID: unitB})
	require.NoError(t, err)
	assert.Equal(t, created.RequestID, resp.RevertedRequestID)
	assert.Equal(t, domain.UnitVacant, resp.FromUnit.Status)
	assert.Equal(t, domain.UnitVacant, resp.ToUnit.Status)

	// The approved request reverted to pending against the destination.
	req, err := env.alloc.GetRequest(ctx, created.RequestID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestPending, req.Status)
	assert.Equal(t, unitB, req.UnitID)
	assert.Empty(t, req.ApprovedBy)
	assert.Nil(t, req.ApprovedAt)

	// The tenure in A is archived.
	past, err := env.units.ListPastAllocations(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, past.Total)
	assert.Equal(t, unitA, past.Items[0].UnitID)
	assert.Contains(t, past.Items[0].ReasonForLeaving, "Transferred to")

	// Approving the reverted request completes the move.
	approved, err := env.alloc.Approve(ctx, testActor(), created.RequestID)
	require.NoError(t, err)
	assert.Equal(t, domain.UnitOccupied, approved.Unit.Status)
	assert.Equal(t, unitB, approved.Unit.UnitID)
	assert.Equal(t, "N/12345", approved.Unit.OccupantSvcNo)
}

func TestTransfer_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	unitA := env.addUnit(t, "Eagle Quarters", "Flat 5", domain.CategoryOfficer)
	unitB := env.addUnit(t, "Falcon Quarters", "Flat 2", domain.CategoryOfficer)

	_, err := env.units.Transfer(ctx, testActor(), TransferRequest{FromUnitID: unitA, ToUnitID: unitA})
	assert.True(t, domain.IsValidation(err))

	// Source must be occupied.
	_, err = env.units.Transfer(ctx, testActor(), TransferRequest{FromUnitID: unitA, ToUnitID: unitB})
	assert.True(t, domain.IsConflict(err))
}

func TestDeallocate_ArchivesAndVacates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	queueID := env.addEntry(t, "N/12345", "John Okoro", domain.CategoryOfficer)
	unitID := env.addUnit(t, "Eagle Quarters", "Flat 5", domain.CategoryOfficer)
	created, err := env.alloc.CreateRequest(ctx, testActor(), CreateRequestRequest{QueueID: queueID, UnitID: unitID})
	require.NoError(t, err)
	_, err = env.alloc.Approve(ctx, testActor(), created.RequestID)
	require.NoError(t, err)

	unit, err := env.units.Deallocate(ctx, testActor(), DeallocateRequest{UnitID: unitID, Reason: "Posted out"})
	require.NoError(t, err)
	assert.Equal(t, domain.UnitVacant, unit.Status)
	assert.Empty(t, unit.OccupantSvcNo)

	detail, err := env.units.GetUnit(ctx, unitID)
	require.NoError(t, err)
	require.Len(t, detail.History, 1)
	require.NotNil(t, detail.History[0].EndDate)
	assert.Equal(t, "Posted out", detail.History[0].ReasonForLeaving)

	past, err := env.units.ListPastAllocations(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, past.Total)
	assert.Equal(t, "Posted out", past.Items[0].ReasonForLeaving)
	assert.Equal(t, created.LetterID, past.Items[0].LetterID)

	// Deallocating twice conflicts.
	_, err = env.units.Deallocate(ctx, testActor(), DeallocateRequest{UnitID: unitID, Reason: "Posted out"})
	assert.True(t, domain.IsConflict(err))
}

func TestDeallocate_RequiresReason(t *testing.T) {
	env := newTestEnv(t)
	unitID := env.addUnit(t, "Eagle Quarters", "Flat 5", domain.CategoryOfficer)
	_, err := env.units.Deallocate(context.Background(), testActor(), DeallocateRequest{UnitID: unitID})
	assert.True(t, domain.IsValidation(err))
}

func TestLetterIDs_IncrementPerYear(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	unitA := env.addUnit(t, "Eagle Quarters", "Flat 5", domain.CategoryOfficer)
	unitB := env.addUnit(t, "Falcon Quarters", "Flat 2", domain.CategoryOfficer)

	q1 := env.addEntry(t, "N/11111", "Adamu Bello", domain.CategoryOfficer)
	q2 := env.addEntry(t, "N/22222", "Chidi Eze", domain.CategoryOfficer)

	year := time.Now().Year()
	r1, err := env.alloc.CreateRequest(ctx, testActor(), CreateRequestRequest{QueueID: q1, UnitID: unitA})
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("DHQ/GAR/ABJ/%d/0001/ACCN", year), r1.LetterID)

	r2, err := env.alloc.CreateRequest(ctx, testActor(), CreateRequestRequest{QueueID: q2, UnitID: unitB})
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("DHQ/GAR/ABJ/%d/0002/ACCN", year), r2.LetterID)
}
