package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quarters-data/internal/domain"
	"quarters-data/internal/repository"
)

func TestAuditTrailForWorkflow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	queueID := env.addEntry(t, "N/12345", "John Okoro", domain.CategoryOfficer)
	unitID := env.addUnit(t, "Eagle Quarters", "Flat 5", domain.CategoryOfficer)
	created, err := env.alloc.CreateRequest(ctx, testActor(), CreateRequestRequest{QueueID: queueID, UnitID: unitID})
	require.NoError(t, err)
	_, err = env.alloc.Approve(ctx, testActor(), created.RequestID)
	require.NoError(t, err)

	entries, total, err := env.store.ListAudit(ctx, repository.AuditFilters{}, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 4, total) // queue.create, unit.create, allocation.create, allocation.approve

	actions := map[string]bool{}
	for _, e := range entries {
		actions[e.Action] = true
		assert.Equal(t, "admin-1", e.UserID)
	}
	assert.True(t, actions[domain.AuditQueueCreate])
	assert.True(t, actions[domain.AuditUnitCreate])
	assert.True(t, actions[domain.AuditAllocationCreate])
	assert.True(t, actions[domain.AuditAllocationApprove])

	// Filtering by action.
	entries, total, err = env.store.ListAudit(ctx, repository.AuditFilters{Action: domain.AuditAllocationApprove}, 1, 50)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "allocation_request", entries[0].EntityType)
	assert.Equal(t, created.RequestID, entries[0].EntityID)
}

func TestAuditRecord_MarshalsOldAndNewData(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	audit := NewAuditRecorder(env.store, zap.NewNop())
	audit.Record(ctx, testActor(), domain.AuditUnitUpdate, "living_unit", "u-1",
		map[string]string{"status": "Vacant"},
		map[string]string{"status": "Occupied"},
	)

	entries, total, err := env.store.ListAudit(ctx, repository.AuditFilters{Action: domain.AuditUnitUpdate}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Contains(t, string(entries[0].OldData), "Vacant")
	assert.Contains(t, string(entries[0].NewData), "Occupied")
}
