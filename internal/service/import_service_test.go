package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quarters-data/internal/domain"
	"quarters-data/internal/repository"
)

func importRow(svcNo, name, rank, quarter, room string) domain.ImportRow {
	return domain.ImportRow{
		SvcNo:             svcNo,
		FullName:          name,
		Rank:              rank,
		MaritalStatus:     "Married",
		QuarterName:       quarter,
		Location:          "Mogadishu Cantonment",
		BlockName:         "2",
		FlatHouseRoomName: room,
		AccommodationType: "Three Bedroom Flat",
		OccupancyType:     "Family",
		DateAllocated:     "2023-06-15",
	}
}

func TestImportRows_OccupiesAndHidesEntries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	row := importRow("N/10001", "Tunde Bakare", "Maj", "Harmony Estate", "Flat 3")
	row.Dependent1Name = "Ada Bakare"
	row.Dependent1Gender = "Female"
	row.Dependent1Age = 34
	row.Dependent2Name = "Ngozi Bakare"
	row.Dependent2Gender = "Female"
	row.Dependent2Age = 6

	result, err := env.imports.ImportRows(ctx, testActor(), []domain.ImportRow{row})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 0, result.Skipped)
	assert.Empty(t, result.Errors)

	// No unit with that address existed, so one was synthesized and occupied.
	units, total, err := env.store.ListUnits(ctx, repository.UnitFilters{}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	unit := units[0]
	assert.Equal(t, "Harmony Estate", unit.QuarterName)
	assert.Equal(t, domain.UnitOccupied, unit.Status)
	assert.Equal(t, "N/10001", unit.OccupantSvcNo)
	assert.Equal(t, domain.CategoryOfficer, unit.Category) // inferred from rank

	// The queue entry exists but is hidden from the default listing.
	list, err := env.queue.ListQueue(ctx, ListQueueRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, list.Total)

	list, err = env.queue.ListQueue(ctx, ListQueueRequest{IncludeAllocated: true})
	require.NoError(t, err)
	require.Equal(t, 1, list.Total)
	assert.True(t, list.Items[0].HasAllocationRequest)
	assert.Equal(t, "N/10001", list.Items[0].SvcNo)
	assert.Len(t, list.Items[0].Dependents, 2)

	// A pre-approved request with a letter id was recorded.
	reqs, total, err := env.store.ListRequests(ctx, domain.RequestApproved, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, unit.UnitID, reqs[0].UnitID)
	assert.Contains(t, reqs[0].LetterID, "/ACCN")
}

func TestImportRows_SkipsDuplicatesAndOccupied(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rows := []domain.ImportRow{
		importRow("N/10001", "Tunde Bakare", "Maj", "Harmony Estate", "Flat 3"),
		importRow("N/10001", "Tunde Bakare", "Maj", "Harmony Estate", "Flat 4"), // duplicate svc no
		importRow("N/10002", "Bola Akin", "Sgt", "Harmony Estate", "Flat 3"),    // unit already taken
		importRow("N/10003", "Emeka Obi", "Capt", "Harmony Estate", "Flat 9"),
	}

	result, err := env.imports.ImportRows(ctx, testActor(), rows)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 2, result.Skipped)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "row 2")
	assert.Contains(t, result.Errors[0], "N/10001")
	assert.Contains(t, result.Errors[1], "row 3")
}

func TestImportRows_ReusesExistingVacantUnit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	unitID := env.addUnit(t, "Harmony Estate", "Flat 3", domain.CategoryOfficer)
	// addUnit registers under block "1"; match the address in the row.
	row := importRow("N/10001", "Tunde Bakare", "Maj", "Harmony Estate", "Flat 3")
	row.BlockName = "1"

	result, err := env.imports.ImportRows(ctx, testActor(), []domain.ImportRow{row})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)

	_, total, err := env.store.ListUnits(ctx, repository.UnitFilters{}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total) // no second unit synthesized

	detail, err := env.units.GetUnit(ctx, unitID)
	require.NoError(t, err)
	assert.Equal(t, domain.UnitOccupied, detail.Unit.Status)
	assert.Equal(t, "N/10001", detail.Unit.OccupantSvcNo)
}

func TestImportRows_NormalizesCurrentUnitCasing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	row1 := importRow("N/10001", "Tunde Bakare", "Maj", "Harmony Estate", "Flat 3")
	row1.CurrentUnit = "Army HQ Garrison"
	row2 := importRow("N/10002", "Bola Akin", "Sgt", "Harmony Estate", "Room 1")
	row2.CurrentUnit = "ARMY HQ GARRISON"

	_, err := env.imports.ImportRows(ctx, testActor(), []domain.ImportRow{row1, row2})
	require.NoError(t, err)

	names, err := env.queue.CurrentUnitNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Army HQ Garrison"}, names)
}

func TestImportRows_ProgressReported(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rows := []domain.ImportRow{
		importRow("N/10001", "Tunde Bakare", "Maj", "Harmony Estate", "Flat 3"),
		importRow("N/10002", "Bola Akin", "Sgt", "Harmony Estate", "Room 1"),
	}
	_, err := env.imports.ImportRows(ctx, testActor(), rows)
	require.NoError(t, err)

	p, err := env.imports.Progress(ctx, testActor())
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "done", p.State)
	assert.Equal(t, 2, p.Done)
	assert.Equal(t, 2, p.Total)
}

func TestImportRows_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.imports.ImportRows(ctx, testActor(), nil)
	assert.True(t, domain.IsValidation(err))

	rows := make([]domain.ImportRow, 101) // MaxRows is 100 in the test env
	_, err = env.imports.ImportRows(ctx, testActor(), rows)
	assert.True(t, domain.IsValidation(err))
}

func TestInferCategory(t *testing.T) {
	assert.Equal(t, domain.CategoryOfficer, domain.InferCategory("officer", ""))
	assert.Equal(t, domain.CategoryNCO, domain.InferCategory("NCO", "Maj"))
	assert.Equal(t, domain.CategoryOfficer, domain.InferCategory("", "Wg Cdr"))
	assert.Equal(t, domain.CategoryOfficer, domain.InferCategory("", "Lt Col"))
	assert.Equal(t, domain.CategoryNCO, domain.InferCategory("", "Cpl"))
}
