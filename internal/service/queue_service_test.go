package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quarters-data/internal/domain"
)

func TestAddEntry_AssignsDenseSequence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp, err := env.queue.AddEntry(ctx, testActor(), AddEntryRequest{
		SvcNo:    "N/11111",
		FullName: "Adamu Bello",
		Category: domain.CategoryOfficer,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Sequence)

	resp, err = env.queue.AddEntry(ctx, testActor(), AddEntryRequest{
		SvcNo:    "N/22222",
		FullName: "Chidi Eze",
		Category: domain.CategoryNCO,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Sequence)
}

func TestAddEntry_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.queue.AddEntry(ctx, testActor(), AddEntryRequest{FullName: "No Number", Category: domain.CategoryOfficer})
	assert.True(t, domain.IsValidation(err))

	_, err = env.queue.AddEntry(ctx, testActor(), AddEntryRequest{SvcNo: "N/1", Category: domain.CategoryOfficer})
	assert.True(t, domain.IsValidation(err))

	_, err = env.queue.AddEntry(ctx, testActor(), AddEntryRequest{SvcNo: "N/1", FullName: "Bad Category", Category: "Civilian"})
	assert.True(t, domain.IsValidation(err))

	_, err = env.queue.AddEntry(ctx, testActor(), AddEntryRequest{
		SvcNo: "N/1", FullName: "Bad Dependents", Category: domain.CategoryOfficer, AdultDependents: -1,
	})
	assert.True(t, domain.IsValidation(err))
}

func TestAddEntry_DuplicateSvcNoConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addEntry(t, "N/11111", "Adamu Bello", domain.CategoryOfficer)
	_, err := env.queue.AddEntry(ctx, testActor(), AddEntryRequest{
		SvcNo:    "N/11111",
		FullName: "Adamu Bello",
		Category: domain.CategoryOfficer,
	})
	assert.True(t, domain.IsConflict(err))
}

func TestRemoveEntry_ClosesGap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addEntry(t, "N/11111", "Adamu Bello", domain.CategoryOfficer)
	second := env.addEntry(t, "N/22222", "Chidi Eze", domain.CategoryOfficer)
	env.addEntry(t, "N/33333", "Sani Abubakar", domain.CategoryOfficer)

	require.NoError(t, env.queue.RemoveEntry(ctx, testActor(), second))

	list, err := env.queue.ListQueue(ctx, ListQueueRequest{})
	require.NoError(t, err)
	require.Equal(t, 2, list.Total)
	assert.Equal(t, "N/11111", list.Items[0].SvcNo)
	assert.Equal(t, 1, list.Items[0].Sequence)
	assert.Equal(t, "N/33333", list.Items[1].SvcNo)
	assert.Equal(t, 2, list.Items[1].Sequence)

	check, err := env.queue.CheckSequences(ctx)
	require.NoError(t, err)
	assert.True(t, check.Dense)
	assert.Empty(t, check.Gaps)
	assert.Empty(t, check.Duplicates)
}

func TestListQueue_Filters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addEntry(t, "N/11111", "Adamu Bello", domain.CategoryOfficer)
	env.addEntry(t, "N/22222", "Chidi Eze", domain.CategoryNCO)
	env.addEntry(t, "N/33333", "Sani Abubakar", domain.CategoryOfficer)

	list, err := env.queue.ListQueue(ctx, ListQueueRequest{Category: domain.CategoryOfficer})
	require.NoError(t, err)
	assert.Equal(t, 2, list.Total)

	list, err = env.queue.ListQueue(ctx, ListQueueRequest{Search: "chidi"})
	require.NoError(t, err)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "N/22222", list.Items[0].SvcNo)

	list, err = env.queue.ListQueue(ctx, ListQueueRequest{Search: "N/33333"})
	require.NoError(t, err)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "Sani Abubakar", list.Items[0].FullName)

	_, err = env.queue.ListQueue(ctx, ListQueueRequest{Category: "Civilian"})
	assert.True(t, domain.IsValidation(err))
}

func TestListQueue_Paging(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addEntry(t, "N/11111", "Adamu Bello", domain.CategoryOfficer)
	env.addEntry(t, "N/22222", "Chidi Eze", domain.CategoryOfficer)
	env.addEntry(t, "N/33333", "Sani Abubakar", domain.CategoryOfficer)

	list, err := env.queue.ListQueue(ctx, ListQueueRequest{Page: 2, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, list.Total)
	require.Len(t, list.Items, 1)
	assert.Equal(t, 3, list.Items[0].Sequence)
}

func TestCheckSequences_EmptyQueueIsDense(t *testing.T) {
	env := newTestEnv(t)

	check, err := env.queue.CheckSequences(context.Background())
	require.NoError(t, err)
	assert.True(t, check.Dense)
	assert.Equal(t, 0, check.Count)
}
