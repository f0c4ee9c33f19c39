package repository

import (
	"context"

	"quarters-data/internal/domain"
)

// QueueRepository owns the waiting-list ledger. The sequence column is kept
// dense at all times: every insert and removal renumbers so the visible
// queue is exactly [1..N] with no gaps or duplicates.
type QueueRepository interface {
	ListEntries(ctx context.Context, filters QueueFilters, page, size int) ([]*domain.QueueEntry, int, error)
	GetEntry(ctx context.Context, queueID string) (*domain.QueueEntry, error)
	GetEntryBySvcNo(ctx context.Context, svcNo string) (*domain.QueueEntry, error)

	// CreateEntry appends at the tail (sequence N+1). Duplicate service
	// numbers are rejected with a ValidationError.
	CreateEntry(ctx context.Context, entry *domain.QueueEntry) (string, error)

	// RemoveEntry deletes the entry and closes the sequence gap.
	RemoveEntry(ctx context.Context, queueID string) error

	CountEntries(ctx context.Context) (int, error)

	// Sequences returns every sequence value in ascending order, visible or
	// not. Used by the density checker.
	Sequences(ctx context.Context) ([]int, error)

	// CurrentUnitNames returns the distinct posting-unit values across the
	// queue, for normalizing free-text current_unit input.
	CurrentUnitNames(ctx context.Context) ([]string, error)
}

// QueueFilters narrows ListEntries. Entries flagged with an allocation
// request are hidden unless IncludeAllocated is set.
type QueueFilters struct {
	Category         string
	Search           string // matches svc_no, full_name
	IncludeAllocated bool
}
