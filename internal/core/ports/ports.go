package ports

import (
	"context"

	"go-onboard/internal/domain"
)

// ProgressStore is the durable, owner-keyed storage of progress records.
// Implementations report a missing record as domain.ErrNotFound and never
// delete data: Reset archives the previous record first.
type ProgressStore interface {
	// Load returns the record for owner or domain.ErrNotFound.
	Load(ctx context.Context, ownerID string) (*domain.ProgressRecord, error)

	// Save writes the whole record atomically. A record whose Version is
	// not greater than the stored one is rejected with
	// domain.ErrVersionConflict, so a late write can never replace newer
	// progress.
	Save(ctx context.Context, record *domain.ProgressRecord) error

	// Reset archives the current record (if any) with reason and replaces
	// it with fresh. fresh must carry a newer Version, as for Save.
	Reset(ctx context.Context, fresh *domain.ProgressRecord, reason string) error

	// History lists archived records for owner, newest first.
	History(ctx context.Context, ownerID string) ([]domain.ArchivedProgress, error)
}

// EventBus carries step-changed notifications across processes.
type EventBus interface {
	// Publish "owner moved from A to B"
	PublishStepChanged(ctx context.Context, event domain.StepChangedEvent) error

	// Subscribe to step changes (used by the coordinator)
	SubscribeStepChanged(ctx context.Context) (<-chan domain.StepChangedEvent, error)
}
