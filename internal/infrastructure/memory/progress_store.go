// Package memory provides an in-process ProgressStore. It is safe for
// concurrent use and intended for tests and single-node development.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"go-onboard/internal/core/ports"
	"go-onboard/internal/domain"
)

var _ ports.ProgressStore = (*ProgressStore)(nil)

// ProgressStore keeps records and their archives in maps guarded by a mutex.
// Records are copied in and out so no caller can mutate stored state.
type ProgressStore struct {
	mu       sync.RWMutex
	records  map[string]*domain.ProgressRecord
	archives map[string][]domain.ArchivedProgress
	now      func() time.Time
}

// NewProgressStore returns an empty store.
func NewProgressStore() *ProgressStore {
	return &ProgressStore{
		records:  make(map[string]*domain.ProgressRecord),
		archives: make(map[string][]domain.ArchivedProgress),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Load returns a copy of the owner's record.
func (s *ProgressStore) Load(ctx context.Context, ownerID string) (*domain.ProgressRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[ownerID]
	if !ok {
		return nil, domain.NewError(domain.CodeNotFound, "", "no progress for owner "+ownerID)
	}
	return rec.Clone(), nil
}

// Save replaces the owner's record if record is newer.
func (s *ProgressStore) Save(ctx context.Context, record *domain.ProgressRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkVersion(record); err != nil {
		return err
	}
	s.records[record.OwnerID] = record.Clone()
	return nil
}

func (s *ProgressStore) checkVersion(record *domain.ProgressRecord) error {
	if prev, ok := s.records[record.OwnerID]; ok && prev.Version >= record.Version {
		return domain.VersionConflict(record.OwnerID, prev.Version, record.Version)
	}
	return nil
}

// Reset archives the current record and stores fresh in its place.
func (s *ProgressStore) Reset(ctx context.Context, fresh *domain.ProgressRecord, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkVersion(fresh); err != nil {
		return err
	}
	if prev, ok := s.records[fresh.OwnerID]; ok {
		s.archives[fresh.OwnerID] = append(s.archives[fresh.OwnerID], domain.ArchivedProgress{
			Record:     *prev.Clone(),
			Reason:     reason,
			ArchivedAt: s.now(),
		})
	}
	s.records[fresh.OwnerID] = fresh.Clone()
	return nil
}

// History returns archived records newest first.
func (s *ProgressStore) History(ctx context.Context, ownerID string) ([]domain.ArchivedProgress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := slices.Clone(s.archives[ownerID])
	slices.Reverse(out)
	for i := range out {
		out[i].Record = *out[i].Record.Clone()
	}
	return out, nil
}
