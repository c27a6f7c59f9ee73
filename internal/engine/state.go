package engine

import (
	"math"
	"slices"
	"time"

	"go-onboard/internal/domain"
)

// Progress is derived from the effective sequence and completed steps.
type Progress struct {
	CompletedCount int `json:"completed_count"`
	TotalCount     int `json:"total_count"`
	Percentage     int `json:"percentage"`
}

// State is an immutable view of a session pushed to subscribers.
type State struct {
	OwnerID        string          `json:"owner_id"`
	CurrentStep    domain.StepID   `json:"current_step"`
	CompletedSteps []domain.StepID `json:"completed_steps"`
	LastCompleted  domain.StepID   `json:"last_completed,omitempty"`
	Steps          []domain.StepID `json:"steps"`
	Frozen         bool            `json:"frozen"`
	Progress       Progress        `json:"progress"`
	Version        int             `json:"version"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// snapshot is what a session publishes atomically after each accepted
// transition. It is never mutated once stored.
type snapshot struct {
	record    *domain.ProgressRecord
	effective []domain.StepID
	role      domain.Role
}

func (s *snapshot) state() State {
	return State{
		OwnerID:        s.record.OwnerID,
		CurrentStep:    s.record.CurrentStep,
		CompletedSteps: slices.Clone([]domain.StepID(s.record.CompletedSteps)),
		LastCompleted:  s.record.LastCompleted,
		Steps:          slices.Clone(s.effective),
		Frozen:         s.record.IsFrozen(),
		Progress:       computeProgress(s.record, s.effective),
		Version:        s.record.Version,
		UpdatedAt:      s.record.LastUpdated,
	}
}

// computeProgress returns round(100 * (index(current)+1) / total) over the
// effective sequence.
func computeProgress(rec *domain.ProgressRecord, effective []domain.StepID) Progress {
	total := len(effective)
	if total == 0 {
		return Progress{}
	}

	completed := 0
	for _, id := range effective {
		if rec.IsCompleted(id) {
			completed++
		}
	}

	idx := slices.Index(effective, rec.CurrentStep)
	return Progress{
		CompletedCount: completed,
		TotalCount:     total,
		Percentage:     int(math.Round(100 * float64(idx+1) / float64(total))),
	}
}

// nextStep is the step after current in the effective sequence, falling
// back to canonical order, and finally the terminal step.
func nextStep(effective, canonical []domain.StepID, current domain.StepID) domain.StepID {
	for _, seq := range [][]domain.StepID{effective, canonical} {
		if i := slices.Index(seq, current); i >= 0 && i+1 < len(seq) {
			return seq[i+1]
		}
	}
	return domain.StepCompleted
}
