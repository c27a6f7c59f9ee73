package domain

import (
	"slices"
	"time"

	"gorm.io/datatypes"
)

// ProgressRecord is the durable onboarding state of one owner.
type ProgressRecord struct {
	OwnerID     string `gorm:"type:varchar(128);primary_key;" json:"owner_id"`
	CurrentStep StepID `gorm:"type:varchar(50);not null" json:"current_step"`

	// CompletedSteps holds steps in completion order; membership is what
	// matters to the guard, LastCompleted is kept for the UI.
	CompletedSteps datatypes.JSONSlice[StepID] `gorm:"type:jsonb" json:"completed_steps"`
	LastCompleted  StepID                      `gorm:"type:varchar(50)" json:"last_completed,omitempty"`
	StepPayloads   map[StepID]datatypes.JSON   `gorm:"serializer:json;type:jsonb" json:"step_payloads"`

	// Version increases on every persisted transition.
	Version int `gorm:"default:1" json:"version"`

	LastUpdated time.Time `json:"last_updated"`
}

// NewProgressRecord returns the initial record for owner positioned at first.
func NewProgressRecord(ownerID string, first StepID, now time.Time) *ProgressRecord {
	return &ProgressRecord{
		OwnerID:        ownerID,
		CurrentStep:    first,
		CompletedSteps: datatypes.JSONSlice[StepID]{},
		StepPayloads:   map[StepID]datatypes.JSON{},
		Version:        1,
		LastUpdated:    now,
	}
}

// IsCompleted reports whether step has been accepted as completed.
func (p *ProgressRecord) IsCompleted(step StepID) bool {
	return slices.Contains(p.CompletedSteps, step)
}

// IsFrozen reports whether the record reached the terminal step.
func (p *ProgressRecord) IsFrozen() bool { return p.CurrentStep.IsTerminal() }

// Payload returns the stored payload for step, if any.
func (p *ProgressRecord) Payload(step StepID) (datatypes.JSON, bool) {
	v, ok := p.StepPayloads[step]
	return v, ok
}

// Clone returns a deep copy so callers can mutate without touching shared
// state.
func (p *ProgressRecord) Clone() *ProgressRecord {
	if p == nil {
		return nil
	}
	cp := *p
	cp.CompletedSteps = slices.Clone(p.CompletedSteps)
	if cp.CompletedSteps == nil {
		cp.CompletedSteps = datatypes.JSONSlice[StepID]{}
	}
	cp.StepPayloads = make(map[StepID]datatypes.JSON, len(p.StepPayloads))
	for k, v := range p.StepPayloads {
		cp.StepPayloads[k] = slices.Clone(v)
	}
	return &cp
}

// ArchivedProgress is a record retired by reset.
type ArchivedProgress struct {
	Record     ProgressRecord
	Reason     string
	ArchivedAt time.Time
}

// Archive reasons.
const (
	ArchiveReasonReset     = "reset"
	ArchiveReasonCompleted = "completed"
)

// TableName pins the gorm table for progress records.
func (ProgressRecord) TableName() string { return "onboarding_progress" }
