package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransitionOp names the engine operation behind a state change.
type TransitionOp string

const (
	OpInitialize TransitionOp = "initialize"
	OpComplete   TransitionOp = "complete"
	OpGoTo       TransitionOp = "goto"
	OpReset      TransitionOp = "reset"
)

// StepChangedEvent is published to the event bus after every persisted
// transition.
type StepChangedEvent struct {
	ID         uuid.UUID    `json:"id"`
	OwnerID    string       `json:"owner_id"`
	Op         TransitionOp `json:"op"`
	From       StepID       `json:"from"`
	To         StepID       `json:"to"`
	Version    int          `json:"version"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// NewStepChangedEvent stamps a new event with a fresh ID.
func NewStepChangedEvent(owner string, op TransitionOp, from, to StepID, version int, at time.Time) StepChangedEvent {
	return StepChangedEvent{
		ID:         uuid.New(),
		OwnerID:    owner,
		Op:         op,
		From:       from,
		To:         to,
		Version:    version,
		OccurredAt: at,
	}
}

// Finished reports whether the event moved the owner onto the terminal step.
func (e StepChangedEvent) Finished() bool { return e.To.IsTerminal() && e.From != e.To }
