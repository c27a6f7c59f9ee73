package dto

import (
	"time"

	"go-onboard/internal/domain"
)

type ProgressResponse struct {
	CurrentStep    domain.StepID `json:"current_step"`
	CompletedCount int           `json:"completed_count"`
	TotalCount     int           `json:"total_count"`
	Percentage     int           `json:"percentage"`
}

type ArchivedProgressResponse struct {
	Reason         string          `json:"reason"`
	ArchivedAt     time.Time       `json:"archived_at"`
	CurrentStep    domain.StepID   `json:"current_step"`
	CompletedSteps []domain.StepID `json:"completed_steps"`
	Version        int             `json:"version"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string        `json:"code"`
	Step    domain.StepID `json:"step,omitempty"`
	Message string        `json:"message"`
}
