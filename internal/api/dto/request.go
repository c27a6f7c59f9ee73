package dto

import (
	"encoding/json"

	"go-onboard/internal/domain"
)

type InitRequest struct {
	Role domain.Role `json:"role" binding:"required,oneof=super_admin admin member"`
}

type CompleteStepRequest struct {
	Payload json.RawMessage `json:"payload"`
}

type GoToStepRequest struct {
	Step domain.StepID `json:"step" binding:"required"`
}
