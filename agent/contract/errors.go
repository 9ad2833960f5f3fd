package contract

import "errors"

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrPromptMissing   = errors.New("required prompt is missing")
	ErrValidation      = errors.New("validation failed")
	ErrAccessDenied    = errors.New("access denied")
	ErrAgentUnknown    = errors.New("unknown agent")
	ErrTurnNotFound    = errors.New("turn not found")
)
