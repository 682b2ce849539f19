package vitalog

import "github.com/m-mizutani/goerr/v2"

var (
	// Plan acceptance failures. A plan failing any of these is rejected as a
	// whole; the executor never sees a partially valid plan.
	ErrUnknownActionKind  = goerr.New("unknown action kind")
	ErrMissingDirective   = goerr.New("directive is required for this action kind")
	ErrPriorityOutOfRange = goerr.New("action priority out of range")
	ErrDuplicatePriority  = goerr.New("duplicate action priority in plan")

	// ErrInvalidPlanOutput indicates the structure-conversion model call
	// returned output that does not satisfy the action-list schema.
	ErrInvalidPlanOutput = goerr.New("model output is not a valid action list")

	// ErrNoHandler indicates an action kind reached dispatch with no handler
	// wired for it. With plan validation in place this is a programming error.
	ErrNoHandler = goerr.New("no handler for action kind")
)
