package jobs

import "errors"

var (
	// ErrDuplicateJob means the tender already has a live job for the
	// requested automation.
	ErrDuplicateJob = errors.New("analysis already in progress for this automation")
	// ErrTerminal means the requested transition starts from a state
	// that permits none.
	ErrTerminal = errors.New("job already in a terminal state")
	// ErrAutomationInactive means the requested automation is disabled.
	ErrAutomationInactive = errors.New("automation is not active")
)
