package domain

import "fmt"

// allowedTransitions lists the only observable status edges.
var allowedTransitions = map[RunStatus]map[RunStatus]struct{}{
	RunStatusPending: {
		RunStatusRunning:    {},
		RunStatusCancelling: {},
	},
	RunStatusRunning: {
		RunStatusPaused:     {},
		RunStatusCancelling: {},
		RunStatusCompleted:  {},
		RunStatusFailed:     {},
	},
	RunStatusPaused: {
		RunStatusRunning:    {},
		RunStatusCancelling: {},
	},
	RunStatusCancelling: {
		RunStatusCancelled: {},
	},
	RunStatusCompleted: {},
	RunStatusFailed:    {},
	RunStatusCancelled: {},
}

// ValidateTransition returns an error unless from -> to is an allowed edge.
// Same-status transitions are allowed so signal setters stay idempotent.
func ValidateTransition(from, to RunStatus) error {
	if from == to {
		return nil
	}
	allowed, ok := allowedTransitions[from]
	if !ok {
		return fmt.Errorf("unknown run status %q", from)
	}
	if _, ok := allowed[to]; !ok {
		return fmt.Errorf("invalid run status transition %s -> %s", from, to)
	}
	return nil
}
