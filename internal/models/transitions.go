package models

// validStatusTransitions defines which run status transitions are
// allowed. Map key is the current status, value is the set of legal
// target statuses. Terminal statuses have no outgoing transitions.
var validStatusTransitions = map[RunStatus]map[RunStatus]bool{
	RunStatusQueued: {
		RunStatusRunning:   true,
		RunStatusCancelled: true,
	},
	RunStatusRunning: {
		RunStatusCompleted: true,
		RunStatusFailed:    true,
		RunStatusCancelled: true,
	},
	RunStatusCompleted: {},
	RunStatusFailed:    {},
	RunStatusCancelled: {},
}

// CanTransition reports whether a run may move from one status to
// another.
func CanTransition(from, to RunStatus) bool {
	targets, ok := validStatusTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}
