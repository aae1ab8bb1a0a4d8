package taskset

// TaskState is the lifecycle state of a task.
type TaskState string

const (
	StateReady   TaskState = "ready"
	StateRunning TaskState = "running"
	StateBlocked TaskState = "blocked"
	StateDone    TaskState = "done"
	StateFailed  TaskState = "failed"
)

// States returns every valid task state in declaration order.
func States() []TaskState {
	return []TaskState{StateReady, StateRunning, StateBlocked, StateDone, StateFailed}
}

// Valid reports whether s is a recognized state.
func (s TaskState) Valid() bool {
	switch s {
	case StateReady, StateRunning, StateBlocked, StateDone, StateFailed:
		return true
	}
	return false
}

// Terminal reports whether s ends a task's lifecycle (done or failed).
// Terminal tasks can still be reopened through the transition table.
func (s TaskState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// transitions is the authoritative state machine. Self-transitions are
// heartbeats: legal, persisted, and they still emit events.
var transitions = map[TaskState]map[TaskState]bool{
	StateReady: {
		StateReady:   true,
		StateRunning: true,
		StateBlocked: true,
		StateDone:    true,
	},
	StateRunning: {
		StateReady:   true,
		StateRunning: true,
		StateDone:    true,
		StateFailed:  true,
	},
	StateBlocked: {
		StateReady:   true,
		StateRunning: true,
		StateBlocked: true,
	},
	StateDone: {
		StateReady: true,
		StateDone:  true,
	},
	StateFailed: {
		StateReady:   true,
		StateRunning: true,
		StateFailed:  true,
	},
}

// CanTransition reports whether from -> to is a legal state change.
func CanTransition(from, to TaskState) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}
