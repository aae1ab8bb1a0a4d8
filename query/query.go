// Package query filters, orders and pages the tasks of a loaded taskset.
// Everything here is pure: input tasksets are never mutated and results are
// deep copies.
package query

import (
	"fmt"
	"sort"

	"necrocode/taskset"
)

// Recognized filter keys.
const (
	FilterState           = "state"
	FilterRequiredSkill   = "required_skill"
	FilterIsOptional      = "is_optional"
	FilterHasDependencies = "has_dependencies"
	FilterRunnerID        = "runner_id"
	FilterAssignedSlot    = "assigned_slot"
)

// Recognized sort keys. Priority sorts descending; the rest ascending.
const (
	SortByPriority  = "priority"
	SortByCreatedAt = "created_at"
	SortByUpdatedAt = "updated_at"
	SortByID        = "id"
)

// Options selects, orders and pages tasks. Unknown filter keys and unknown
// sort keys are caller contract violations; they are ignored, never a
// fault. Limit <= 0 means unlimited; an offset past the end yields an empty
// result.
type Options struct {
	Filters map[string]any
	SortBy  string
	Limit   int
	Offset  int
}

// Apply runs opts over the taskset's tasks and returns matching copies.
func Apply(ts *taskset.Taskset, opts Options) []taskset.Task {
	out := make([]taskset.Task, 0, len(ts.Tasks))
	for i := range ts.Tasks {
		if matches(&ts.Tasks[i], opts.Filters) {
			out = append(out, ts.Tasks[i].Clone())
		}
	}

	sortTasks(out, opts.SortBy)

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []taskset.Task{}
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out
}

func matches(task *taskset.Task, filters map[string]any) bool {
	for key, want := range filters {
		switch key {
		case FilterState:
			s, ok := coerceString(want)
			if ok && string(task.State) != s {
				return false
			}
		case FilterRequiredSkill:
			s, ok := coerceString(want)
			if ok && task.RequiredSkill != s {
				return false
			}
		case FilterIsOptional:
			b, ok := want.(bool)
			if ok && task.IsOptional != b {
				return false
			}
		case FilterHasDependencies:
			b, ok := want.(bool)
			if ok && (len(task.Dependencies) > 0) != b {
				return false
			}
		case FilterRunnerID:
			s, ok := coerceString(want)
			if ok && task.RunnerID != s {
				return false
			}
		case FilterAssignedSlot:
			s, ok := coerceString(want)
			if ok && task.AssignedSlot != s {
				return false
			}
		default:
			// unknown key: ignored
		}
	}
	return true
}

func coerceString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case taskset.TaskState:
		return string(s), true
	case fmt.Stringer:
		return s.String(), true
	default:
		return "", false
	}
}

// sortTasks orders tasks in place. Sorts are stable so equal keys keep
// document order.
func sortTasks(tasks []taskset.Task, sortBy string) {
	switch sortBy {
	case SortByPriority:
		sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Priority > tasks[j].Priority })
	case SortByCreatedAt:
		sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })
	case SortByUpdatedAt:
		sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].UpdatedAt.Before(tasks[j].UpdatedAt) })
	case SortByID:
		sort.SliceStable(tasks, func(i, j int) bool { return taskset.CompareIDs(tasks[i].ID, tasks[j].ID) < 0 })
	default:
		// unknown sort key: keep input order
	}
}

// ByState returns the tasks currently in state.
func ByState(ts *taskset.Taskset, state taskset.TaskState) []taskset.Task {
	return Apply(ts, Options{Filters: map[string]any{FilterState: state}})
}

// BySkill returns the tasks requiring skill.
func BySkill(ts *taskset.Taskset, skill string) []taskset.Task {
	return Apply(ts, Options{Filters: map[string]any{FilterRequiredSkill: skill}})
}

// Ready returns the tasks in the ready state.
func Ready(ts *taskset.Taskset) []taskset.Task {
	return ByState(ts, taskset.StateReady)
}

// Optional returns the optional tasks.
func Optional(ts *taskset.Taskset) []taskset.Task {
	return Apply(ts, Options{Filters: map[string]any{FilterIsOptional: true}})
}
