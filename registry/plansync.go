package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"

	"necrocode/graph"
	"necrocode/internal/infra/filestore"
	"necrocode/internal/infra/roots"
	"necrocode/internal/plan"
	"necrocode/taskset"
)

// SyncResult reports what one plan synchronization changed. Success means
// the reconciled document is on disk (or already was); Errors carries cycle
// refusals, parser diagnostics and checkbox assertions the transition table
// rejected.
type SyncResult struct {
	Success      bool     `json:"success"`
	TasksAdded   []string `json:"tasks_added,omitempty"`
	TasksUpdated []string `json:"tasks_updated,omitempty"`
	TasksRemoved []string `json:"tasks_removed,omitempty"`
	Errors       []string `json:"errors,omitempty"`
}

type syncOptions struct {
	prune bool
}

// SyncOption adjusts one synchronization call.
type SyncOption func(*syncOptions)

// WithPrune deletes registry tasks the plan no longer lists instead of only
// reporting them.
func WithPrune() SyncOption {
	return func(o *syncOptions) { o.prune = true }
}

// SyncFromPlan reconciles spec's taskset with the markdown plan at planPath
// (empty selects <cwd>/.kiro/specs/<spec>/tasks.md). Plan tasks missing from
// the registry are created; common tasks take the plan's title, description,
// dependencies and optional flag; checkboxes nudge states through the
// transition table (x asserts done from any legal state, - asserts running
// from ready or blocked, a blank box reopens a done task). Tasks the plan
// dropped are reported, not deleted, unless WithPrune is given. A dependency
// cycle in the merged graph refuses the whole sync and leaves the registry
// untouched.
func (r *Registry) SyncFromPlan(ctx context.Context, spec, planPath string, opts ...SyncOption) (res *SyncResult, err error) {
	ctx, done := r.instrument(ctx, opSyncFromPlan, attribute.String(traceAttrSpec, spec))
	defer func() { done(err) }()

	if err = roots.ValidateSpecName(spec); err != nil {
		return nil, err
	}
	var so syncOptions
	for _, o := range opts {
		o(&so)
	}
	if planPath == "" {
		if planPath, err = plan.DefaultPath(spec); err != nil {
			return nil, err
		}
	}

	raw, rerr := os.ReadFile(planPath)
	if rerr != nil {
		return nil, taskset.SyncError(fmt.Sprintf("read plan %s: %v", planPath, rerr))
	}
	planTasks, diags := plan.Parse(string(raw))
	if len(planTasks) == 0 {
		return nil, taskset.SyncError(fmt.Sprintf("plan %s contains no tasks", planPath))
	}

	var issues *multierror.Error
	for _, d := range diags {
		issues = multierror.Append(issues, errors.New(d.String()))
	}

	res = &SyncResult{Success: true}
	err = r.withLock(ctx, spec, func() error {
		now := r.now()
		created := false
		ts, lerr := r.store.Load(spec)
		if errors.Is(lerr, taskset.ErrNotFound) {
			created = true
			ts = &taskset.Taskset{SpecName: spec, CreatedAt: now}
		} else if lerr != nil {
			return lerr
		}

		inPlan := make(map[string]bool, len(planTasks))
		for i := range planTasks {
			inPlan[planTasks[i].ID] = true
		}
		// Ids that survive this sync; plan dependencies outside this set
		// are dropped rather than left dangling.
		final := make(map[string]bool, len(planTasks)+len(ts.Tasks))
		for id := range inPlan {
			final[id] = true
		}
		for i := range ts.Tasks {
			if !so.prune || inPlan[ts.Tasks[i].ID] {
				final[ts.Tasks[i].ID] = true
			}
		}

		var (
			added      []string
			addedSet   = make(map[string]bool)
			updated    []string
			updatedSet = make(map[string]bool)
			updateEvs  []taskset.Event
		)
		markUpdated := func(id string) {
			if !updatedSet[id] {
				updatedSet[id] = true
				updated = append(updated, id)
			}
		}

		for i := range planTasks {
			pt := &planTasks[i]
			deps := filterIDs(pt.Dependencies, final)

			existing := ts.Find(pt.ID)
			if existing == nil {
				// Provisional blocked; the readiness pass below settles it.
				state := taskset.StateBlocked
				if plan.ImpliedState(pt.Checkbox) == taskset.StateDone {
					state = taskset.StateDone
				}
				ts.Tasks = append(ts.Tasks, taskset.Task{
					ID:           pt.ID,
					Title:        pt.Title,
					Description:  pt.Description,
					State:        state,
					Dependencies: deps,
					IsOptional:   pt.Optional,
					CreatedAt:    now,
					UpdatedAt:    now,
				})
				added = append(added, pt.ID)
				addedSet[pt.ID] = true
				continue
			}

			fields := false
			if existing.Title != pt.Title {
				existing.Title = pt.Title
				fields = true
			}
			if existing.Description != pt.Description {
				existing.Description = pt.Description
				fields = true
			}
			if !equalIDs(existing.Dependencies, deps) {
				existing.Dependencies = deps
				fields = true
			}
			if existing.IsOptional != pt.Optional {
				existing.IsOptional = pt.Optional
				fields = true
			}
			if fields {
				existing.UpdatedAt = now
				markUpdated(pt.ID)
				updateEvs = append(updateEvs, taskset.Event{
					Timestamp: now,
					SpecName:  spec,
					TaskID:    pt.ID,
					Type:      taskset.EventTaskUpdated,
					Details:   map[string]any{"action": "fields_updated", "source": "plan_sync"},
				})
			}

			from := existing.State
			var to taskset.TaskState
			switch implied := plan.ImpliedState(pt.Checkbox); {
			case implied == taskset.StateDone && from != taskset.StateDone:
				to = taskset.StateDone
			case implied == taskset.StateRunning && (from == taskset.StateReady || from == taskset.StateBlocked):
				to = taskset.StateRunning
			case implied == taskset.StateReady && from == taskset.StateDone:
				to = taskset.StateReady
			default:
				continue
			}
			if !taskset.CanTransition(from, to) {
				issues = multierror.Append(issues, fmt.Errorf(
					"task %s: plan asserts %s but %s -> %s is not a legal transition", pt.ID, to, from, to))
				continue
			}
			existing.State = to
			existing.UpdatedAt = now
			if from == taskset.StateRunning {
				existing.AssignedSlot, existing.ReservedBranch, existing.RunnerID = "", "", ""
			}
			markUpdated(pt.ID)
			updateEvs = append(updateEvs, taskset.Event{
				Timestamp: now,
				SpecName:  spec,
				TaskID:    pt.ID,
				Type:      taskset.EventForState(to),
				Details:   map[string]any{"from": string(from), "to": string(to), "source": "plan_sync"},
			})
		}

		var removed []string
		if so.prune {
			var kept []taskset.Task
			for i := range ts.Tasks {
				if inPlan[ts.Tasks[i].ID] {
					kept = append(kept, ts.Tasks[i])
				} else {
					removed = append(removed, ts.Tasks[i].ID)
				}
			}
			ts.Tasks = kept
		} else {
			for i := range ts.Tasks {
				if !inPlan[ts.Tasks[i].ID] {
					removed = append(removed, ts.Tasks[i].ID)
				}
			}
		}

		if chain := graph.DetectCycle(ts.Tasks); chain != nil {
			issues = multierror.Append(issues, &taskset.CycleError{Chain: chain})
			res.Success = false
			return nil
		}

		cascadeEvs := reevaluateReadiness(ts, addedSet, spec, now)

		createdEvs := make([]taskset.Event, 0, len(added))
		for _, id := range added {
			t := ts.Find(id)
			createdEvs = append(createdEvs, taskset.Event{
				Timestamp: now,
				SpecName:  spec,
				TaskID:    id,
				Type:      taskset.EventTaskCreated,
				Details: map[string]any{
					"state":  string(t.State),
					"title":  t.Title,
					"source": "plan_sync",
				},
			})
		}

		res.TasksAdded = added
		res.TasksUpdated = updated
		res.TasksRemoved = removed

		pruned := so.prune && len(removed) > 0
		if !created && len(added) == 0 && len(updated) == 0 && len(cascadeEvs) == 0 && !pruned {
			r.logger.Debug("spec %s already matches plan %s", spec, planPath)
			return nil
		}

		if created {
			ts.Version = 1
		} else {
			ts.Version++
		}
		ts.UpdatedAt = now
		if verr := ts.Validate(); verr != nil {
			return verr
		}
		if serr := r.store.Save(ts); serr != nil {
			return serr
		}
		events := append(append(createdEvs, updateEvs...), cascadeEvs...)
		return r.appendEvents(events)
	})
	if err != nil {
		return nil, err
	}

	if issues != nil {
		for _, ierr := range issues.Errors {
			res.Errors = append(res.Errors, ierr.Error())
		}
	}
	if res.Success {
		r.metrics.AddPlanSyncTasks("added", len(res.TasksAdded))
		r.metrics.AddPlanSyncTasks("updated", len(res.TasksUpdated))
		r.metrics.AddPlanSyncTasks("removed", len(res.TasksRemoved))
		r.logger.Info("synced spec %s from %s: %d added, %d updated, %d removed",
			spec, planPath, len(res.TasksAdded), len(res.TasksUpdated), len(res.TasksRemoved))
	} else {
		r.logger.Warn("refused plan sync for spec %s: %d issue(s)", spec, len(res.Errors))
	}
	return res, nil
}

// SyncWithPlan is an alias for SyncFromPlan.
func (r *Registry) SyncWithPlan(ctx context.Context, spec, planPath string, opts ...SyncOption) (*SyncResult, error) {
	return r.SyncFromPlan(ctx, spec, planPath, opts...)
}

// SyncToPlan pushes current task states back into the plan document,
// rewriting only checkbox glyphs, and reports line-level change stats. The
// write is atomic; a rewrite that changes nothing leaves the file alone.
func (r *Registry) SyncToPlan(ctx context.Context, spec, planPath string) (stats plan.Stats, err error) {
	_, done := r.instrument(ctx, opSyncToPlan, attribute.String(traceAttrSpec, spec))
	defer func() { done(err) }()

	if err = roots.ValidateSpecName(spec); err != nil {
		return plan.Stats{}, err
	}
	if planPath == "" {
		if planPath, err = plan.DefaultPath(spec); err != nil {
			return plan.Stats{}, err
		}
	}
	ts, err := r.store.Load(spec)
	if err != nil {
		return plan.Stats{}, err
	}
	raw, rerr := os.ReadFile(planPath)
	if rerr != nil {
		return plan.Stats{}, taskset.SyncError(fmt.Sprintf("read plan %s: %v", planPath, rerr))
	}

	states := make(map[string]taskset.TaskState, len(ts.Tasks))
	for i := range ts.Tasks {
		states[ts.Tasks[i].ID] = ts.Tasks[i].State
	}
	content := string(raw)
	rewritten, changed := plan.RewriteStatuses(content, states)
	if changed == 0 {
		r.logger.Debug("plan %s already reflects spec %s", planPath, spec)
		return plan.Stats{}, nil
	}
	if werr := filestore.AtomicWrite(planPath, []byte(rewritten), 0o644); werr != nil {
		return plan.Stats{}, taskset.SyncError(fmt.Sprintf("write plan %s: %v", planPath, werr))
	}
	stats = plan.DiffStats(content, rewritten)
	r.logger.Info("updated %d checkbox(es) in %s for spec %s", changed, planPath, spec)
	return stats, nil
}

// reevaluateReadiness settles every ready/blocked task against the current
// dependency states: blocked tasks whose dependencies are all done become
// ready, ready tasks with an unsatisfied dependency fall back to blocked.
// Tasks in quiet settle silently (their creation event carries the final
// state); other flips emit events.
func reevaluateReadiness(ts *taskset.Taskset, quiet map[string]bool, spec string, now time.Time) []taskset.Event {
	var events []taskset.Event
	for i := range ts.Tasks {
		t := &ts.Tasks[i]
		switch t.State {
		case taskset.StateBlocked:
			if !depsSatisfied(ts, t) {
				continue
			}
			t.State = taskset.StateReady
			t.UpdatedAt = now
			if quiet[t.ID] {
				continue
			}
			events = append(events, taskset.Event{
				Timestamp: now,
				SpecName:  spec,
				TaskID:    t.ID,
				Type:      taskset.EventTaskReady,
				Details: map[string]any{
					"from":   string(taskset.StateBlocked),
					"to":     string(taskset.StateReady),
					"reason": "dependencies_satisfied",
				},
			})
		case taskset.StateReady:
			if depsSatisfied(ts, t) {
				continue
			}
			t.State = taskset.StateBlocked
			t.UpdatedAt = now
			if quiet[t.ID] {
				continue
			}
			events = append(events, taskset.Event{
				Timestamp: now,
				SpecName:  spec,
				TaskID:    t.ID,
				Type:      taskset.EventTaskUpdated,
				Details: map[string]any{
					"from":   string(taskset.StateReady),
					"to":     string(taskset.StateBlocked),
					"reason": "dependency_unsatisfied",
				},
			})
		}
	}
	return events
}

func filterIDs(ids []string, keep map[string]bool) []string {
	var out []string
	for _, id := range ids {
		if keep[id] {
			out = append(out, id)
		}
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
