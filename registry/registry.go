// Package registry is the public surface of the task registry. Every
// mutation follows the same discipline: acquire the per-spec lock, load the
// document from disk, apply the change, bump the version, stamp updated_at,
// write atomically, append events, release. Reads never lock; the atomic
// rename on write guarantees they always see a complete document.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"necrocode/graph"
	"necrocode/internal/infra/eventlog"
	"necrocode/internal/infra/filestore"
	"necrocode/internal/infra/lockfile"
	"necrocode/internal/infra/roots"
	"necrocode/internal/infra/taskstore"
	"necrocode/internal/shared/logging"
	"necrocode/query"
	"necrocode/taskset"

	jsonx "necrocode/internal/shared/json"
)

// Defaults applied to zero-valued Config fields.
const (
	DefaultLockTimeout      = 10 * time.Second
	DefaultLockPoll         = 50 * time.Millisecond
	DefaultEventLogMaxBytes = int64(10 << 20)
)

// Operation labels shared by metrics and trace spans.
const (
	opCreateTaskset   = "create_taskset"
	opGetTaskset      = "get_taskset"
	opListTasksets    = "list_tasksets"
	opDeleteTaskset   = "delete_taskset"
	opSummary         = "summary"
	opUpdateTaskState = "update_task_state"
	opGetReadyTasks   = "get_ready_tasks"
	opQueryTasks      = "query_tasks"
	opAddArtifact     = "add_artifact"
	opEvents          = "events"
	opRecordRunner    = "record_runner_event"
	opRotateEvents    = "rotate_events"
	opBackup          = "backup"
	opRestoreBackup   = "restore_backup"
	opExportGraph     = "export_graph"
	opExecutionOrder  = "execution_order"
	opSyncFromPlan    = "sync_from_plan"
	opSyncToPlan      = "sync_to_plan"
)

// Config sets the on-disk root and the coordination knobs.
type Config struct {
	// RootDir is the registry base directory. Empty selects
	// ~/.necrocode/registry; ~ and environment variables are expanded.
	RootDir string

	// LockTimeout bounds each lock acquisition. Zero selects the default;
	// a negative value degrades acquisition to one non-blocking attempt.
	LockTimeout time.Duration

	// LockPoll is the retry interval while waiting for a lock. Non-positive
	// selects the default.
	LockPoll time.Duration

	// EventLogMaxBytes is the rotation threshold for RotateEvents when the
	// caller passes no explicit size. Non-positive selects the default.
	EventLogMaxBytes int64
}

func (c Config) withDefaults() Config {
	if c.LockTimeout == 0 {
		c.LockTimeout = DefaultLockTimeout
	}
	if c.LockPoll <= 0 {
		c.LockPoll = DefaultLockPoll
	}
	if c.EventLogMaxBytes <= 0 {
		c.EventLogMaxBytes = DefaultEventLogMaxBytes
	}
	return c
}

// Registry coordinates taskset documents, per-spec locks and event logs
// under one root directory. It holds no document state in memory; every
// operation reloads from disk, so any number of Registry instances in any
// number of processes can share a root.
type Registry struct {
	cfg     Config
	roots   roots.Roots
	store   *taskstore.Store
	events  *eventlog.Store
	locks   *lockfile.Manager
	logger  logging.Logger
	metrics *Metrics
	tp      trace.TracerProvider
	now     func() time.Time
}

// New resolves the root layout, creates the directories and returns a ready
// Registry.
func New(cfg Config, opts ...Option) (*Registry, error) {
	r := &Registry{
		cfg:    cfg.withDefaults(),
		logger: logging.NewComponentLogger("registry"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.roots = roots.Resolve(r.cfg.RootDir)
	if err := r.roots.Ensure(); err != nil {
		return nil, err
	}
	if r.metrics == nil {
		r.metrics = defaultMetrics()
	}
	r.store = taskstore.NewStore(r.roots, r.logger, r.now)
	r.events = eventlog.NewStore(r.roots, r.logger)
	r.locks = lockfile.NewManager(r.roots, r.cfg.LockTimeout, r.cfg.LockPoll, r.logger)
	r.logger.Info("registry ready at %s (lock timeout %s)", r.roots.Base, r.cfg.LockTimeout)
	return r, nil
}

// Root returns the resolved base directory.
func (r *Registry) Root() string { return r.roots.Base }

// CreateTaskset builds and persists a new taskset for spec. Definitions must
// carry unique ids, dependencies referencing other definitions in the batch,
// and an acyclic dependency graph. Initial states: done for completed
// definitions, blocked while any dependency is incomplete, ready otherwise.
// Creating over an existing taskset replaces it and continues its version
// sequence.
func (r *Registry) CreateTaskset(ctx context.Context, spec string, defs []taskset.Definition, metadata map[string]any) (ts *taskset.Taskset, err error) {
	ctx, done := r.instrument(ctx, opCreateTaskset, attribute.String(traceAttrSpec, spec))
	defer func() { done(err) }()

	if err = roots.ValidateSpecName(spec); err != nil {
		return nil, err
	}
	now := r.now()
	tasks, err := tasksFromDefinitions(spec, defs, now)
	if err != nil {
		return nil, err
	}
	if chain := graph.DetectCycle(tasks); chain != nil {
		return nil, &taskset.CycleError{Chain: chain}
	}

	err = r.withLock(ctx, spec, func() error {
		version := 1
		switch prev, lerr := r.store.Load(spec); {
		case lerr == nil:
			version = prev.Version + 1
		case !errors.Is(lerr, taskset.ErrNotFound):
			return lerr
		}

		ts = &taskset.Taskset{
			SpecName:  spec,
			Version:   version,
			CreatedAt: now,
			UpdatedAt: now,
			Tasks:     tasks,
			Metadata:  metadata,
		}
		if serr := r.store.Save(ts); serr != nil {
			return serr
		}

		events := make([]taskset.Event, 0, len(tasks))
		for i := range tasks {
			events = append(events, taskset.Event{
				Timestamp: now,
				SpecName:  spec,
				TaskID:    tasks[i].ID,
				Type:      taskset.EventTaskCreated,
				Details: map[string]any{
					"state": string(tasks[i].State),
					"title": tasks[i].Title,
				},
			})
		}
		return r.appendEvents(events)
	})
	if err != nil {
		return nil, err
	}
	r.logger.Info("created taskset for spec %s (version %d, %d tasks)", spec, ts.Version, len(ts.Tasks))
	return ts, nil
}

// GetTaskset returns the current document for spec. The result is the
// caller's to mutate; it shares nothing with the registry.
func (r *Registry) GetTaskset(ctx context.Context, spec string) (ts *taskset.Taskset, err error) {
	_, done := r.instrument(ctx, opGetTaskset, attribute.String(traceAttrSpec, spec))
	defer func() { done(err) }()

	if err = roots.ValidateSpecName(spec); err != nil {
		return nil, err
	}
	return r.store.Load(spec)
}

// ListTasksets returns the specs with a persisted taskset, sorted.
func (r *Registry) ListTasksets(ctx context.Context) (specs []string, err error) {
	_, done := r.instrument(ctx, opListTasksets)
	defer func() { done(err) }()
	return r.store.List()
}

// DeleteTaskset removes the document for spec. The spec's event history is
// kept as an audit record.
func (r *Registry) DeleteTaskset(ctx context.Context, spec string) (err error) {
	ctx, done := r.instrument(ctx, opDeleteTaskset, attribute.String(traceAttrSpec, spec))
	defer func() { done(err) }()

	if err = roots.ValidateSpecName(spec); err != nil {
		return err
	}
	return r.withLock(ctx, spec, func() error {
		return r.store.Delete(spec)
	})
}

// Summary returns per-state task counts for spec.
func (r *Registry) Summary(ctx context.Context, spec string) (s taskset.Summary, err error) {
	_, done := r.instrument(ctx, opSummary, attribute.String(traceAttrSpec, spec))
	defer func() { done(err) }()

	if err = roots.ValidateSpecName(spec); err != nil {
		return taskset.Summary{}, err
	}
	ts, err := r.store.Load(spec)
	if err != nil {
		return taskset.Summary{}, err
	}
	return ts.Summarize(), nil
}

// UpdateTaskState moves one task through the transition table. Entering
// running copies assigned_slot, reserved_branch and runner_id from metadata;
// leaving running clears them. Completing a task promotes blocked dependents
// whose dependencies are now all done; reopening a done task demotes ready
// dependents back to blocked. Self-transitions are heartbeats: persisted,
// event-emitting, otherwise inert.
func (r *Registry) UpdateTaskState(ctx context.Context, spec, taskID string, to taskset.TaskState, metadata map[string]any) (ts *taskset.Taskset, err error) {
	ctx, done := r.instrument(ctx, opUpdateTaskState,
		attribute.String(traceAttrSpec, spec),
		attribute.String(traceAttrTaskID, taskID),
		attribute.String(traceAttrState, string(to)))
	defer func() { done(err) }()

	if err = roots.ValidateSpecName(spec); err != nil {
		return nil, err
	}
	ts, err = r.mutate(ctx, spec, func(doc *taskset.Taskset) ([]taskset.Event, error) {
		task := doc.Find(taskID)
		if task == nil {
			return nil, taskset.NotFoundError(fmt.Sprintf("spec %s: task %s", spec, taskID))
		}
		from := task.State
		if !taskset.CanTransition(from, to) {
			return nil, &taskset.TransitionError{TaskID: taskID, From: from, To: to}
		}

		now := r.now()
		task.State = to
		task.UpdatedAt = now
		if to == taskset.StateRunning {
			if v, ok := stringValue(metadata, "assigned_slot"); ok {
				task.AssignedSlot = v
			}
			if v, ok := stringValue(metadata, "reserved_branch"); ok {
				task.ReservedBranch = v
			}
			if v, ok := stringValue(metadata, "runner_id"); ok {
				task.RunnerID = v
			}
		} else if from == taskset.StateRunning {
			task.AssignedSlot, task.ReservedBranch, task.RunnerID = "", "", ""
		}

		details := map[string]any{"from": string(from), "to": string(to)}
		for k, v := range metadata {
			if _, taken := details[k]; !taken {
				details[k] = v
			}
		}
		events := []taskset.Event{{
			Timestamp: now,
			SpecName:  spec,
			TaskID:    taskID,
			Type:      taskset.EventForState(to),
			Details:   details,
		}}

		switch {
		case to == taskset.StateDone && from != taskset.StateDone:
			events = append(events, promoteUnblocked(doc, taskID, spec, now)...)
		case from == taskset.StateDone && to != taskset.StateDone:
			events = append(events, demoteUnsatisfied(doc, taskID, spec, now)...)
		}
		r.logger.Debug("spec %s: task %s %s -> %s", spec, taskID, from, to)
		return events, nil
	})
	return ts, err
}

// GetReadyTasks returns the ready tasks for spec, optionally restricted to
// one required skill, ordered by ascending dependency count then id so the
// cheapest unblocking work dispatches first.
func (r *Registry) GetReadyTasks(ctx context.Context, spec, skill string) (tasks []taskset.Task, err error) {
	_, done := r.instrument(ctx, opGetReadyTasks, attribute.String(traceAttrSpec, spec))
	defer func() { done(err) }()

	if err = roots.ValidateSpecName(spec); err != nil {
		return nil, err
	}
	ts, err := r.store.Load(spec)
	if err != nil {
		return nil, err
	}
	filters := map[string]any{query.FilterState: taskset.StateReady}
	if skill != "" {
		filters[query.FilterRequiredSkill] = skill
	}
	tasks = query.Apply(ts, query.Options{Filters: filters})
	sort.SliceStable(tasks, func(i, j int) bool {
		if len(tasks[i].Dependencies) != len(tasks[j].Dependencies) {
			return len(tasks[i].Dependencies) < len(tasks[j].Dependencies)
		}
		return taskset.CompareIDs(tasks[i].ID, tasks[j].ID) < 0
	})
	return tasks, nil
}

// QueryTasks runs an arbitrary filter/sort/page query over spec's tasks.
func (r *Registry) QueryTasks(ctx context.Context, spec string, opts query.Options) (tasks []taskset.Task, err error) {
	_, done := r.instrument(ctx, opQueryTasks, attribute.String(traceAttrSpec, spec))
	defer func() { done(err) }()

	if err = roots.ValidateSpecName(spec); err != nil {
		return nil, err
	}
	ts, err := r.store.Load(spec)
	if err != nil {
		return nil, err
	}
	return query.Apply(ts, opts), nil
}

// AddArtifact attaches one artifact to a task. A zero CreatedAt is stamped
// with the current time, and a zero SizeBytes is lifted from the artifact's
// size_bytes metadata when present.
func (r *Registry) AddArtifact(ctx context.Context, spec, taskID string, artifact taskset.Artifact) (err error) {
	ctx, done := r.instrument(ctx, opAddArtifact,
		attribute.String(traceAttrSpec, spec),
		attribute.String(traceAttrTaskID, taskID))
	defer func() { done(err) }()

	if err = roots.ValidateSpecName(spec); err != nil {
		return err
	}
	if !artifact.Type.Valid() {
		return taskset.IntegrityError(fmt.Sprintf("unknown artifact type %q", artifact.Type))
	}
	_, err = r.mutate(ctx, spec, func(doc *taskset.Taskset) ([]taskset.Event, error) {
		task := doc.Find(taskID)
		if task == nil {
			return nil, taskset.NotFoundError(fmt.Sprintf("spec %s: task %s", spec, taskID))
		}
		now := r.now()
		if artifact.CreatedAt.IsZero() {
			artifact.CreatedAt = now
		}
		if artifact.SizeBytes == 0 {
			artifact.SizeBytes = sizeBytesFromMetadata(artifact.Metadata)
		}
		task.Artifacts = append(task.Artifacts, artifact)
		task.UpdatedAt = now
		return []taskset.Event{{
			Timestamp: now,
			SpecName:  spec,
			TaskID:    taskID,
			Type:      taskset.EventTaskUpdated,
			Details: map[string]any{
				"action":        "artifact_added",
				"artifact_type": string(artifact.Type),
				"path":          artifact.Path,
			},
		}}, nil
	})
	return err
}

// Events returns the full event history for spec in append order.
func (r *Registry) Events(ctx context.Context, spec string) (evs []taskset.Event, err error) {
	_, done := r.instrument(ctx, opEvents, attribute.String(traceAttrSpec, spec))
	defer func() { done(err) }()

	if err = roots.ValidateSpecName(spec); err != nil {
		return nil, err
	}
	return r.events.GetAll(spec)
}

// EventsByTask returns one task's events in append order.
func (r *Registry) EventsByTask(ctx context.Context, spec, taskID string) (evs []taskset.Event, err error) {
	_, done := r.instrument(ctx, opEvents,
		attribute.String(traceAttrSpec, spec),
		attribute.String(traceAttrTaskID, taskID))
	defer func() { done(err) }()

	if err = roots.ValidateSpecName(spec); err != nil {
		return nil, err
	}
	return r.events.GetByTask(spec, taskID)
}

// EventsByTimeRange returns the events with from <= timestamp <= to. A zero
// bound leaves that end open.
func (r *Registry) EventsByTimeRange(ctx context.Context, spec string, from, to time.Time) (evs []taskset.Event, err error) {
	_, done := r.instrument(ctx, opEvents, attribute.String(traceAttrSpec, spec))
	defer func() { done(err) }()

	if err = roots.ValidateSpecName(spec); err != nil {
		return nil, err
	}
	return r.events.GetByTimeRange(spec, from, to)
}

// RecordRunnerEvent appends a RunnerStarted or RunnerFinished audit event
// for a task. Runner events never change task state; runners report state
// through UpdateTaskState.
func (r *Registry) RecordRunnerEvent(ctx context.Context, spec, taskID string, eventType taskset.EventType, details map[string]any) (err error) {
	_, done := r.instrument(ctx, opRecordRunner,
		attribute.String(traceAttrSpec, spec),
		attribute.String(traceAttrTaskID, taskID))
	defer func() { done(err) }()

	if err = roots.ValidateSpecName(spec); err != nil {
		return err
	}
	if eventType != taskset.EventRunnerStarted && eventType != taskset.EventRunnerFinished {
		return taskset.IntegrityError(fmt.Sprintf("event type %q is not a runner event", eventType))
	}
	ts, err := r.store.Load(spec)
	if err != nil {
		return err
	}
	if ts.Find(taskID) == nil {
		return taskset.NotFoundError(fmt.Sprintf("spec %s: task %s", spec, taskID))
	}
	return r.appendEvents([]taskset.Event{{
		Timestamp: r.now(),
		SpecName:  spec,
		TaskID:    taskID,
		Type:      eventType,
		Details:   details,
	}})
}

// RotateEvents rotates every spec's live event log that has reached
// maxBytes. Non-positive maxBytes selects the configured default. Returns
// the rotated-away file paths.
func (r *Registry) RotateEvents(ctx context.Context, maxBytes int64) (rotated []string, err error) {
	ctx, done := r.instrument(ctx, opRotateEvents)
	defer func() { done(err) }()

	if maxBytes <= 0 {
		maxBytes = r.cfg.EventLogMaxBytes
	}
	return r.events.Rotate(ctx, maxBytes)
}

// Backup copies spec's current document into the backups directory and
// returns the backup path.
func (r *Registry) Backup(ctx context.Context, spec string) (path string, err error) {
	_, done := r.instrument(ctx, opBackup, attribute.String(traceAttrSpec, spec))
	defer func() { done(err) }()

	if err = roots.ValidateSpecName(spec); err != nil {
		return "", err
	}
	return r.store.Backup(spec)
}

// RestoreBackup replaces a spec's document with the backup at path. The
// restored version is whatever the backup carries; restores rewrite history
// deliberately and emit no events.
func (r *Registry) RestoreBackup(ctx context.Context, path string) (ts *taskset.Taskset, err error) {
	ctx, done := r.instrument(ctx, opRestoreBackup)
	defer func() { done(err) }()

	spec, err := peekSpecName(path)
	if err != nil {
		return nil, err
	}
	if err = roots.ValidateSpecName(spec); err != nil {
		return nil, err
	}
	err = r.withLock(ctx, spec, func() error {
		var rerr error
		ts, rerr = r.store.Restore(path)
		return rerr
	})
	if err != nil {
		return nil, err
	}
	return ts, nil
}

// ForceUnlock removes spec's lock file so future acquisitions start fresh.
// Operator escape hatch for locks orphaned by crashed processes.
func (r *Registry) ForceUnlock(spec string) error {
	if err := roots.ValidateSpecName(spec); err != nil {
		return err
	}
	return r.locks.ForceUnlock(spec)
}

// IsLocked reports whether some holder had spec's lock at probe time.
func (r *Registry) IsLocked(spec string) (bool, error) {
	if err := roots.ValidateSpecName(spec); err != nil {
		return false, err
	}
	return r.locks.IsLocked(spec)
}

// ExportGraphDot renders spec's dependency graph as GraphViz DOT.
func (r *Registry) ExportGraphDot(ctx context.Context, spec string) (out string, err error) {
	_, done := r.instrument(ctx, opExportGraph, attribute.String(traceAttrSpec, spec))
	defer func() { done(err) }()

	if err = roots.ValidateSpecName(spec); err != nil {
		return "", err
	}
	ts, err := r.store.Load(spec)
	if err != nil {
		return "", err
	}
	return graph.ToDot(ts), nil
}

// ExportGraphMermaid renders spec's dependency graph as a Mermaid flowchart.
func (r *Registry) ExportGraphMermaid(ctx context.Context, spec string) (out string, err error) {
	_, done := r.instrument(ctx, opExportGraph, attribute.String(traceAttrSpec, spec))
	defer func() { done(err) }()

	if err = roots.ValidateSpecName(spec); err != nil {
		return "", err
	}
	ts, err := r.store.Load(spec)
	if err != nil {
		return "", err
	}
	return graph.ToMermaid(ts), nil
}

// ExecutionOrder groups spec's task ids into dependency levels; tasks caught
// in a cycle come back as the final level.
func (r *Registry) ExecutionOrder(ctx context.Context, spec string) (levels [][]string, err error) {
	_, done := r.instrument(ctx, opExecutionOrder, attribute.String(traceAttrSpec, spec))
	defer func() { done(err) }()

	if err = roots.ValidateSpecName(spec); err != nil {
		return nil, err
	}
	ts, err := r.store.Load(spec)
	if err != nil {
		return nil, err
	}
	return graph.ExecutionOrder(ts.Tasks), nil
}

// withLock runs fn while holding spec's lock, recording lock wait time and
// timeouts.
func (r *Registry) withLock(ctx context.Context, spec string, fn func() error) error {
	start := time.Now()
	handle, err := r.locks.Acquire(ctx, spec)
	r.metrics.ObserveLockWait(time.Since(start))
	if err != nil {
		if errors.Is(err, taskset.ErrLockTimeout) {
			r.metrics.IncLockTimeout()
		}
		return err
	}
	defer func() {
		if rerr := handle.Release(); rerr != nil {
			r.logger.Warn("release lock for spec %s: %v", spec, rerr)
		}
	}()
	return fn()
}

// mutate applies fn to the loaded document under the spec lock, then bumps
// the version, stamps updated_at, saves atomically and appends the events fn
// returned. The document is already durable when event appends run; an
// append failure surfaces as ErrIO with the mutation applied.
func (r *Registry) mutate(ctx context.Context, spec string, fn func(*taskset.Taskset) ([]taskset.Event, error)) (*taskset.Taskset, error) {
	var out *taskset.Taskset
	err := r.withLock(ctx, spec, func() error {
		ts, err := r.store.Load(spec)
		if err != nil {
			return err
		}
		events, err := fn(ts)
		if err != nil {
			return err
		}
		ts.Version++
		ts.UpdatedAt = r.now()
		if err := r.store.Save(ts); err != nil {
			return err
		}
		out = ts
		return r.appendEvents(events)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// appendEvents records every event, aggregating append failures so one bad
// write does not hide the rest.
func (r *Registry) appendEvents(events []taskset.Event) error {
	var merr *multierror.Error
	for _, ev := range events {
		if err := r.events.Record(ev); err != nil {
			merr = multierror.Append(merr, err)
			continue
		}
		r.metrics.IncEventAppended(string(ev.Type))
	}
	return merr.ErrorOrNil()
}

// promoteUnblocked flips blocked tasks whose dependencies are now all done
// to ready. completedID is the task whose completion triggered the pass.
func promoteUnblocked(doc *taskset.Taskset, completedID, spec string, now time.Time) []taskset.Event {
	var events []taskset.Event
	for i := range doc.Tasks {
		t := &doc.Tasks[i]
		if t.ID == completedID || t.State != taskset.StateBlocked {
			continue
		}
		if !depsSatisfied(doc, t) {
			continue
		}
		t.State = taskset.StateReady
		t.UpdatedAt = now
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
	}
	return events
}

// demoteUnsatisfied flips ready tasks back to blocked after one of their
// dependencies was reopened.
func demoteUnsatisfied(doc *taskset.Taskset, reopenedID, spec string, now time.Time) []taskset.Event {
	var events []taskset.Event
	for i := range doc.Tasks {
		t := &doc.Tasks[i]
		if t.ID == reopenedID || t.State != taskset.StateReady {
			continue
		}
		if depsSatisfied(doc, t) {
			continue
		}
		t.State = taskset.StateBlocked
		t.UpdatedAt = now
		events = append(events, taskset.Event{
			Timestamp: now,
			SpecName:  spec,
			TaskID:    t.ID,
			Type:      taskset.EventTaskUpdated,
			Details: map[string]any{
				"from":   string(taskset.StateReady),
				"to":     string(taskset.StateBlocked),
				"reason": "dependency_reopened",
			},
		})
	}
	return events
}

// depsSatisfied reports whether every dependency of t is done.
func depsSatisfied(doc *taskset.Taskset, t *taskset.Task) bool {
	for _, dep := range t.Dependencies {
		d := doc.Find(dep)
		if d == nil || d.State != taskset.StateDone {
			return false
		}
	}
	return true
}

// tasksFromDefinitions validates the definition batch and builds the initial
// tasks.
func tasksFromDefinitions(spec string, defs []taskset.Definition, now time.Time) ([]taskset.Task, error) {
	ids := make(map[string]bool, len(defs))
	completed := make(map[string]bool, len(defs))
	for i, d := range defs {
		if d.ID == "" {
			return nil, taskset.IntegrityError(fmt.Sprintf("spec %s: task definition %d has an empty id", spec, i))
		}
		if ids[d.ID] {
			return nil, taskset.IntegrityError(fmt.Sprintf("spec %s: duplicate task id %s", spec, d.ID))
		}
		ids[d.ID] = true
		completed[d.ID] = d.Completed
	}
	for _, d := range defs {
		for _, dep := range d.Dependencies {
			if !ids[dep] {
				return nil, taskset.IntegrityError(fmt.Sprintf("spec %s: task %s depends on unknown task %s", spec, d.ID, dep))
			}
		}
	}

	tasks := make([]taskset.Task, 0, len(defs))
	for _, d := range defs {
		state := taskset.StateReady
		if d.Completed {
			state = taskset.StateDone
		} else {
			for _, dep := range d.Dependencies {
				if !completed[dep] {
					state = taskset.StateBlocked
					break
				}
			}
		}
		tasks = append(tasks, taskset.Task{
			ID:            d.ID,
			Title:         d.Title,
			Description:   d.Description,
			State:         state,
			Dependencies:  append([]string(nil), d.Dependencies...),
			IsOptional:    d.IsOptional,
			Priority:      d.Priority,
			RequiredSkill: d.RequiredSkill,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	return tasks, nil
}

// stringValue reads a string-typed key from caller metadata.
func stringValue(metadata map[string]any, key string) (string, bool) {
	if metadata == nil {
		return "", false
	}
	v, ok := metadata[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// sizeBytesFromMetadata lifts a numeric size_bytes out of artifact metadata.
// JSON decoding yields float64; Go callers may pass int or int64.
func sizeBytesFromMetadata(metadata map[string]any) int64 {
	v, ok := metadata["size_bytes"]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

// peekSpecName reads just the spec name out of a backup document, so the
// restore can take the right lock before the full validation pass.
func peekSpecName(path string) (string, error) {
	data, err := filestore.ReadFileOrEmpty(path)
	if err != nil {
		return "", taskset.IOError("read backup "+path, err)
	}
	if data == nil {
		return "", taskset.NotFoundError("backup " + path)
	}
	var doc struct {
		SpecName string `json:"spec_name"`
	}
	if err := jsonx.Unmarshal(data, &doc); err != nil {
		return "", taskset.IntegrityError(fmt.Sprintf("backup %s is not a JSON object: %v", path, err))
	}
	if doc.SpecName == "" {
		return "", taskset.IntegrityError(fmt.Sprintf("backup %s: missing required field %q", path, "spec_name"))
	}
	return doc.SpecName, nil
}
