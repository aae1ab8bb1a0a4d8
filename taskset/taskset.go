// Package taskset holds the registry's domain model: the persisted taskset
// document, its task state machine, the event vocabulary, and the shared
// failure taxonomy. The package does no I/O.
package taskset

import (
	"fmt"
	"time"

	jsonx "necrocode/internal/shared/json"
)

// ArtifactType classifies a task output.
type ArtifactType string

const (
	ArtifactDiff   ArtifactType = "diff"
	ArtifactLog    ArtifactType = "log"
	ArtifactReport ArtifactType = "report"
	ArtifactOther  ArtifactType = "other"
)

// Valid reports whether t is a recognized artifact type.
func (t ArtifactType) Valid() bool {
	switch t {
	case ArtifactDiff, ArtifactLog, ArtifactReport, ArtifactOther:
		return true
	}
	return false
}

// Artifact is one output a runner attached to a task.
type Artifact struct {
	Type        ArtifactType   `json:"type"`
	Path        string         `json:"path"`
	Description string         `json:"description,omitempty"`
	SizeBytes   int64          `json:"size_bytes,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Task is one unit of work inside a taskset. AssignedSlot, ReservedBranch
// and RunnerID are populated only while the task is running.
type Task struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	State          TaskState  `json:"state"`
	Dependencies   []string   `json:"dependencies,omitempty"`
	IsOptional     bool       `json:"is_optional,omitempty"`
	Priority       int        `json:"priority,omitempty"`
	RequiredSkill  string     `json:"required_skill,omitempty"`
	Artifacts      []Artifact `json:"artifacts,omitempty"`
	AssignedSlot   string     `json:"assigned_slot,omitempty"`
	ReservedBranch string     `json:"reserved_branch,omitempty"`
	RunnerID       string     `json:"runner_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// Extra carries JSON fields this version does not model, so documents
	// written by newer tools survive a load/save round-trip.
	Extra map[string]jsonx.RawMessage `json:"-"`
}

// Taskset is the canonical persisted record of work for one spec.
type Taskset struct {
	SpecName  string         `json:"spec_name"`
	Version   int            `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Tasks     []Task         `json:"tasks"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	// Extra mirrors Task.Extra at the document level.
	Extra map[string]jsonx.RawMessage `json:"-"`
}

// Definition is the caller-supplied input for one task at creation time.
type Definition struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	Dependencies  []string `json:"dependencies,omitempty"`
	IsOptional    bool     `json:"is_optional,omitempty"`
	Priority      int      `json:"priority,omitempty"`
	RequiredSkill string   `json:"required_skill,omitempty"`
	Completed     bool     `json:"completed,omitempty"`
}

// Summary counts tasks by state.
type Summary struct {
	Total   int               `json:"total"`
	ByState map[TaskState]int `json:"by_state"`
}

var taskKnownKeys = []string{
	"id", "title", "description", "state", "dependencies", "is_optional",
	"priority", "required_skill", "artifacts", "assigned_slot",
	"reserved_branch", "runner_id", "created_at", "updated_at",
}

var tasksetKnownKeys = []string{
	"spec_name", "version", "created_at", "updated_at", "tasks", "metadata",
}

// UnmarshalJSON decodes the known fields and parks everything else in Extra.
func (t *Task) UnmarshalJSON(data []byte) error {
	type alias Task
	var a alias
	if err := jsonx.Unmarshal(data, &a); err != nil {
		return err
	}
	var raw map[string]jsonx.RawMessage
	if err := jsonx.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, key := range taskKnownKeys {
		delete(raw, key)
	}
	if len(raw) == 0 {
		raw = nil
	}
	a.Extra = raw
	*t = Task(a)
	return nil
}

// MarshalJSON folds Extra back into the document. Known fields win on key
// collision; key order follows the codec's map ordering when Extra is
// present.
func (t Task) MarshalJSON() ([]byte, error) {
	type alias Task
	data, err := jsonx.Marshal(alias(t))
	if err != nil || len(t.Extra) == 0 {
		return data, err
	}
	return mergeExtra(data, t.Extra)
}

// UnmarshalJSON decodes the known fields and parks everything else in Extra.
func (ts *Taskset) UnmarshalJSON(data []byte) error {
	type alias Taskset
	var a alias
	if err := jsonx.Unmarshal(data, &a); err != nil {
		return err
	}
	var raw map[string]jsonx.RawMessage
	if err := jsonx.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, key := range tasksetKnownKeys {
		delete(raw, key)
	}
	if len(raw) == 0 {
		raw = nil
	}
	a.Extra = raw
	*ts = Taskset(a)
	return nil
}

// MarshalJSON folds Extra back into the document.
func (ts Taskset) MarshalJSON() ([]byte, error) {
	type alias Taskset
	data, err := jsonx.Marshal(alias(ts))
	if err != nil || len(ts.Extra) == 0 {
		return data, err
	}
	return mergeExtra(data, ts.Extra)
}

func mergeExtra(known []byte, extra map[string]jsonx.RawMessage) ([]byte, error) {
	var merged map[string]jsonx.RawMessage
	if err := jsonx.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for key, value := range extra {
		if _, ok := merged[key]; !ok {
			merged[key] = value
		}
	}
	return jsonx.Marshal(merged)
}

// Find returns a pointer to the task with the given id, or nil.
func (ts *Taskset) Find(id string) *Task {
	for i := range ts.Tasks {
		if ts.Tasks[i].ID == id {
			return &ts.Tasks[i]
		}
	}
	return nil
}

// TaskIDs returns the ids of all tasks in document order.
func (ts *Taskset) TaskIDs() []string {
	ids := make([]string, len(ts.Tasks))
	for i := range ts.Tasks {
		ids[i] = ts.Tasks[i].ID
	}
	return ids
}

// Summarize counts tasks by state.
func (ts *Taskset) Summarize() Summary {
	s := Summary{Total: len(ts.Tasks), ByState: make(map[TaskState]int)}
	for i := range ts.Tasks {
		s.ByState[ts.Tasks[i].State]++
	}
	return s
}

// Clone returns a deep copy. Read paths hand clones to callers so the
// persisted document can never be mutated through a returned snapshot.
func (ts *Taskset) Clone() *Taskset {
	if ts == nil {
		return nil
	}
	out := *ts
	out.Metadata = cloneAnyMap(ts.Metadata)
	out.Extra = cloneRawMap(ts.Extra)
	if ts.Tasks != nil {
		out.Tasks = make([]Task, len(ts.Tasks))
		for i := range ts.Tasks {
			out.Tasks[i] = ts.Tasks[i].Clone()
		}
	}
	return &out
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() Task {
	out := *t
	if t.Dependencies != nil {
		out.Dependencies = append([]string(nil), t.Dependencies...)
	}
	if t.Artifacts != nil {
		out.Artifacts = make([]Artifact, len(t.Artifacts))
		for i, a := range t.Artifacts {
			a.Metadata = cloneAnyMap(a.Metadata)
			out.Artifacts[i] = a
		}
	}
	out.Extra = cloneRawMap(t.Extra)
	return out
}

// cloneAnyMap deep-copies JSON-shaped metadata (maps, slices, scalars).
func cloneAnyMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = cloneAnyValue(v)
	}
	return dst
}

func cloneAnyValue(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		return cloneAnyMap(vv)
	case []any:
		out := make([]any, len(vv))
		for i, item := range vv {
			out[i] = cloneAnyValue(item)
		}
		return out
	default:
		return v
	}
}

func cloneRawMap(src map[string]jsonx.RawMessage) map[string]jsonx.RawMessage {
	if src == nil {
		return nil
	}
	dst := make(map[string]jsonx.RawMessage, len(src))
	for k, v := range src {
		dst[k] = append(jsonx.RawMessage(nil), v...)
	}
	return dst
}

// Validate enforces the structural invariants a persisted document must
// hold: non-empty spec name, positive version, unique task ids, dependencies
// referencing known ids, recognized enum values.
func (ts *Taskset) Validate() error {
	if ts.SpecName == "" {
		return IntegrityError("spec_name is empty")
	}
	if ts.Version < 1 {
		return IntegrityError(fmt.Sprintf("spec %s: version %d is not positive", ts.SpecName, ts.Version))
	}
	ids := make(map[string]bool, len(ts.Tasks))
	for i := range ts.Tasks {
		task := &ts.Tasks[i]
		if task.ID == "" {
			return IntegrityError(fmt.Sprintf("spec %s: task %d has an empty id", ts.SpecName, i))
		}
		if ids[task.ID] {
			return IntegrityError(fmt.Sprintf("spec %s: duplicate task id %s", ts.SpecName, task.ID))
		}
		ids[task.ID] = true
		if !task.State.Valid() {
			return IntegrityError(fmt.Sprintf("spec %s: task %s has unknown state %q", ts.SpecName, task.ID, task.State))
		}
		for _, a := range task.Artifacts {
			if !a.Type.Valid() {
				return IntegrityError(fmt.Sprintf("spec %s: task %s has unknown artifact type %q", ts.SpecName, task.ID, a.Type))
			}
		}
	}
	for i := range ts.Tasks {
		task := &ts.Tasks[i]
		for _, dep := range task.Dependencies {
			if !ids[dep] {
				return IntegrityError(fmt.Sprintf("spec %s: task %s depends on unknown task %s", ts.SpecName, task.ID, dep))
			}
		}
	}
	return nil
}
