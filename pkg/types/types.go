package types

import (
	"encoding/json"
	"time"
)

// TaskState is the closed set of states a Task may occupy.
type TaskState string

const (
	TaskReady   TaskState = "ready"
	TaskRunning TaskState = "running"
	TaskBlocked TaskState = "blocked"
	TaskDone    TaskState = "done"
	TaskFailed  TaskState = "failed"
)

// Valid reports whether s is one of the five defined task states.
func (s TaskState) Valid() bool {
	switch s {
	case TaskReady, TaskRunning, TaskBlocked, TaskDone, TaskFailed:
		return true
	default:
		return false
	}
}

// ArtifactType is the closed set of artifact kinds a task may produce.
type ArtifactType string

const (
	ArtifactDiff   ArtifactType = "diff"
	ArtifactLog    ArtifactType = "log"
	ArtifactReport ArtifactType = "report"
	ArtifactOther  ArtifactType = "other"
)

// EventType is the closed set of events the registry emits.
type EventType string

const (
	EventTaskCreated    EventType = "TaskCreated"
	EventTaskReady      EventType = "TaskReady"
	EventTaskAssigned   EventType = "TaskAssigned"
	EventRunnerStarted  EventType = "RunnerStarted"
	EventRunnerFinished EventType = "RunnerFinished"
	EventTaskCompleted  EventType = "TaskCompleted"
	EventTaskFailed     EventType = "TaskFailed"
	EventTaskUpdated    EventType = "TaskUpdated"
)

// Artifact is a reference to a produced file; the blob itself lives outside
// the registry and is addressed only by URI.
type Artifact struct {
	Type      ArtifactType           `json:"type"`
	URI       string                 `json:"uri"`
	SizeBytes *int64                 `json:"size_bytes,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Task is one unit of work inside a Taskset.
type Task struct {
	ID              string                 `json:"id"`
	Title           string                 `json:"title"`
	Description     string                 `json:"description"`
	State           TaskState              `json:"state"`
	Dependencies    []string               `json:"dependencies"`
	IsOptional      bool                   `json:"is_optional"`
	Priority        int                    `json:"priority"`
	RequiredSkill   *string                `json:"required_skill,omitempty"`
	AssignedSlot    *string                `json:"assigned_slot,omitempty"`
	ReservedBranch  *string                `json:"reserved_branch,omitempty"`
	RunnerID        *string                `json:"runner_id,omitempty"`
	Artifacts       []Artifact             `json:"artifacts"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`

	// Extra preserves fields this version of the type does not recognize,
	// so a round trip through Save/Load never drops data written by a
	// newer schema.
	Extra map[string]json.RawMessage `json:"-"`
}

// taskKnownFields must be kept in sync with the json tags above; it drives
// the unknown-field split in UnmarshalJSON/MarshalJSON.
var taskKnownFields = map[string]bool{
	"id": true, "title": true, "description": true, "state": true,
	"dependencies": true, "is_optional": true, "priority": true,
	"required_skill": true, "assigned_slot": true, "reserved_branch": true,
	"runner_id": true, "artifacts": true, "created_at": true,
	"updated_at": true, "metadata": true,
}

// MarshalJSON emits the known fields plus any preserved unknown ones.
func (t Task) MarshalJSON() ([]byte, error) {
	type alias Task
	known, err := json.Marshal(alias(t))
	if err != nil {
		return nil, err
	}
	return mergeExtra(known, t.Extra)
}

// UnmarshalJSON decodes the known fields and stashes everything else in Extra.
func (t *Task) UnmarshalJSON(data []byte) error {
	type alias Task
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*t = Task(a)
	extra, err := splitExtra(data, taskKnownFields)
	if err != nil {
		return err
	}
	t.Extra = extra
	return nil
}

// Taskset is the unit of persistence: an ordered collection of tasks derived
// from a plan document, identified by a stable spec name.
type Taskset struct {
	SpecName  string                 `json:"spec_name"`
	Version   int                    `json:"version"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
	Tasks     []*Task                `json:"tasks"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var tasksetKnownFields = map[string]bool{
	"spec_name": true, "version": true, "created_at": true,
	"updated_at": true, "tasks": true, "metadata": true,
}

func (ts Taskset) MarshalJSON() ([]byte, error) {
	type alias Taskset
	known, err := json.Marshal(alias(ts))
	if err != nil {
		return nil, err
	}
	return mergeExtra(known, ts.Extra)
}

func (ts *Taskset) UnmarshalJSON(data []byte) error {
	type alias Taskset
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*ts = Taskset(a)
	extra, err := splitExtra(data, tasksetKnownFields)
	if err != nil {
		return err
	}
	ts.Extra = extra
	return nil
}

// TaskByID returns the task with the given id, or nil if absent.
func (ts *Taskset) TaskByID(id string) *Task {
	for _, t := range ts.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// TaskEvent is an immutable historical record of a state transition or
// significant side effect. Events are never mutated or deleted.
type TaskEvent struct {
	EventType EventType              `json:"event_type"`
	SpecName  string                 `json:"spec_name"`
	TaskID    string                 `json:"task_id"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// ToJSONL renders the event as a single JSON line (without the trailing
// newline; callers append it).
func (e TaskEvent) ToJSONL() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EventFromJSONL parses one JSONL line back into a TaskEvent.
func EventFromJSONL(line string) (TaskEvent, error) {
	var e TaskEvent
	if err := json.Unmarshal([]byte(line), &e); err != nil {
		return TaskEvent{}, err
	}
	return e, nil
}

// mergeExtra merges the extra raw-message fields into an already-marshaled
// JSON object, without re-marshaling the known fields.
func mergeExtra(known []byte, extra map[string]json.RawMessage) ([]byte, error) {
	if len(extra) == 0 {
		return known, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(known, &m); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, exists := m[k]; !exists {
			m[k] = v
		}
	}
	return json.Marshal(m)
}

// splitExtra returns the fields of the raw object not present in known.
func splitExtra(data []byte, knownFields map[string]bool) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	extra := make(map[string]json.RawMessage)
	for k, v := range all {
		if !knownFields[k] {
			extra[k] = v
		}
	}
	if len(extra) == 0 {
		return nil, nil
	}
	return extra, nil
}
