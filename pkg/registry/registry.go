/*
Package registry is the top-level API of the task registry: it composes
locking, persistence, eventing, querying, graph export, and plan
synchronization into the operations a caller actually uses — create a
taskset, move a task through its state machine, list what is ready to run,
attach an artifact, reconcile with a plan document, export the dependency
graph.

Every mutating method acquires the per-spec lock for the duration of its
read-modify-write cycle; every read method goes straight to disk through the
store, relying on Save's atomic rename for a consistent view without a lock.
*/
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/task-registry/pkg/config"
	"github.com/cuemby/task-registry/pkg/eventstore"
	"github.com/cuemby/task-registry/pkg/graph"
	"github.com/cuemby/task-registry/pkg/lock"
	"github.com/cuemby/task-registry/pkg/log"
	"github.com/cuemby/task-registry/pkg/metrics"
	"github.com/cuemby/task-registry/pkg/plansync"
	"github.com/cuemby/task-registry/pkg/query"
	"github.com/cuemby/task-registry/pkg/registryerr"
	"github.com/cuemby/task-registry/pkg/taskstore"
	"github.com/cuemby/task-registry/pkg/types"
)

// Registry is the composed facade over the registry's sub-packages. Callers
// construct exactly one per registry directory; it is safe for concurrent
// use from multiple goroutines, and the per-spec lock file makes it safe
// across multiple processes too.
type Registry struct {
	cfg     config.Config
	locks   *lock.Manager
	store   *taskstore.Store
	events  *eventstore.Store
	broker  *eventstore.Broker
	queries *query.Engine
	sync    *plansync.Syncer
}

// New builds a Registry rooted at cfg.RegistryDir, creating its directory
// tree if absent.
func New(cfg config.Config) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	locks, err := lock.NewManager(cfg.LocksDir())
	if err != nil {
		return nil, err
	}
	store, err := taskstore.New(cfg.TasksetsDir())
	if err != nil {
		return nil, err
	}
	events, err := eventstore.New(cfg.EventsDir())
	if err != nil {
		return nil, err
	}

	return &Registry{
		cfg:     cfg,
		locks:   locks,
		store:   store,
		events:  events,
		broker:  eventstore.NewBroker(),
		queries: query.NewEngine(store),
		sync:    plansync.NewSyncer(store),
	}, nil
}

// Events returns the registry's in-process event broker, so a caller can
// Subscribe to live task state changes as they are published.
func (r *Registry) Events() *eventstore.Broker { return r.broker }

func (r *Registry) lockTimeout() time.Duration {
	return time.Duration(r.cfg.LockTimeout * float64(time.Second))
}

func (r *Registry) lockRetryInterval() time.Duration {
	return time.Duration(r.cfg.LockRetryInterval * float64(time.Second))
}

func (r *Registry) withLock(ctx context.Context, specName string, fn func() error) error {
	handle, err := r.locks.Acquire(ctx, specName, r.lockTimeout(), r.lockRetryInterval())
	if err != nil {
		return err
	}
	defer handle.Release()
	return fn()
}

// CreateTaskset creates a new taskset from a list of task definitions,
// deriving each task's initial state from its completion flag and
// dependencies (BLOCKED if it has unmet dependencies, READY otherwise, DONE
// if already marked complete). If a taskset already exists for specName its
// version is incremented rather than reset.
func (r *Registry) CreateTaskset(ctx context.Context, specName string, defs []plansync.TaskDefinition, metadata map[string]interface{}) (*types.Taskset, error) {
	var result *types.Taskset
	err := r.withLock(ctx, specName, func() error {
		version := 1
		if r.store.Exists(specName) {
			existing, err := r.store.Load(specName)
			if err != nil {
				return err
			}
			version = existing.Version + 1
		}

		completed := make(map[string]bool, len(defs))
		for _, def := range defs {
			if def.IsCompleted {
				completed[def.ID] = true
			}
		}

		now := time.Now().UTC()
		tasks := make([]*types.Task, 0, len(defs))
		for _, def := range defs {
			state := types.TaskReady
			for _, dep := range def.Dependencies {
				if !completed[dep] {
					state = types.TaskBlocked
					break
				}
			}
			if def.IsCompleted {
				state = types.TaskDone
			}
			tasks = append(tasks, &types.Task{
				ID:           def.ID,
				Title:        def.Title,
				Description:  def.Description,
				State:        state,
				Dependencies: def.Dependencies,
				IsOptional:   def.IsOptional,
				Artifacts:    []types.Artifact{},
				CreatedAt:    now,
				UpdatedAt:    now,
			})
		}

		if metadata == nil {
			metadata = map[string]interface{}{}
		}
		taskset := &types.Taskset{
			SpecName:  specName,
			Version:   version,
			CreatedAt: now,
			UpdatedAt: now,
			Tasks:     tasks,
			Metadata:  metadata,
		}

		if err := graph.DetectCycle(taskset); err != nil {
			return err
		}
		if err := r.store.Save(taskset); err != nil {
			return err
		}

		for _, task := range tasks {
			r.recordAndPublish(specName, task.ID, types.EventTaskCreated, map[string]interface{}{
				"title": task.Title,
				"state": string(task.State),
			})
		}

		result = taskset
		return nil
	})
	return result, err
}

// GetTaskset returns the taskset for specName.
func (r *Registry) GetTaskset(specName string) (*types.Taskset, error) {
	return r.store.Load(specName)
}

// ListTasksets returns the spec names of every taskset currently stored.
func (r *Registry) ListTasksets() ([]string, error) {
	return r.store.List()
}

// validTransitions is the state transition table: old state -> set of
// states a caller may move a task into from there. A transition to the
// task's current state is always allowed and is a no-op.
var validTransitions = map[types.TaskState]map[types.TaskState]bool{
	types.TaskReady:   {types.TaskRunning: true, types.TaskBlocked: true, types.TaskDone: true},
	types.TaskRunning: {types.TaskDone: true, types.TaskFailed: true, types.TaskReady: true},
	types.TaskBlocked: {types.TaskReady: true, types.TaskRunning: true},
	types.TaskDone:    {types.TaskReady: true},
	types.TaskFailed:  {types.TaskReady: true, types.TaskRunning: true},
}

func validateTransition(task *types.Task, newState types.TaskState) error {
	if task.State == newState {
		return nil
	}
	if validTransitions[task.State][newState] {
		return nil
	}
	return &registryerr.InvalidStateTransitionError{
		TaskID:    task.ID,
		FromState: string(task.State),
		ToState:   string(newState),
	}
}

var eventTypeForState = map[types.TaskState]types.EventType{
	types.TaskReady:   types.EventTaskReady,
	types.TaskRunning: types.EventTaskAssigned,
	types.TaskDone:    types.EventTaskCompleted,
	types.TaskFailed:  types.EventTaskFailed,
}

// UpdateTaskState moves task taskID into newState, validating the
// transition against the registry's state machine. Moving to RUNNING
// records assigned_slot/reserved_branch/runner_id out of metadata when
// present; moving to DONE cascades to unblock any dependent task whose
// other dependencies are all already DONE.
func (r *Registry) UpdateTaskState(ctx context.Context, specName, taskID string, newState types.TaskState, metadata map[string]interface{}) error {
	return r.withLock(ctx, specName, func() error {
		taskset, err := r.store.Load(specName)
		if err != nil {
			return err
		}
		task := taskset.TaskByID(taskID)
		if task == nil {
			return &registryerr.TaskNotFoundError{TaskID: taskID, SpecName: specName}
		}

		oldState := task.State
		if err := validateTransition(task, newState); err != nil {
			return err
		}

		task.State = newState
		task.UpdatedAt = time.Now().UTC()

		if newState == types.TaskRunning && metadata != nil {
			if v, ok := metadata["assigned_slot"].(string); ok {
				task.AssignedSlot = &v
			}
			if v, ok := metadata["reserved_branch"].(string); ok {
				task.ReservedBranch = &v
			}
			if v, ok := metadata["runner_id"].(string); ok {
				task.RunnerID = &v
			}
		}

		var unblocked []string
		if newState == types.TaskDone {
			unblocked = unblockDependents(taskset, taskID)
		}

		taskset.Version++
		taskset.UpdatedAt = time.Now().UTC()

		if err := r.store.Save(taskset); err != nil {
			return err
		}

		details := map[string]interface{}{
			"old_state": string(oldState),
			"new_state": string(newState),
		}
		for k, v := range metadata {
			details[k] = v
		}
		eventType, ok := eventTypeForState[newState]
		if !ok {
			eventType = types.EventTaskUpdated
		}
		r.recordAndPublish(specName, taskID, eventType, details)

		for _, dependentID := range unblocked {
			r.recordAndPublish(specName, dependentID, types.EventTaskReady, map[string]interface{}{
				"old_state":    string(types.TaskBlocked),
				"new_state":    string(types.TaskReady),
				"unblocked_by": taskID,
			})
		}
		return nil
	})
}

// unblockDependents moves every BLOCKED task in taskset whose dependencies
// are now all DONE into READY, following completedTaskID's completion, and
// returns the ids of the tasks it unblocked so the caller can emit one
// TaskReady event per newly-ready task.
func unblockDependents(taskset *types.Taskset, completedTaskID string) []string {
	now := time.Now().UTC()
	var unblocked []string
	for _, task := range taskset.Tasks {
		if task.State != types.TaskBlocked {
			continue
		}
		if !containsString(task.Dependencies, completedTaskID) {
			continue
		}
		if allDependenciesDone(taskset, task.Dependencies) {
			task.State = types.TaskReady
			task.UpdatedAt = now
			unblocked = append(unblocked, task.ID)
		}
	}
	return unblocked
}

func allDependenciesDone(taskset *types.Taskset, dependencies []string) bool {
	for _, depID := range dependencies {
		dep := taskset.TaskByID(depID)
		if dep == nil || dep.State != types.TaskDone {
			return false
		}
	}
	return true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// GetReadyTasks returns every READY task in specName, optionally filtered
// to a single required skill, ordered with the least-blocked tasks (fewest
// dependencies) first.
func (r *Registry) GetReadyTasks(specName string, requiredSkill string) ([]*types.Task, error) {
	ready, err := r.queries.FilterByState(specName, types.TaskReady)
	if err != nil {
		return nil, err
	}
	if requiredSkill != "" {
		filtered := make([]*types.Task, 0, len(ready))
		for _, task := range ready {
			if task.RequiredSkill != nil && *task.RequiredSkill == requiredSkill {
				filtered = append(filtered, task)
			}
		}
		ready = filtered
	}
	sortByDependencyCount(ready)
	return ready, nil
}

func sortByDependencyCount(tasks []*types.Task) {
	for i := 1; i < len(tasks); i++ {
		for j := i; j > 0 && len(tasks[j].Dependencies) < len(tasks[j-1].Dependencies); j-- {
			tasks[j], tasks[j-1] = tasks[j-1], tasks[j]
		}
	}
}

// Query runs an arbitrary filter/sort/page request through the query
// engine.
func (r *Registry) Query(q query.Query) ([]*types.Task, error) {
	return r.queries.Run(q)
}

// AddArtifact appends an artifact reference to taskID's artifact list.
func (r *Registry) AddArtifact(ctx context.Context, specName, taskID string, artifactType types.ArtifactType, uri string, metadata map[string]interface{}) error {
	return r.withLock(ctx, specName, func() error {
		taskset, err := r.store.Load(specName)
		if err != nil {
			return err
		}
		task := taskset.TaskByID(taskID)
		if task == nil {
			return &registryerr.TaskNotFoundError{TaskID: taskID, SpecName: specName}
		}

		now := time.Now().UTC()
		artifact := types.Artifact{
			Type:      artifactType,
			URI:       uri,
			CreatedAt: now,
			Metadata:  metadata,
		}
		if metadata != nil {
			if sizeBytes, ok := metadata["size_bytes"].(int64); ok {
				artifact.SizeBytes = &sizeBytes
			}
		}

		task.Artifacts = append(task.Artifacts, artifact)
		task.UpdatedAt = now
		taskset.Version++
		taskset.UpdatedAt = now

		if err := r.store.Save(taskset); err != nil {
			return err
		}

		r.recordAndPublish(specName, taskID, types.EventTaskUpdated, map[string]interface{}{
			"action":        "artifact_added",
			"artifact_type": string(artifactType),
			"uri":           uri,
		})
		return nil
	})
}

// SyncWithPlan reconciles specName's taskset with the plan document at
// planPath, under the spec's lock.
func (r *Registry) SyncWithPlan(ctx context.Context, specName, planPath string) (result plansync.SyncResult, err error) {
	err = r.withLock(ctx, specName, func() error {
		result = r.sync.SyncFromPlan(specName, planPath)
		return nil
	})
	return result, err
}

// SyncPlanCheckboxes writes specName's current task states back to
// planPath's checkboxes, under the spec's lock.
func (r *Registry) SyncPlanCheckboxes(ctx context.Context, specName, planPath string) (result plansync.SyncResult, err error) {
	err = r.withLock(ctx, specName, func() error {
		result = r.sync.SyncToPlan(specName, planPath)
		return nil
	})
	return result, err
}

// WatchPlan wraps plansync.Syncer.Watch so a caller does not need direct
// access to the sub-package to keep a taskset reconciled with a live plan
// document.
func (r *Registry) WatchPlan(ctx context.Context, specName, planPath string) (<-chan plansync.SyncResult, error) {
	return r.sync.Watch(ctx, specName, planPath)
}

// ExportGraphDot renders specName's dependency graph as Graphviz DOT.
func (r *Registry) ExportGraphDot(specName string) (string, error) {
	taskset, err := r.store.Load(specName)
	if err != nil {
		return "", err
	}
	return graph.ToDot(taskset), nil
}

// ExportGraphMermaid renders specName's dependency graph as a Mermaid
// flowchart.
func (r *Registry) ExportGraphMermaid(specName string) (string, error) {
	taskset, err := r.store.Load(specName)
	if err != nil {
		return "", err
	}
	return graph.ToMermaid(taskset), nil
}

// ExecutionOrder returns specName's tasks grouped into dependency-ordered
// levels suitable for wave-by-wave parallel execution.
func (r *Registry) ExecutionOrder(specName string) ([][]string, error) {
	taskset, err := r.store.Load(specName)
	if err != nil {
		return nil, err
	}
	return graph.ExecutionOrder(taskset), nil
}

// EventHistory returns the full event history for specName.
func (r *Registry) EventHistory(specName string) ([]types.TaskEvent, error) {
	return r.events.GetAll(specName)
}

// TaskEventHistory returns the event history for a single task within
// specName.
func (r *Registry) TaskEventHistory(specName, taskID string) ([]types.TaskEvent, error) {
	return r.events.GetByTask(specName, taskID)
}

// Backup writes a timestamped snapshot of specName's taskset to the
// registry's configured backups directory.
func (r *Registry) Backup(specName string) (string, error) {
	if !r.cfg.BackupEnabled {
		return "", fmt.Errorf("registry: backups are disabled in this configuration")
	}
	return r.store.Backup(specName, r.cfg.BackupsDir())
}

// Restore loads a backup file written by Backup and installs it as the
// current taskset for its spec name.
func (r *Registry) Restore(backupPath string) (string, error) {
	return r.store.Restore(backupPath)
}

// RotateEventLogs rotates any spec's event log that has reached the
// registry's configured size threshold.
func (r *Registry) RotateEventLogs() error {
	return r.events.Rotate(r.cfg.EventLogMaxSizeMB)
}

func (r *Registry) recordAndPublish(specName, taskID string, eventType types.EventType, details map[string]interface{}) {
	event := types.TaskEvent{
		EventType: eventType,
		SpecName:  specName,
		TaskID:    taskID,
		Timestamp: time.Now().UTC(),
		Details:   details,
	}
	eventLog := log.WithSpecName(specName)
	if err := r.events.Record(event); err != nil {
		eventLog.Error().Err(err).Str("task_id", taskID).Msg("failed to record event")
	}
	metrics.MutationsTotal.WithLabelValues(string(eventType)).Inc()
	r.broker.Publish(event)
}
