package plansync

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cuemby/task-registry/pkg/taskstore"
	"github.com/cuemby/task-registry/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePlan = `# Implementation Plan

- [ ] 1. Set up project scaffolding
  - Create the module layout
  - No external dependencies

- [x] 2. Implement parser
  - Tokenize and parse the grammar

- [ ] 2.1 Add parser edge case tests
  - Covers empty input and trailing whitespace
  - _Requirements: 2_
`

func writePlan(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParsePlanExtractsTasks(t *testing.T) {
	path := writePlan(t, samplePlan)
	defs, err := ParsePlan(path)
	require.NoError(t, err)
	require.Len(t, defs, 3)

	assert.Equal(t, "1", defs[0].ID)
	assert.False(t, defs[0].IsCompleted)
	assert.Equal(t, "2", defs[1].ID)
	assert.True(t, defs[1].IsCompleted)
	assert.Equal(t, "2.1", defs[2].ID)
	assert.Equal(t, "2", defs[2].ParentID)
	assert.Equal(t, []string{"2"}, defs[2].Dependencies)
}

func TestParsePlanMissingFile(t *testing.T) {
	_, err := ParsePlan(filepath.Join(t.TempDir(), "missing.md"))
	require.Error(t, err)
}

func TestSyncFromPlanCreatesNewTaskset(t *testing.T) {
	store, err := taskstore.New(t.TempDir())
	require.NoError(t, err)
	syncer := NewSyncer(store)
	path := writePlan(t, samplePlan)

	result := syncer.SyncFromPlan("demo", path)
	require.True(t, result.Success, result.Errors)
	assert.Len(t, result.TasksAdded, 3)
	assert.Empty(t, result.TasksUpdated)
	assert.Empty(t, result.TasksRemoved)

	taskset, err := store.Load("demo")
	require.NoError(t, err)
	require.Len(t, taskset.Tasks, 3)

	done := taskset.TaskByID("2")
	require.NotNil(t, done)
	assert.Equal(t, types.TaskDone, done.State)

	ready := taskset.TaskByID("1")
	require.NotNil(t, ready)
	assert.Equal(t, types.TaskReady, ready.State)
	assert.Equal(t, path, taskset.Metadata["plan_path"])
}

func TestSyncFromPlanPreservesRunningState(t *testing.T) {
	store, err := taskstore.New(t.TempDir())
	require.NoError(t, err)
	syncer := NewSyncer(store)
	path := writePlan(t, samplePlan)

	require.True(t, syncer.SyncFromPlan("demo", path).Success)

	taskset, err := store.Load("demo")
	require.NoError(t, err)
	task1 := taskset.TaskByID("1")
	task1.State = types.TaskRunning
	require.NoError(t, store.Save(taskset))

	result := syncer.SyncFromPlan("demo", path)
	require.True(t, result.Success)

	taskset, err = store.Load("demo")
	require.NoError(t, err)
	assert.Equal(t, types.TaskRunning, taskset.TaskByID("1").State)
}

func TestSyncFromPlanInProgressBoxPromotesReadyToRunning(t *testing.T) {
	store, err := taskstore.New(t.TempDir())
	require.NoError(t, err)
	syncer := NewSyncer(store)
	path := writePlan(t, samplePlan)
	require.True(t, syncer.SyncFromPlan("demo", path).Success)

	inProgressPlan := strings.Replace(samplePlan, "- [ ] 1. Set up project scaffolding", "- [-] 1. Set up project scaffolding", 1)
	require.NoError(t, os.WriteFile(path, []byte(inProgressPlan), 0o644))

	result := syncer.SyncFromPlan("demo", path)
	require.True(t, result.Success)
	assert.Contains(t, result.TasksUpdated, "1")

	taskset, err := store.Load("demo")
	require.NoError(t, err)
	assert.Equal(t, types.TaskRunning, taskset.TaskByID("1").State)
}

func TestSyncFromPlanUncheckedBoxDoesNotRevertRunningOrBlocked(t *testing.T) {
	store, err := taskstore.New(t.TempDir())
	require.NoError(t, err)
	syncer := NewSyncer(store)
	path := writePlan(t, samplePlan)
	require.True(t, syncer.SyncFromPlan("demo", path).Success)

	taskset, err := store.Load("demo")
	require.NoError(t, err)
	taskset.TaskByID("1").State = types.TaskRunning
	require.NoError(t, store.Save(taskset))

	result := syncer.SyncFromPlan("demo", path)
	require.True(t, result.Success)

	taskset, err = store.Load("demo")
	require.NoError(t, err)
	assert.Equal(t, types.TaskRunning, taskset.TaskByID("1").State)
	assert.Equal(t, types.TaskBlocked, taskset.TaskByID("2.1").State)
}

func TestSyncFromPlanDetectsRemovedTasks(t *testing.T) {
	store, err := taskstore.New(t.TempDir())
	require.NoError(t, err)
	syncer := NewSyncer(store)
	path := writePlan(t, samplePlan)
	require.True(t, syncer.SyncFromPlan("demo", path).Success)

	shrunkPlan := `- [ ] 1. Set up project scaffolding
  - No external dependencies
`
	require.NoError(t, os.WriteFile(path, []byte(shrunkPlan), 0o644))

	result := syncer.SyncFromPlan("demo", path)
	require.True(t, result.Success)
	assert.ElementsMatch(t, []string{"2", "2.1"}, result.TasksRemoved)
}

func TestSyncFromPlanRejectsCycle(t *testing.T) {
	store, err := taskstore.New(t.TempDir())
	require.NoError(t, err)
	syncer := NewSyncer(store)

	cyclicPlan := `- [ ] 1. First
  - _Requirements: 2_

- [ ] 2. Second
  - _Requirements: 1_
`
	path := writePlan(t, cyclicPlan)
	result := syncer.SyncFromPlan("demo", path)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Errors)
}

func TestSyncToPlanUpdatesCheckboxesOnly(t *testing.T) {
	store, err := taskstore.New(t.TempDir())
	require.NoError(t, err)
	syncer := NewSyncer(store)
	path := writePlan(t, samplePlan)
	require.True(t, syncer.SyncFromPlan("demo", path).Success)

	taskset, err := store.Load("demo")
	require.NoError(t, err)
	taskset.TaskByID("1").State = types.TaskRunning
	require.NoError(t, store.Save(taskset))

	result := syncer.SyncToPlan("demo", path)
	require.True(t, result.Success)
	assert.Contains(t, result.TasksUpdated, "1")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "- [-] 1. Set up project scaffolding")
	assert.Contains(t, string(content), "Create the module layout")
}

func TestSyncResultString(t *testing.T) {
	r := SyncResult{Success: true, TasksAdded: []string{"1"}, TasksUpdated: []string{}, TasksRemoved: []string{}}
	s := r.String()
	assert.Contains(t, s, "Sync succeeded")
	assert.Contains(t, s, "Added: 1")
}

func TestCountTasks(t *testing.T) {
	path := writePlan(t, samplePlan)
	count, err := CountTasks(path)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestWatchDeliversInitialSync(t *testing.T) {
	store, err := taskstore.New(t.TempDir())
	require.NoError(t, err)
	syncer := NewSyncer(store)
	path := writePlan(t, samplePlan)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	results, err := syncer.Watch(ctx, "demo", path)
	require.NoError(t, err)

	select {
	case result := <-results:
		assert.True(t, result.Success)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial sync result")
	}
}
