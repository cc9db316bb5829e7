package query

import (
	"testing"
	"time"

	"github.com/cuemby/task-registry/pkg/taskstore"
	"github.com/cuemby/task-registry/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func seedTaskset(t *testing.T, store *taskstore.Store) {
	t.Helper()
	backend := "backend"
	frontend := "frontend"
	now := time.Now().UTC()
	taskset := &types.Taskset{
		SpecName: "demo",
		Version:  1,
		Tasks: []*types.Task{
			{ID: "t1", Title: "one", State: types.TaskReady, Priority: 5, RequiredSkill: &backend, CreatedAt: now},
			{ID: "t2", Title: "two", State: types.TaskRunning, Priority: 1, RequiredSkill: &frontend, CreatedAt: now.Add(time.Minute)},
			{ID: "t3", Title: "three", State: types.TaskReady, Priority: 9, Dependencies: []string{"t1"}, CreatedAt: now.Add(2 * time.Minute)},
		},
	}
	require.NoError(t, store.Save(taskset))
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	store, err := taskstore.New(t.TempDir())
	require.NoError(t, err)
	seedTaskset(t, store)
	return NewEngine(store)
}

func TestFilterByState(t *testing.T) {
	e := newEngine(t)
	ready, err := e.FilterByState("demo", types.TaskReady)
	require.NoError(t, err)
	assert.Len(t, ready, 2)
}

func TestFilterByStateUnknownSpec(t *testing.T) {
	e := newEngine(t)
	ready, err := e.FilterByState("missing", types.TaskReady)
	require.NoError(t, err)
	assert.Empty(t, ready)
}

func TestFilterBySkill(t *testing.T) {
	e := newEngine(t)
	tasks, err := e.FilterBySkill("demo", "backend")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "t1", tasks[0].ID)
}

func TestSortByPriorityDescending(t *testing.T) {
	tasks := []*types.Task{{ID: "a", Priority: 1}, {ID: "b", Priority: 9}, {ID: "c", Priority: 5}}
	sorted := SortByPriority(tasks, true)
	assert.Equal(t, []string{"b", "c", "a"}, []string{sorted[0].ID, sorted[1].ID, sorted[2].ID})
}

func TestSortByPriorityAscending(t *testing.T) {
	tasks := []*types.Task{{ID: "a", Priority: 1}, {ID: "b", Priority: 9}}
	sorted := SortByPriority(tasks, false)
	assert.Equal(t, "a", sorted[0].ID)
}

func TestQueryWithFiltersSortAndLimit(t *testing.T) {
	e := newEngine(t)
	state := types.TaskReady
	limit := 1

	results, err := e.Run(Query{
		SpecName: "demo",
		Filters:  Filters{State: &state},
		SortBy:   SortByFieldPriority,
		Limit:    &limit,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "t3", results[0].ID)
}

func TestQueryHasDependenciesFilter(t *testing.T) {
	e := newEngine(t)
	hasDeps := true
	results, err := e.Run(Query{SpecName: "demo", Filters: Filters{HasDependencies: &hasDeps}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "t3", results[0].ID)
}

func TestQueryOffsetBeyondResultsReturnsEmpty(t *testing.T) {
	e := newEngine(t)
	results, err := e.Run(Query{SpecName: "demo", Offset: 100})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQueryUnknownSortFieldLeavesOrderUnchanged(t *testing.T) {
	e := newEngine(t)
	results, err := e.Run(Query{SpecName: "demo", SortBy: "not-a-real-field"})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2", "t3"}, []string{results[0].ID, results[1].ID, results[2].ID})
}

func TestQueryOnMissingSpecReturnsEmpty(t *testing.T) {
	e := newEngine(t)
	results, err := e.Run(Query{SpecName: "nope"})
	require.NoError(t, err)
	assert.Empty(t, results)
}
