package graph

import (
	"testing"

	"github.com/cuemby/task-registry/pkg/registryerr"
	"github.com/cuemby/task-registry/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func taskset(tasks ...*types.Task) *types.Taskset {
	return &types.Taskset{SpecName: "s", Tasks: tasks}
}

func task(id string, deps ...string) *types.Task {
	return &types.Task{ID: id, Title: id, State: types.TaskReady, Dependencies: deps}
}

func TestDetectCycleOnDAGReturnsNil(t *testing.T) {
	ts := taskset(task("a"), task("b", "a"), task("c", "a", "b"))
	assert.NoError(t, DetectCycle(ts))
}

func TestDetectCycleFindsCycle(t *testing.T) {
	ts := taskset(task("a", "c"), task("b", "a"), task("c", "b"))
	err := DetectCycle(ts)
	require.Error(t, err)
	var cycleErr *registryerr.CircularDependencyError
	require.ErrorAs(t, err, &cycleErr)
	assert.GreaterOrEqual(t, len(cycleErr.Chain), 3)
}

func TestDetectCycleOnSelfDependency(t *testing.T) {
	ts := taskset(task("a", "a"))
	err := DetectCycle(ts)
	require.Error(t, err)
	assert.ErrorIs(t, err, registryerr.ErrCircularDependency)
}

func TestExecutionOrderLevelsDAG(t *testing.T) {
	ts := taskset(task("a"), task("b", "a"), task("c", "a"), task("d", "b", "c"))
	order := ExecutionOrder(ts)

	require.Len(t, order, 3)
	assert.Equal(t, []string{"a"}, order[0])
	assert.Equal(t, []string{"b", "c"}, order[1])
	assert.Equal(t, []string{"d"}, order[2])
}

func TestExecutionOrderEmitsResidueOnCycle(t *testing.T) {
	ts := taskset(task("a"), task("b", "c"), task("c", "b"))
	order := ExecutionOrder(ts)

	require.Len(t, order, 2)
	assert.Equal(t, []string{"a"}, order[0])
	assert.ElementsMatch(t, []string{"b", "c"}, order[1])
}

func TestExecutionOrderEmptyTaskset(t *testing.T) {
	ts := taskset()
	assert.Empty(t, ExecutionOrder(ts))
}

func TestToDotIncludesNodesAndEdges(t *testing.T) {
	ts := taskset(task("a"), task("b", "a"))
	dot := ToDot(ts)

	assert.Contains(t, dot, "digraph TaskDependencies")
	assert.Contains(t, dot, `"a" [label="a: a"`)
	assert.Contains(t, dot, `"a" -> "b"`)
}

func TestToDotEscapesQuotesInTitle(t *testing.T) {
	tk := task("a")
	tk.Title = `say "hi"`
	dot := ToDot(taskset(tk))
	assert.Contains(t, dot, `say \"hi\"`)
}

func TestToDotMarksOptionalDashed(t *testing.T) {
	tk := task("a")
	tk.IsOptional = true
	dot := ToDot(taskset(tk))
	assert.Contains(t, dot, `style="dashed,rounded"`)
}

func TestToMermaidSanitizesIDs(t *testing.T) {
	ts := taskset(task("task-1.2"), task("task-3", "task-1.2"))
	mermaid := ToMermaid(ts)

	assert.Contains(t, mermaid, "task_task_1_2")
	assert.Contains(t, mermaid, "graph TD")
	assert.Contains(t, mermaid, "classDef optional")
}

func TestToMermaidOptionalClass(t *testing.T) {
	tk := task("a")
	tk.IsOptional = true
	mermaid := ToMermaid(taskset(tk))
	assert.Contains(t, mermaid, "class task_a optional")
}
