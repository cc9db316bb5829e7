package query

import (
	"errors"
	"sort"

	"github.com/cuemby/task-registry/pkg/registryerr"
	"github.com/cuemby/task-registry/pkg/taskstore"
	"github.com/cuemby/task-registry/pkg/types"
)

// Engine answers read-only questions about a taskset's tasks: filtering,
// sorting, and paginated compound queries. It always loads fresh from
// its Store rather than caching, so results reflect whatever the most
// recent writer committed.
type Engine struct {
	store *taskstore.Store
}

// NewEngine creates an Engine backed by store.
func NewEngine(store *taskstore.Store) *Engine {
	return &Engine{store: store}
}

// FilterByState returns every task in specName's taskset whose State
// equals state. A missing taskset yields an empty slice, not an error.
func (e *Engine) FilterByState(specName string, state types.TaskState) ([]*types.Task, error) {
	taskset, err := e.load(specName)
	if err != nil {
		return nil, err
	}
	if taskset == nil {
		return []*types.Task{}, nil
	}

	var out []*types.Task
	for _, t := range taskset.Tasks {
		if t.State == state {
			out = append(out, t)
		}
	}
	return out, nil
}

// FilterBySkill returns every task in specName's taskset whose
// RequiredSkill equals requiredSkill.
func (e *Engine) FilterBySkill(specName, requiredSkill string) ([]*types.Task, error) {
	taskset, err := e.load(specName)
	if err != nil {
		return nil, err
	}
	if taskset == nil {
		return []*types.Task{}, nil
	}

	var out []*types.Task
	for _, t := range taskset.Tasks {
		if t.RequiredSkill != nil && *t.RequiredSkill == requiredSkill {
			out = append(out, t)
		}
	}
	return out, nil
}

// SortByPriority returns a new slice of tasks ordered by Priority.
// descending sorts highest priority first.
func SortByPriority(tasks []*types.Task, descending bool) []*types.Task {
	sorted := append([]*types.Task(nil), tasks...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if descending {
			return sorted[i].Priority > sorted[j].Priority
		}
		return sorted[i].Priority < sorted[j].Priority
	})
	return sorted
}

// Filters holds the optional predicates a Query call applies. Any field
// left at its zero value and not present in the set explicitly is not
// applied; use the pointer fields to distinguish "not set" from "set to
// the zero value."
type Filters struct {
	State           *types.TaskState
	RequiredSkill   *string
	IsOptional      *bool
	HasDependencies *bool
	RunnerID        *string
	AssignedSlot    *string
}

// SortField selects the field Query sorts by.
type SortField string

const (
	SortByFieldPriority  SortField = "priority"
	SortByFieldCreatedAt SortField = "created_at"
	SortByFieldUpdatedAt SortField = "updated_at"
	SortByFieldID        SortField = "id"
)

// Query is a compound read: filters, then sort, then offset/limit
// pagination. SortBy being empty (or unrecognized) leaves task order as
// loaded. A missing taskset yields an empty slice, not an error.
type Query struct {
	SpecName string
	Filters  Filters
	SortBy   SortField
	Limit    *int
	Offset   int
}

// Run executes q against the engine's store.
func (e *Engine) Run(q Query) ([]*types.Task, error) {
	taskset, err := e.load(q.SpecName)
	if err != nil {
		return nil, err
	}
	if taskset == nil {
		return []*types.Task{}, nil
	}

	results := append([]*types.Task(nil), taskset.Tasks...)
	results = applyFilters(results, q.Filters)
	results = applySorting(results, q.SortBy)

	if q.Offset > 0 {
		if q.Offset >= len(results) {
			return []*types.Task{}, nil
		}
		results = results[q.Offset:]
	}
	if q.Limit != nil && *q.Limit < len(results) {
		results = results[:*q.Limit]
	}
	return results, nil
}

func applyFilters(tasks []*types.Task, f Filters) []*types.Task {
	out := tasks
	if f.State != nil {
		out = filter(out, func(t *types.Task) bool { return t.State == *f.State })
	}
	if f.RequiredSkill != nil {
		out = filter(out, func(t *types.Task) bool {
			return t.RequiredSkill != nil && *t.RequiredSkill == *f.RequiredSkill
		})
	}
	if f.IsOptional != nil {
		out = filter(out, func(t *types.Task) bool { return t.IsOptional == *f.IsOptional })
	}
	if f.HasDependencies != nil {
		out = filter(out, func(t *types.Task) bool {
			return (len(t.Dependencies) > 0) == *f.HasDependencies
		})
	}
	if f.RunnerID != nil {
		out = filter(out, func(t *types.Task) bool {
			return t.RunnerID != nil && *t.RunnerID == *f.RunnerID
		})
	}
	if f.AssignedSlot != nil {
		out = filter(out, func(t *types.Task) bool {
			return t.AssignedSlot != nil && *t.AssignedSlot == *f.AssignedSlot
		})
	}
	return out
}

func filter(tasks []*types.Task, keep func(*types.Task) bool) []*types.Task {
	var out []*types.Task
	for _, t := range tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

func applySorting(tasks []*types.Task, field SortField) []*types.Task {
	sorted := append([]*types.Task(nil), tasks...)
	switch field {
	case SortByFieldPriority:
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })
	case SortByFieldCreatedAt:
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })
	case SortByFieldUpdatedAt:
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].UpdatedAt.Before(sorted[j].UpdatedAt) })
	case SortByFieldID:
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	default:
		// Unknown or empty sort field: leave order as-is, matching the
		// tolerant behavior of the rest of the query surface.
	}
	return sorted
}

func (e *Engine) load(specName string) (*types.Taskset, error) {
	taskset, err := e.store.Load(specName)
	if err != nil {
		var notFound *registryerr.TasksetNotFoundError
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, err
	}
	return taskset, nil
}
