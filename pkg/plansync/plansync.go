package plansync

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/cuemby/task-registry/pkg/graph"
	"github.com/cuemby/task-registry/pkg/log"
	"github.com/cuemby/task-registry/pkg/metrics"
	"github.com/cuemby/task-registry/pkg/registryerr"
	"github.com/cuemby/task-registry/pkg/taskstore"
	"github.com/cuemby/task-registry/pkg/types"
)

// taskLinePattern matches a markdown task checkbox line:
//
//	- [ ] 1. Title
//	  - [x]* 2.1. Optional subtask title
//
// Capture groups: indent, checkbox mark, optional "*", dotted id, title.
var taskLinePattern = regexp.MustCompile(`^(\s*)- \[([ x\-])\](\*)?\s+(\d+(?:\.\d+)*)\.?\s+(.+)$`)

// requirementsPattern matches an "_Requirements: 1.1, 2.3_" annotation line.
var requirementsPattern = regexp.MustCompile(`(?i)_Requirements?:\s*([\d.,\s]+)_`)

// TaskDefinition is one task extracted from a plan document.
type TaskDefinition struct {
	ID           string
	Title        string
	Description  string
	IsOptional   bool
	IsCompleted  bool
	IsInProgress bool
	Dependencies []string
	ParentID     string
	LineNumber   int
}

// SyncResult reports what SyncFromPlan or SyncToPlan changed.
type SyncResult struct {
	Success      bool
	TasksAdded   []string
	TasksUpdated []string
	TasksRemoved []string
	Errors       []string
}

// String renders a human-readable summary, matching the format an
// operator sees in sync command output.
func (r SyncResult) String() string {
	var b strings.Builder
	status := "succeeded"
	if !r.Success {
		status = "failed"
	}
	fmt.Fprintf(&b, "Sync %s\n", status)
	fmt.Fprintf(&b, "  Added: %d\n", len(r.TasksAdded))
	fmt.Fprintf(&b, "  Updated: %d\n", len(r.TasksUpdated))
	fmt.Fprintf(&b, "  Removed: %d", len(r.TasksRemoved))
	if len(r.Errors) > 0 {
		fmt.Fprintf(&b, "\n  Errors: %d", len(r.Errors))
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "\n    - %s", e)
		}
	}
	return b.String()
}

// Syncer reconciles a taskset with a markdown plan document.
type Syncer struct {
	store *taskstore.Store
}

// NewSyncer creates a Syncer backed by store.
func NewSyncer(store *taskstore.Store) *Syncer {
	return &Syncer{store: store}
}

// ParsePlan reads and parses the task checkbox grammar out of the plan
// document at path.
func ParsePlan(path string) ([]TaskDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &registryerr.SyncError{Message: fmt.Sprintf("plan document not found: %s", path)}
		}
		return nil, &registryerr.SyncError{Message: fmt.Sprintf("reading plan document: %v", err)}
	}
	return parseContent(string(data)), nil
}

func parseContent(content string) []TaskDefinition {
	lines := strings.Split(content, "\n")
	var defs []TaskDefinition

	for i := 0; i < len(lines); i++ {
		match := taskLinePattern.FindStringSubmatch(lines[i])
		if match == nil {
			continue
		}

		checkbox, optionalMark, taskID, title := match[2], match[3], match[4], match[5]

		parentID := findParentTask(defs, taskID)

		var descriptionLines []string
		var dependencies []string

		for j := i + 1; j < len(lines); j++ {
			descLine := lines[j]
			if taskLinePattern.MatchString(descLine) {
				break
			}
			stripped := strings.TrimSpace(descLine)
			if stripped == "" {
				continue
			}
			if strings.HasPrefix(stripped, "-") && !strings.HasPrefix(stripped, "- [") {
				descriptionLines = append(descriptionLines, strings.TrimSpace(stripped[1:]))
				if reqMatch := requirementsPattern.FindStringSubmatch(stripped); reqMatch != nil {
					dependencies = parseDependencies(reqMatch[1])
				}
			}
		}

		description := strings.TrimSpace(title)
		if len(descriptionLines) > 0 {
			description = strings.Join(descriptionLines, "\n")
		}

		defs = append(defs, TaskDefinition{
			ID:           taskID,
			Title:        strings.TrimSpace(title),
			Description:  description,
			IsOptional:   optionalMark == "*",
			IsCompleted:  strings.EqualFold(checkbox, "x"),
			IsInProgress: checkbox == "-",
			Dependencies: dependencies,
			ParentID:     parentID,
			LineNumber:   i + 1,
		})
	}
	return defs
}

func findParentTask(defs []TaskDefinition, taskID string) string {
	parts := strings.Split(taskID, ".")
	if len(parts) <= 1 {
		return ""
	}
	parentID := strings.Join(parts[:len(parts)-1], ".")
	for i := len(defs) - 1; i >= 0; i-- {
		if defs[i].ID == parentID {
			return parentID
		}
	}
	return ""
}

func parseDependencies(depsStr string) []string {
	var deps []string
	for _, d := range strings.Split(depsStr, ",") {
		d = strings.TrimSpace(d)
		if d != "" {
			deps = append(deps, d)
		}
	}
	return deps
}

// SyncFromPlan reconciles specName's taskset against the plan document at
// planPath: the plan is authoritative for task identity, title,
// description, optionality, and dependency structure, for marking a task
// done once its checkbox is checked, and for promoting a READY or BLOCKED
// task to RUNNING once its box is marked in progress ("-"). A RUNNING or
// FAILED task keeps its state through an unchecked or in-progress box,
// since the checkbox grammar cannot express FAILED at all.
func (s *Syncer) SyncFromPlan(specName, planPath string) SyncResult {
	result := SyncResult{TasksAdded: []string{}, TasksUpdated: []string{}, TasksRemoved: []string{}, Errors: []string{}}
	syncLog := log.WithSpecName(specName)

	defs, err := ParsePlan(planPath)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		metrics.SyncResultsTotal.WithLabelValues("from_plan", "error").Inc()
		return result
	}

	if err := verifyNoCycles(defs); err != nil {
		result.Errors = append(result.Errors, err.Error())
		metrics.SyncResultsTotal.WithLabelValues("from_plan", "error").Inc()
		return result
	}

	taskset, err := s.store.Load(specName)
	existingIDs := make(map[string]bool)
	if err != nil {
		var notFound *registryerr.TasksetNotFoundError
		if !errors.As(err, &notFound) {
			result.Errors = append(result.Errors, err.Error())
			metrics.SyncResultsTotal.WithLabelValues("from_plan", "error").Inc()
			return result
		}
		now := time.Now().UTC()
		taskset = &types.Taskset{
			SpecName:  specName,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
			Tasks:     []*types.Task{},
			Metadata:  map[string]interface{}{"plan_path": planPath},
		}
	} else {
		for _, t := range taskset.Tasks {
			existingIDs[t.ID] = true
		}
	}

	existingByID := make(map[string]*types.Task, len(taskset.Tasks))
	for _, t := range taskset.Tasks {
		existingByID[t.ID] = t
	}

	newTasks := make([]*types.Task, 0, len(defs))
	newIDs := make(map[string]bool, len(defs))

	for _, def := range defs {
		newIDs[def.ID] = true
		now := time.Now().UTC()

		if existing, ok := existingByID[def.ID]; ok {
			updated := reconcileTask(existing, def, now)
			if updated {
				result.TasksUpdated = append(result.TasksUpdated, def.ID)
			}
			newTasks = append(newTasks, existing)
			continue
		}

		state := types.TaskReady
		if len(def.Dependencies) > 0 {
			state = types.TaskBlocked
		}
		if def.IsCompleted {
			state = types.TaskDone
		}
		newTasks = append(newTasks, &types.Task{
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
		result.TasksAdded = append(result.TasksAdded, def.ID)
	}

	for id := range existingIDs {
		if !newIDs[id] {
			result.TasksRemoved = append(result.TasksRemoved, id)
		}
	}

	taskset.Tasks = newTasks
	if taskset.Metadata == nil {
		taskset.Metadata = map[string]interface{}{}
	}
	taskset.Metadata["plan_path"] = planPath
	taskset.Version++

	if err := graph.DetectCycle(taskset); err != nil {
		result.Errors = append(result.Errors, err.Error())
		metrics.SyncResultsTotal.WithLabelValues("from_plan", "error").Inc()
		return result
	}

	if err := s.store.Save(taskset); err != nil {
		result.Errors = append(result.Errors, err.Error())
		metrics.SyncResultsTotal.WithLabelValues("from_plan", "error").Inc()
		return result
	}

	result.Success = true
	metrics.SyncResultsTotal.WithLabelValues("from_plan", "success").Inc()
	syncLog.Info().
		Int("added", len(result.TasksAdded)).
		Int("updated", len(result.TasksUpdated)).
		Int("removed", len(result.TasksRemoved)).
		Msg("synced taskset from plan document")
	return result
}

// reconcileTask applies a plan definition onto an existing task in place,
// reporting whether anything changed.
func reconcileTask(existing *types.Task, def TaskDefinition, now time.Time) bool {
	updated := false

	if existing.Title != def.Title {
		existing.Title = def.Title
		updated = true
	}
	if existing.Description != def.Description {
		existing.Description = def.Description
		updated = true
	}
	if existing.IsOptional != def.IsOptional {
		existing.IsOptional = def.IsOptional
		updated = true
	}
	if !stringSetsEqual(existing.Dependencies, def.Dependencies) {
		existing.Dependencies = def.Dependencies
		updated = true
	}

	newState := nextState(existing.State, def.IsCompleted, def.IsInProgress)
	if existing.State != newState {
		existing.State = newState
		updated = true
	}

	if updated {
		existing.UpdatedAt = now
	}
	return updated
}

// nextState derives the task's post-sync state from the plan's checkbox
// and its current state, implementing the three-way table of spec.md
// §4.7 step 5: `x` always means done; `-` promotes READY/BLOCKED to
// RUNNING and otherwise leaves the state unchanged; ` ` reverts only DONE
// back to READY and otherwise leaves the state unchanged (so RUNNING,
// FAILED, and BLOCKED all survive an unchecked box untouched).
func nextState(current types.TaskState, isCompleted, isInProgress bool) types.TaskState {
	switch {
	case isCompleted:
		return types.TaskDone
	case isInProgress:
		if current == types.TaskReady || current == types.TaskBlocked {
			return types.TaskRunning
		}
		return current
	default:
		if current == types.TaskDone {
			return types.TaskReady
		}
		return current
	}
}

func stringSetsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		if !set[s] {
			return false
		}
	}
	return true
}

func verifyNoCycles(defs []TaskDefinition) error {
	tasks := make([]*types.Task, 0, len(defs))
	for _, d := range defs {
		tasks = append(tasks, &types.Task{ID: d.ID, Dependencies: d.Dependencies})
	}
	return graph.DetectCycle(&types.Taskset{Tasks: tasks})
}

// SyncToPlan writes specName's current task states back onto the plan
// document's checkboxes at planPath: DONE checks the box, RUNNING marks
// it "-", and READY/BLOCKED/FAILED leave it unchecked. It does not alter
// titles, dependencies, or task structure — only the checkbox character.
func (s *Syncer) SyncToPlan(specName, planPath string) SyncResult {
	result := SyncResult{TasksAdded: []string{}, TasksUpdated: []string{}, TasksRemoved: []string{}, Errors: []string{}}

	taskset, err := s.store.Load(specName)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		metrics.SyncResultsTotal.WithLabelValues("to_plan", "error").Inc()
		return result
	}

	states := make(map[string]types.TaskState, len(taskset.Tasks))
	for _, t := range taskset.Tasks {
		states[t.ID] = t.State
	}

	updatedIDs, err := updatePlanCheckboxes(planPath, states)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		metrics.SyncResultsTotal.WithLabelValues("to_plan", "error").Inc()
		return result
	}

	result.TasksUpdated = updatedIDs
	result.Success = true
	metrics.SyncResultsTotal.WithLabelValues("to_plan", "success").Inc()
	log.WithSpecName(specName).Info().Int("updated", len(updatedIDs)).Msg("synced plan document from taskset")
	return result
}

// updatePlanCheckboxes rewrites only the checkbox character of each
// matching task line, preserving every other byte of the document.
func updatePlanCheckboxes(planPath string, states map[string]types.TaskState) ([]string, error) {
	data, err := os.ReadFile(planPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &registryerr.SyncError{Message: fmt.Sprintf("plan document not found: %s", planPath)}
		}
		return nil, &registryerr.SyncError{Message: fmt.Sprintf("reading plan document: %v", err)}
	}

	lines := strings.Split(string(data), "\n")
	var updatedIDs []string

	for i, line := range lines {
		match := taskLinePattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		indent, checkbox, taskID := match[1], match[2], match[4]

		state, ok := states[taskID]
		if !ok {
			continue
		}

		newCheckbox := desiredCheckbox(state, checkbox)
		if newCheckbox == checkbox {
			continue
		}

		pos := len(indent) + len("- [")
		lines[i] = line[:pos] + newCheckbox + line[pos+1:]
		updatedIDs = append(updatedIDs, taskID)
	}

	if len(updatedIDs) == 0 {
		return []string{}, nil
	}

	if err := os.WriteFile(planPath, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		return nil, &registryerr.SyncError{Message: fmt.Sprintf("writing plan document: %v", err)}
	}
	return updatedIDs, nil
}

func desiredCheckbox(state types.TaskState, current string) string {
	switch state {
	case types.TaskDone:
		return "x"
	case types.TaskRunning:
		return "-"
	default:
		if current == "x" || current == "-" {
			return " "
		}
		return current
	}
}

// CountTasks is a small helper for operator tooling: it reports how many
// lines in planPath match the task checkbox grammar, without fully
// parsing descriptions or dependencies.
func CountTasks(planPath string) (int, error) {
	f, err := os.Open(planPath)
	if err != nil {
		return 0, &registryerr.SyncError{Message: fmt.Sprintf("opening plan document: %v", err)}
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if taskLinePattern.MatchString(scanner.Text()) {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, &registryerr.SyncError{Message: fmt.Sprintf("reading plan document: %v", err)}
	}
	return count, nil
}
