package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cuemby/task-registry/pkg/registryerr"
	"github.com/cuemby/task-registry/pkg/types"
)

// DetectCycle walks the dependency graph of taskset with a depth-first
// search, using a recursion-stack marker to distinguish "visited on this
// path" from "visited and cleared." It returns a CircularDependencyError
// naming the cycle's chain if one exists, or nil if the graph is a DAG.
func DetectCycle(taskset *types.Taskset) error {
	tasksByID := make(map[string]*types.Task, len(taskset.Tasks))
	for _, t := range taskset.Tasks {
		tasksByID[t.ID] = t
	}

	const (
		unvisited = 0
		onStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(taskset.Tasks))
	var stack []string

	var visit func(id string) error
	visit = func(id string) error {
		state[id] = onStack
		stack = append(stack, id)

		task := tasksByID[id]
		if task != nil {
			for _, dep := range task.Dependencies {
				switch state[dep] {
				case onStack:
					chain := append(append([]string{}, stack...), dep)
					idx := indexOf(chain, dep)
					return &registryerr.CircularDependencyError{Chain: chain[idx:]}
				case unvisited:
					if err := visit(dep); err != nil {
						return err
					}
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[id] = done
		return nil
	}

	ids := make([]string, 0, len(taskset.Tasks))
	for _, t := range taskset.Tasks {
		ids = append(ids, t.ID)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if state[id] == unvisited {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func indexOf(s []string, v string) int {
	for i, item := range s {
		if item == v {
			return i
		}
	}
	return 0
}

// ExecutionOrder computes a level-wise topological sort: each returned
// level is the set of task ids whose dependencies are all satisfied by
// earlier levels, ready to run in parallel. If a cycle exists, the
// unresolved remainder is appended as a single final level rather than
// raising an error, so a caller can still see which tasks never cleared
// their dependencies.
func ExecutionOrder(taskset *types.Taskset) [][]string {
	inDegree := make(map[string]int, len(taskset.Tasks))
	for _, t := range taskset.Tasks {
		inDegree[t.ID] = len(t.Dependencies)
	}

	dependents := make(map[string][]string)
	for _, t := range taskset.Tasks {
		for _, dep := range t.Dependencies {
			dependents[dep] = append(dependents[dep], t.ID)
		}
	}

	processed := make(map[string]bool, len(taskset.Tasks))
	var order [][]string

	for len(processed) < len(taskset.Tasks) {
		var ready []string
		for id, degree := range inDegree {
			if degree == 0 && !processed[id] {
				ready = append(ready, id)
			}
		}

		if len(ready) == 0 {
			var remaining []string
			for _, t := range taskset.Tasks {
				if !processed[t.ID] {
					remaining = append(remaining, t.ID)
				}
			}
			if len(remaining) > 0 {
				sort.Strings(remaining)
				order = append(order, remaining)
			}
			break
		}

		sort.Strings(ready)
		order = append(order, ready)
		for _, id := range ready {
			processed[id] = true
		}
		for _, id := range ready {
			for _, dependent := range dependents[id] {
				inDegree[dependent]--
			}
		}
	}

	return order
}

var dotColors = map[types.TaskState]string{
	types.TaskReady:   "lightgreen",
	types.TaskRunning: "gold",
	types.TaskBlocked: "lightgray",
	types.TaskDone:    "lightblue",
	types.TaskFailed:  "lightcoral",
}

var mermaidClasses = map[types.TaskState]string{
	types.TaskReady:   "ready",
	types.TaskRunning: "running",
	types.TaskBlocked: "blocked",
	types.TaskDone:    "done",
	types.TaskFailed:  "failed",
}

// ToDot renders taskset's dependency graph as Graphviz DOT source. Nodes
// are colored by state and dashed when optional; edges point from a
// dependency to its dependent.
func ToDot(taskset *types.Taskset) string {
	var b strings.Builder
	b.WriteString("digraph TaskDependencies {\n")
	b.WriteString("    rankdir=TB;\n")
	b.WriteString("    node [shape=box, style=rounded];\n\n")

	for _, task := range taskset.Tasks {
		color := dotColors[task.State]
		if color == "" {
			color = "white"
		}
		style := "filled,rounded"
		if task.IsOptional {
			style = "dashed,rounded"
		}
		label := escapeDotLabel(fmt.Sprintf("%s: %s", task.ID, task.Title))
		fmt.Fprintf(&b, "    %q [label=\"%s\", fillcolor=%q, style=%q];\n", task.ID, label, color, style)
	}

	b.WriteString("\n")
	for _, task := range taskset.Tasks {
		for _, dep := range task.Dependencies {
			fmt.Fprintf(&b, "    %q -> %q;\n", dep, task.ID)
		}
	}
	b.WriteString("}")
	return b.String()
}

// ToMermaid renders taskset's dependency graph as a Mermaid flowchart,
// with state-based class styling and a dedicated "optional" class for
// tasks that are not required to complete.
func ToMermaid(taskset *types.Taskset) string {
	var b strings.Builder
	b.WriteString("graph TD\n")

	for _, task := range taskset.Tasks {
		nodeID := sanitizeMermaidID(task.ID)
		label := fmt.Sprintf("%s: %s", task.ID, task.Title)
		fmt.Fprintf(&b, "    %s[%q]\n", nodeID, label)
		if task.IsOptional {
			fmt.Fprintf(&b, "    class %s optional\n", nodeID)
		} else {
			class := mermaidClasses[task.State]
			if class == "" {
				class = "ready"
			}
			fmt.Fprintf(&b, "    class %s %s\n", nodeID, class)
		}
	}

	b.WriteString("\n")
	for _, task := range taskset.Tasks {
		nodeID := sanitizeMermaidID(task.ID)
		for _, dep := range task.Dependencies {
			fmt.Fprintf(&b, "    %s --> %s\n", sanitizeMermaidID(dep), nodeID)
		}
	}

	b.WriteString("\n")
	b.WriteString("    classDef ready fill:#90EE90,stroke:#333,stroke-width:2px\n")
	b.WriteString("    classDef running fill:#FFD700,stroke:#333,stroke-width:2px\n")
	b.WriteString("    classDef blocked fill:#D3D3D3,stroke:#333,stroke-width:2px\n")
	b.WriteString("    classDef done fill:#87CEEB,stroke:#333,stroke-width:2px\n")
	b.WriteString("    classDef failed fill:#FF6B6B,stroke:#333,stroke-width:2px\n")
	b.WriteString("    classDef optional fill:#FFF,stroke:#333,stroke-width:1px,stroke-dasharray: 5 5")
	return b.String()
}

func escapeDotLabel(label string) string {
	label = strings.ReplaceAll(label, `\`, `\\`)
	label = strings.ReplaceAll(label, `"`, `\"`)
	return label
}

func sanitizeMermaidID(taskID string) string {
	sanitized := strings.ReplaceAll(taskID, ".", "_")
	sanitized = strings.ReplaceAll(sanitized, "-", "_")
	return "task_" + sanitized
}
