/*
Package graph provides dependency-graph algorithms over a taskset: cycle
detection, level-wise execution ordering, and DOT/Mermaid diagram export.

DetectCycle uses a DFS with an explicit recursion-stack marker so it can
report the exact cycle chain, not just that one exists. ExecutionOrder
implements a Kahn's-algorithm-style topological sort but never errors on
a cycle: the unresolved remainder is emitted as a final level, so a
caller inspecting the execution plan can see exactly which tasks never
cleared their dependencies instead of losing the whole computation to an
error.
*/
package graph
