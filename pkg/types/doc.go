/*
Package types defines the data model persisted and served by the task
registry: tasksets, tasks, artifacts, and the events they emit.

# Architecture

A Taskset is the unit of persistence — one serialized document per spec name,
holding an ordered list of Task values plus caller metadata. A Task moves
through a small closed state machine (ready/running/blocked/done/failed);
only the registry package and, through plan reconciliation, the plansync
package mutate that state. An Artifact is an append-only reference to a produced file living
outside the registry (a diff, a log, a report); the registry never reads the
blob itself, only its URI. A TaskEvent is an immutable record of one state
change or side effect, appended to a per-spec log and never amended.

# Unknown-field preservation

Taskset and Task round-trip through JSON with an Extra side map: any field
present in a loaded document that this package does not recognize is kept
and re-emitted verbatim on the next save, so a newer writer's schema
additions survive a round trip through an older reader.

# See also

  - pkg/taskstore for how a Taskset is atomically saved and loaded
  - pkg/eventstore for how a TaskEvent is appended and replayed
  - pkg/registry for the state machine that governs a Task's state
*/
package types
