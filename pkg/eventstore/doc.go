/*
Package eventstore records the append-only, per-spec history of task
events and, through Broker, fans recorded events out to in-process
subscribers in real time.

Store never mutates or deletes an individual line once appended; Rotate
and Clear operate only on whole files. Reads tolerate corrupted lines
(a truncated trailing line from a crash mid-write) by skipping them and
logging a warning rather than failing the whole scan.

Broker is separate from Store: it is a live fan-out with no persistence
of its own, for callers that want to react to events as they happen
(a dispatcher waiting on GetReadyTasks, for instance) without polling
the log.
*/
package eventstore
