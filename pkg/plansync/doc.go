/*
Package plansync reconciles a taskset with a markdown plan document: a
tasks.md-style file using GitHub checkbox syntax ("- [ ]", "- [x]",
"- [-]") with dotted task numbering and an optional "_Requirements:_"
annotation line for dependency wiring.

SyncFromPlan treats the plan document as authoritative for task
identity, title, description, optionality, and dependency structure; for
marking a task done once its box is checked ("x"); and for promoting a
READY or BLOCKED task to RUNNING once its box is marked in progress
("-"). It is deliberately not authoritative beyond that: an in-progress
box never touches a task already RUNNING or FAILED, and an unchecked
box (" ") only reverts a DONE task back to READY, since the checkbox
grammar cannot express RUNNING or FAILED and blindly reverting them on
every sync would erase a dispatcher's in-flight state. SyncToPlan is the inverse,
narrow operation: it only ever rewrites the checkbox character of a
matching line, never touching titles or structure, so hand-written plan
prose survives every sync untouched. Watch wraps SyncFromPlan with an
fsnotify watch on the plan document for callers that want reconciliation
triggered by edits rather than by polling.
*/
package plansync
