/*
Package registryerr defines the typed error taxonomy the registry reports to
its callers: NotFound, InvalidStateTransition, CircularDependency,
LockTimeout, Sync, Integrity, and IO errors.

Each kind has a sentinel (ErrNotFound, ErrLockTimeout, ...) for errors.Is
checks and a concrete struct (TaskNotFoundError, LockTimeoutError, ...) for
errors.As checks that need the structured detail (task id, timeout, cycle
chain). Filesystem failures are returned as the underlying os error wrapped
with fmt.Errorf, not as ErrIO, which no package returns. Nothing in this
module swallows an error silently except where the spec explicitly calls for
corruption-tolerant skipping (event log replay, graph export on a cycle).
*/
package registryerr
