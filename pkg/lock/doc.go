/*
Package lock implements per-spec exclusive locking on top of flock(2),
serializing mutating registry operations while leaving reads lock-free.

There is no suitable third-party locking library anywhere in the example
corpus (a pack-wide search turned up nothing beyond the standard library's
syscall.Flock), so this package follows the one corpus file that makes the
same choice directly: an internal task store that wraps Flock with a
context-aware polling acquire and a deadline-based timeout. Force-unlock
exists for operator recovery from a crashed holder and is logged at Warn,
matching the registry's policy of surfacing lock anomalies loudly.
*/
package lock
