/*
Package query provides read-only search, filter, and sort operations over
a taskset's tasks: single-predicate helpers (FilterByState, FilterBySkill,
SortByPriority) for the common cases, and a compound Query for filters,
sorting, and offset/limit pagination together.

Every call reloads the taskset from its Store; nothing here caches.
A query against a spec name with no taskset returns an empty result
rather than an error, matching the tolerant read semantics the rest of
the registry follows.
*/
package query
