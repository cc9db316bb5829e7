/*
Package taskstore persists tasksets as one JSON document per spec name,
under storageDir/<spec_name>/taskset.json.

Writes go through a temp-file-then-rename sequence so a reader using
Load never observes a half-written document; this package does not take
the registry's per-spec lock itself; callers serialize mutating calls
through pkg/lock.Manager before invoking Save. Backup re-parses the
taskset it is about to copy to catch corruption before it reaches backup
storage; Restore validates that a candidate backup carries every field a
taskset document requires before overwriting the live document.
*/
package taskstore
