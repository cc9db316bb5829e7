/*
Package registry is the embedding entry point for the task registry. It
mirrors the teacher's manager-as-facade shape — a single struct built by a
constructor that wires a config onto a set of single-responsibility
sub-packages, exposing one method per domain operation — but the write path
underneath it is a per-spec file lock and an atomically-rewritten JSON
document rather than a replicated Raft log: a single taskset never needs
distributed consensus, only protection from concurrent local writers.
*/
package registry
