/*
Package metrics provides Prometheus instrumentation for the task registry.

Metrics are registered once at package init and exposed for scraping via
Handler(), which an embedding process mounts on its own HTTP mux; this
package never starts a server of its own.

Instrumentation is limited to what the registry's call sites can observe
directly: lock wait time and timeouts, emitted mutation events, event log
appends and rotations, and plan sync outcomes. There is no background
collector — these metrics are updated inline by the package that owns the
measurement (pkg/lock, pkg/registry, pkg/eventstore, pkg/plansync).
MutationDuration is registered, but no call site in this module observes it.
*/
package metrics
