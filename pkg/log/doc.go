/*
Package log provides structured logging for the task registry using zerolog.

A single package-level Logger is initialized once via Init and handed out to
every other package as a component-tagged child logger (WithComponent,
WithSpecName, WithTaskID). All entries carry a timestamp; output is either
JSON (for ingestion) or a human-readable console format.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	lockLog := log.WithComponent("lock")
	lockLog.Info().Str("spec_name", spec).Dur("elapsed", elapsed).Msg("lock acquired")

	lockLog.Warn().Str("spec_name", spec).Msg("lock force-unlocked by operator")

# Design

Lock timeouts and force-unlocks are logged at Warn (a failed force-unlock at
Error): these are the events an operator debugging a stuck dispatcher needs
to see first. A successful lock acquisition logs at Info. Each recorded event
logs at Debug with the spec_name and task_id fields so log aggregation can
filter per taskset.
*/
package log
