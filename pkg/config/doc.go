/*
Package config defines the tunables for a task registry instance: where it
stores its data, how long it waits on the per-spec lock, when event logs
rotate, and whether backups are enabled.

Config is a plain struct with a Default constructor and a Validate method
rather than a file- or environment-backed loader: the registry has no CLI and
no environment variables of its own (callers configure it programmatically,
as part of embedding it into a larger process), so there is nothing here for
an env-override layer to do.
*/
package config
