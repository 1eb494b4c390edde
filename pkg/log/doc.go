/*
Package log provides structured logging for Fable using zerolog.

The package wraps zerolog behind a small API: Init configures the global
logger (level, JSON vs console, output writer), and the With* helpers mint
child loggers carrying stable context fields. Components hold their own
child logger so every line they emit is attributable:

	logger := log.WithComponent("dispatcher")
	logger.Info().Str("task_id", id).Msg("task created")

Context helpers:
  - WithComponent: long-lived subsystem (dispatcher, worker, janitor, api)
  - WithWorkerID: worker process identity
  - WithTaskID: per-task trails
  - WithStory: story-name lookups

JSON output is the production default; the console writer is for local
runs. All output includes timestamps. The global logger is safe for
concurrent use.

Level guidance: error for store or engine failures that a component
absorbs and continues past, warn for degraded conditions (memory pressure,
corrupt records skipped during listing), info for lifecycle events, debug
for per-entry dispatch detail.
*/
package log
