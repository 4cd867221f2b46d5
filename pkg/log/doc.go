/*
Package log provides structured logging for Komodo using zerolog.

The package wraps zerolog behind a global logger initialized once at
startup via Init. Components obtain child loggers carrying stable
context fields so every line of a subsystem is attributable:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	execLog := log.WithComponent("execute")
	execLog.Info().Str("operation", "Deploy").Msg("dispatching")

	srvLog := log.WithServer(server.ID)
	srvLog.Warn().Msg("server unreachable, marking resources unknown")

JSON output is intended for production; the console writer is for
development. Secret values never reach the logger: operations log the
names of interpolated variables and secrets, not their values, and
command echoes are sanitized by the periphery using replacers before
they come back.

Context helpers:

  - WithComponent: subsystem name (execute, syncer, builder, listener, state)
  - WithServer: server resource id
  - WithUpdate: update journal entry id
  - WithTarget: resource target (kind, id) pair
*/
package log
