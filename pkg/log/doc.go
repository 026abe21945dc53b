/*
Package log provides structured logging for hydrant using zerolog.

Init configures the global Logger once at process start (JSON or console
output, minimum level). WithComponent, WithSlot and WithIndexerID derive
child loggers carrying a fixed context field, so a call site doesn't have
to repeat "component", "slot" or "indexer_id" on every log line:

	chainLog := log.WithComponent("chain")
	chainLog.Warn().Err(err).Msg("resize deferred")

	log.WithSlot(block.Slot()).Info().Msg("applied block")
*/
package log
