/*
Package log provides structured logging for tally using zerolog.

It wraps zerolog to give every component (store, counter strategies,
rollup scheduler) a consistently-shaped logger with JSON or console
output and component/namespace/node context fields.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	storeLog := log.WithComponent("store")
	storeLog.Warn().Str("sentinel_master", "mymaster").Msg("circuit breaker open")

	counterLog := log.WithCounter("orders", "count")
	counterLog.Debug().Msg("idempotency marker hit")

# Levels

Debug is for development only; Info is the recommended production
level; Warn/Error should stay low-volume enough to alert on directly.
*/
package log
