// Package circuitbreaker implements a per-backend dial breaker used by the
// connection pool. An open breaker fails borrows fast so the relay's backoff
// takes over instead of stacking dial timeouts against a dead backend.
package circuitbreaker
