// Package backend models a downstream metric-ingest server. It provides
// liveness tracking, arrival-rate accounting, and address rendering for the
// resolver and connection pool.
package backend
