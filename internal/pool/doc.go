// Package pool implements a keyed pool of persistent TCP connections to the
// backend fleet, with breaker-guarded dialing and a strict borrow/return
// discipline keyed by backend.
package pool
