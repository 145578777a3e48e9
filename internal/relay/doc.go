// Package relay binds each inbound request to a backend and a pooled client
// connection, forwards a single protocol line, and returns the client. Pool
// borrow failures back off and retry forever as deliberate backpressure.
package relay
