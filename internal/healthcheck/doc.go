// Package healthcheck implements periodic liveness probing for backend
// servers. A probe is a plain TCP dial against the backend's ingest port;
// the result drives the liveness flag consulted by the resolver.
package healthcheck
