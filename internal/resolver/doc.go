// Package resolver pins metric names to backends and keeps the pins balanced.
//
// Three selection policies cover the dispatch paths: round-robin striping for
// first-seen metrics, least-loaded for metrics whose pinned backend went
// down, and random for requests without a metric name. A periodic control
// loop re-stripes the full population once after start-up, then incrementally
// moves hot metrics off the busiest backend for a bounded settling window.
// Pins survive restarts through the assignment package.
package resolver
