// Package rate provides windowed arrival-rate estimation. A Tracker is kept
// per metric and per backend; the resolver compares rates, never counts, so
// only relative magnitude and stability matter.
package rate
