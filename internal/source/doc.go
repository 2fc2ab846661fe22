// Package source holds the watched-source model: source definitions,
// fetched snapshots and the per-source state that survives restarts.
package source
