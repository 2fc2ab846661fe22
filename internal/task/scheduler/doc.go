// Package scheduler turns per-source schedules into task engine
// submissions. It owns trigger timing only; execution, overlap gating and
// timeouts belong to the engine.
package scheduler
