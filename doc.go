// Package tally is the composition root for the counter engine: it
// wires the counter factory (pkg/counter) and the rollup scheduler
// factory (pkg/rollup) together without either package depending on
// the other.
//
// A typical host application builds a store.Manager once, picks a
// consistency level through NewCounter or NewAsyncCounter, and
// optionally runs NewScheduler/NewAsyncScheduler against the same
// manager to fold per-node deltas into totals on an interval.
package tally
