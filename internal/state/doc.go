// Package state persists the per-directory lifecycle in SQLite: evidence
// registration, identification results, pin decisions, plans, the apply
// journal, and the append-only apply record log. Every status change is a
// guarded UPDATE, so an out-of-order transition fails loudly instead of
// silently overwriting newer state.
package state
