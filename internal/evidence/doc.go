// Package evidence defines the immutable per-track and per-directory facts
// the identification engine consumes. Evidence is produced by an external
// scanner and arrives here as data; nothing in this package touches the
// filesystem or network.
package evidence
