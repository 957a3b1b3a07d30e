// Package plan turns a pinned release decision into a concrete filesystem and
// tag mutation plan. Build is a pure function: no filesystem or network
// access, fully reproducible from its inputs. Conflict resolution against the
// existing library happens here, against a caller-supplied snapshot, so the
// applier never re-derives policy.
package plan
