// Package apply executes plans. It is the only component that mutates the
// filesystem. Every directory is applied as one transaction: tags and moves
// are journaled ahead of each mutation, a mid-directory failure rolls the
// whole directory back, and a failed rollback is fatal and flags the
// directory for recovery. Re-applying an already-applied plan is a no-op.
package apply
