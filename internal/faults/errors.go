package faults

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks malformed input, including tampered replay logs.
	ErrValidation = errors.New("validation error")
	// ErrProvider marks a failed provider call or a malformed provider payload.
	ErrProvider = errors.New("provider error")
	// ErrCacheCorruption marks a stored cache payload that fails its integrity check.
	ErrCacheCorruption = errors.New("cache corruption")
	// ErrConflict marks a destination collision under the fail conflict policy.
	ErrConflict = errors.New("destination conflict")
	// ErrApplyTransaction marks a failed mutation step inside an apply transaction.
	ErrApplyTransaction = errors.New("apply transaction error")
	// ErrRollbackFailure marks a failed reversal. Always fatal, never swallowed.
	ErrRollbackFailure = errors.New("rollback failure")
	// ErrInvariant marks an engine precondition violation, such as falling back
	// to metadata-only matching while a fingerprint-capable provider exists.
	ErrInvariant = errors.New("invariant violation")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrApplyTransaction
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether the error must stop processing immediately instead
// of being recorded against a single directory.
func IsFatal(err error) bool {
	return errors.Is(err, ErrRollbackFailure)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "core failure"
	}
	return strings.Join(parts, ": ")
}
