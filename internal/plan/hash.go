package plan

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// hashPlan computes the canonical content hash over everything except the
// hash field itself. Plans serialize with fixed struct field order and
// deterministic track ordering, so equal inputs yield equal hashes.
func hashPlan(p *Plan) (string, error) {
	shadow := *p
	shadow.Hash = ""
	data, err := json.Marshal(&shadow)
	if err != nil {
		return "", fmt.Errorf("serialize plan: %w", err)
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum[:]), nil
}

// Verify recomputes the hash and reports whether it matches, guarding
// against a tampered or truncated persisted plan.
func (p *Plan) Verify() (bool, error) {
	hash, err := hashPlan(p)
	if err != nil {
		return false, err
	}
	return hash == p.Hash, nil
}
