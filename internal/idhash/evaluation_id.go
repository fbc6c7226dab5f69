package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeEvaluationID computes a deterministic evaluation_id using SHA256.
// Formula: SHA256(mint|discovered_at_ms)
// Returns hex-encoded hash (64 characters).
//
// Re-evaluating the same discovery is idempotent at the storage layer:
// the second insert hits ErrDuplicateKey instead of creating a sibling row.
func ComputeEvaluationID(mint string, discoveredAtMs int64) string {
	data := fmt.Sprintf("%s|%d", mint, discoveredAtMs)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
