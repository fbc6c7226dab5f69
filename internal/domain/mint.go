package domain

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// MintInfo describes a validated mint address.
type MintInfo struct {
	// OnCurve is true for regular keypair-derived addresses.
	// Program-derived addresses are off-curve; a pool or vault address
	// showing up where a mint is expected is a red flag.
	OnCurve bool
}

// ValidateMint checks that mint is a well-formed Solana address:
// base58-decodable to exactly 32 bytes.
func ValidateMint(mint string) (*MintInfo, error) {
	if mint == "" {
		return nil, fmt.Errorf("empty mint address")
	}

	raw, err := base58.Decode(mint)
	if err != nil {
		return nil, fmt.Errorf("decode mint %q: %w", mint, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("mint %q decodes to %d bytes, want 32", mint, len(raw))
	}

	return &MintInfo{OnCurve: isOnCurve(raw)}, nil
}

// isOnCurve reports whether the 32-byte point lies on the ed25519 curve.
func isOnCurve(point []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
