package progress

import (
	"crypto/sha256"
	"encoding/hex"
)

// keyLength is the number of hex characters kept from the digest. Short keys
// are friendlier as Redis channel names and path segments; collisions across
// distinct references are an accepted risk.
const keyLength = 16

// DeriveKey deterministically maps a job reference (source URL) to the fixed
// length key addressing its progress channel. Same input, same key.
func DeriveKey(jobReference string) string {
	sum := sha256.Sum256([]byte(jobReference))
	return hex.EncodeToString(sum[:])[:keyLength]
}
