package prefilter

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint computes a stable content hash of a message: case-folded,
// whitespace collapsed to single spaces, SHA-256 hex. Reposts of the same
// text share a fingerprint regardless of casing or spacing.
func Fingerprint(text string) string {
	normalized := strings.Join(strings.Fields(fold(text)), " ")

	sum := sha256.Sum256([]byte(normalized))

	return hex.EncodeToString(sum[:])
}
