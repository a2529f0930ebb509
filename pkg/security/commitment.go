package security

import (
	"crypto/sha256"
	"encoding/hex"
)

// Commitment returns the deterministic SHA-256 digest of a raw code, hex
// encoded. This is the one hash used for storage lookup and ledger
// registration: any party holding the raw code can recompute it, so it is
// deliberately unsalted. Salted digests are reserved for values verified by
// equality against a single known record, never for lookup keys.
func Commitment(rawCode string) string {
	sum := sha256.Sum256([]byte(rawCode))
	return hex.EncodeToString(sum[:])
}
