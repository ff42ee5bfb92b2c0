package content

import (
	"crypto/sha256"
	"encoding/hex"

	"clipvault/pkg/types"
)

// Fingerprint computes the stable content hash used as the dedup and
// thumbnail cache key: SHA-256 over the kind's canonical tag followed by
// the raw payload bytes. Identical kind+bytes always collide; identical
// bytes under different kinds never do.
func Fingerprint(kind types.Kind, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
