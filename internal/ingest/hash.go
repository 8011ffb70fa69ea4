package ingest

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash returns a stable identifier for file content.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return "sha256:" + hex.EncodeToString(sum[:])
}
