package ingest

import (
	"crypto/md5"
	"encoding/hex"
)

// Digest returns the hex content hash of raw file bytes. It is the sole
// deduplication key for an observation; identifiers may collide, digests
// may not.
func Digest(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
