package chunk

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher computes the per-chunk digest stored in ChunkRow.Hash.
type Hasher interface {
	Sum(data []byte) string
}

// SHA256Hasher hashes chunks with SHA-256 and hex-encodes the result.
type SHA256Hasher struct{}

func (SHA256Hasher) Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
