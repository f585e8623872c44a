// Package hashing implements the engine's similarity-hash and feature
// pipeline: SHA-256, TLSH, MinHash, and Shannon entropy, each computed
// deterministically given the same configuration and input bytes
// (spec.md §4.6).
package hashing

import (
	"encoding/hex"

	"github.com/minio/sha256-simd"
)

// SHA256 returns the lowercase hex-encoded SHA-256 digest of data.
func SHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
