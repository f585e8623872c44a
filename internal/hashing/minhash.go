package hashing

import (
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/cespare/xxhash/v2"
)

// MinHash computes numberOfHashes independent 32-bit minimum-hash values
// over every shingleSize-byte shingle of data, seeded by seed, and returns
// them as a lowercase hex concatenation (spec.md §4.6). Each of the
// numberOfHashes hash functions is derived from the shared xxhash primitive
// by mixing seed with the function's index, since xxhash itself exposes no
// per-call seed parameter.
func MinHash(data []byte, numberOfHashes, shingleSize int, seed uint64) string {
	mins := make([]uint32, numberOfHashes)
	for i := range mins {
		mins[i] = math.MaxUint32
	}
	if shingleSize > 0 && len(data) >= shingleSize {
		for start := 0; start+shingleSize <= len(data); start++ {
			shingle := data[start : start+shingleSize]
			for i := 0; i < numberOfHashes; i++ {
				v := uint32(shingleHash(seed, uint64(i), shingle))
				if v < mins[i] {
					mins[i] = v
				}
			}
		}
	}

	out := make([]byte, numberOfHashes*4)
	for i, v := range mins {
		binary.BigEndian.PutUint32(out[i*4:], v)
	}
	return hex.EncodeToString(out)
}

func shingleHash(seed, index uint64, shingle []byte) uint64 {
	var prefix [16]byte
	binary.LittleEndian.PutUint64(prefix[0:8], seed)
	binary.LittleEndian.PutUint64(prefix[8:16], index)

	d := xxhash.New()
	d.Write(prefix[:])
	d.Write(shingle)
	return d.Sum64()
}
