package hashing

import "github.com/glaslos/tlsh"

// TLSH returns the TLSH locality-sensitive hash of data, or "" if data is
// too short or otherwise unhashable (spec.md §4.6: null when below
// minimum_byte_size, never fatal). Callers are expected to have already
// checked data against the configured minimum_byte_size; TLSH() additionally
// tolerates the library's own internal minimum.
func TLSH(data []byte) string {
	h, err := tlsh.HashBytes(data)
	if err != nil {
		return ""
	}
	return h.String()
}
