// Package util provides hashing and encoding helpers shared by the
// repository implementations.
package util

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// RevisionID computes the hex node ID of a revision from its number,
// parents, and identifying metadata. The scheme is stable: the same inputs
// always produce the same ID.
func RevisionID(rev int64, parents []int64, user, desc string, date int64) string {
	h := blake3.New(32, nil)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(rev))
	h.Write(buf[:])
	for _, p := range parents {
		binary.BigEndian.PutUint64(buf[:], uint64(p))
		h.Write(buf[:])
	}
	binary.BigEndian.PutUint64(buf[:], uint64(date))
	h.Write(buf[:])
	fmt.Fprintf(h, "%s\x00%s", user, desc)
	return hex.EncodeToString(h.Sum(nil))
}

// IsHexPrefix reports whether s could be a prefix of a node ID: nonempty
// and all lowercase hex digits. Node IDs are rendered lowercase, so an
// uppercase digit can never match one.
func IsHexPrefix(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
