package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// keyLength is the number of hex characters kept from the SHA-256 digest.
const keyLength = 32

// NormalizeQuery lowercases q and collapses runs of whitespace.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// HashKey derives a stable key from parts. Parts are length-prefixed so that
// ("ab", "c") and ("a", "bc") hash differently.
func HashKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(strconv.Itoa(len(p))))
		h.Write([]byte{':'})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))[:keyLength]
}
