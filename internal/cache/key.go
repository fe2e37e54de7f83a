package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Key hashes the normalized parts into a stable content address. Parts are
// trimmed and lowercased, then joined with "|" so ("a b", "") and ("a", "b")
// produce different keys.
func Key(parts ...string) string {
	norm := make([]string, len(parts))
	for i, p := range parts {
		norm[i] = strings.ToLower(strings.TrimSpace(p))
	}
	sum := sha256.Sum256([]byte(strings.Join(norm, "|")))
	return hex.EncodeToString(sum[:])
}

func validKey(key string) bool {
	if len(key) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(key)
	return err == nil
}

func validSource(source string) bool {
	if source == "" {
		return false
	}
	for _, r := range source {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' && r != '_' {
			return false
		}
	}
	return true
}
