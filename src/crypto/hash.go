package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256 returns the SHA256 hash of the data.
func SHA256(data []byte) []byte {
	hasher := sha256.New()
	hasher.Write(data)
	hash := hasher.Sum(nil)
	return hash
}

// SHA256Hex returns the lowercase hex encoding of the SHA256 hash of data.
// Nostr ids, pubkeys and content hashes all use this representation.
func SHA256Hex(data []byte) string {
	return hex.EncodeToString(SHA256(data))
}
