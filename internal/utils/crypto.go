// internal/utils/crypto.go
package utils

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// GenerateRequestID returns an opaque id for correlating logs of one request.
func GenerateRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// HashFields digests the fields in order. Each field is length-prefixed, so moving a
// separator between adjacent fields changes the digest.
func HashFields(fields ...string) string {
	hasher := sha256.New()
	var size [8]byte
	for _, f := range fields {
		binary.BigEndian.PutUint64(size[:], uint64(len(f)))
		hasher.Write(size[:])
		hasher.Write([]byte(f))
	}
	return hex.EncodeToString(hasher.Sum(nil))
}
