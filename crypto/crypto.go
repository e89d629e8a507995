package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/hkdf"
)

// Key purposes. Each one yields an independent key from the same secret.
const (
	PurposeSessionAuth = "session-auth"
	PurposeSessionEnc  = "session-encryption"
	PurposeCSRF        = "csrf"
	PurposeToken       = "api-token"
)

// MaxPasswordBytes is the longest password bcrypt will hash.
const MaxPasswordBytes = 72

// DeriveKey expands the configured secret into a 32-byte key for one purpose.
func DeriveKey(secret, purpose string) []byte {
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(purpose))
	if _, err := io.ReadFull(r, key); err != nil {
		// hkdf only fails past 255*hash size bytes
		panic(err)
	}
	return key
}

// HashPassword returns a bcrypt hash; the salt is embedded in the result.
func HashPassword(password string, cost int) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// ValidCost reports whether bcrypt accepts the cost.
func ValidCost(cost int) bool {
	return cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost
}
