package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordVerifier holds only a bcrypt hash of the shared viewer password.
type PasswordVerifier struct {
	hash []byte
}

func NewPasswordVerifier(password string) (*PasswordVerifier, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return &PasswordVerifier{hash: hash}, nil
}

func (v *PasswordVerifier) Verify(password string) bool {
	return bcrypt.CompareHashAndPassword(v.hash, []byte(password)) == nil
}

// APIKey compares presented keys in constant time.
type APIKey struct {
	digest [sha256.Size]byte
}

func NewAPIKey(key string) APIKey {
	return APIKey{digest: sha256.Sum256([]byte(key))}
}

func (k APIKey) Equal(presented string) bool {
	if presented == "" {
		return false
	}
	got := sha256.Sum256([]byte(presented))
	return subtle.ConstantTimeCompare(got[:], k.digest[:]) == 1
}
