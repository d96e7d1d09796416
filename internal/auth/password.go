package auth

import (
	"crypto/rand"
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters.
const (
	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32
	saltLen             = 16
)

// HashPassword derives an Argon2id hash of password under a fresh random salt.
func HashPassword(password string) (hash, salt []byte, err error) {
	salt = make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, err
	}
	return deriveKey(password, salt), salt, nil
}

// VerifyPassword reports whether password matches hash under salt.
func VerifyPassword(password string, salt, hash []byte) bool {
	return subtle.ConstantTimeCompare(deriveKey(password, salt), hash) == 1
}

func deriveKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}
