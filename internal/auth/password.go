package auth

import "golang.org/x/crypto/bcrypt"

// bcryptCost matches the cost used across the rest of the stack for
// interactive password hashing; higher costs are reserved for offline
// key-derivation use cases this service doesn't have.
const bcryptCost = 12

// HashPassword hashes a plaintext password for storage.
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether plaintext matches the stored hash.
func CheckPassword(hash, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
