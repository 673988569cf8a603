package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"bookshelf.org/internal/apperr"
)

// bcrypt ignores input past 72 bytes; longer passwords are rejected instead.
const maxPasswordBytes = 72

// HashPassword hashes plaintext with bcrypt at the given cost (0 means bcrypt.DefaultCost).
func HashPassword(password string, cost int) (string, error) {
	if len(password) == 0 {
		return "", apperr.Validationf("password is required")
	}
	if len(password) > maxPasswordBytes {
		return "", apperr.Validationf("password must be at most %d bytes", maxPasswordBytes)
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		if errors.Is(err, bcrypt.InvalidCostError(cost)) {
			return "", apperr.Internalf(err, "bcrypt cost misconfigured")
		}
		return "", apperr.Internalf(err, "hash password")
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches the stored bcrypt hash.
// The comparison runs in constant time.
func VerifyPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
