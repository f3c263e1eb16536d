package crypto

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var ErrPasswordMismatch = errors.New("password mismatch")

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword checks a login attempt against the stored credential.
// Bcrypt hashes start with "$2"; anything else is treated as a plaintext
// bootstrap credential and compared directly.
func VerifyPassword(stored, password string) error {
	if strings.HasPrefix(stored, "$2") {
		if err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)); err != nil {
			return ErrPasswordMismatch
		}
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(password)) != 1 {
		return ErrPasswordMismatch
	}
	return nil
}
