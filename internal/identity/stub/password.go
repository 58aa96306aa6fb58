package stub

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 8

var errWeakPassword = errors.New("password must be at least 8 characters")

// hashPassword hashes plaintext password using bcrypt.
func hashPassword(password string) (string, error) {
	if len(password) < minPasswordLen {
		return "", errWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// verifyPassword compares plaintext password with stored hash.
func verifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
