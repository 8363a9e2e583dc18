package password

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// BcryptV1Hasher implements Hasher using the original bcrypt implementation
type BcryptV1Hasher struct{}

// Hash implements Hasher.Hash
func (h *BcryptV1Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}

	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	return string(hashedBytes), nil
}

// Verify implements Hasher.Verify
func (h *BcryptV1Hasher) Verify(password, hashedPassword string) (bool, error) {
	if password == "" || hashedPassword == "" {
		return false, errors.New("password and hashed password cannot be empty")
	}

	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil // Password doesn't match, but not an error
		}
		return false, err
	}

	return true, nil
}

// BcryptV2Hasher implements Hasher using bcrypt with salt and higher cost
type BcryptV2Hasher struct{}

// Hash implements Hasher.Hash
func (h *BcryptV2Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}

	salt := randomString(16)
	saltedPassword := salt + password
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(saltedPassword), bcrypt.DefaultCost+2)
	if err != nil {
		return "", err
	}

	// Store salt and hash together
	return fmt.Sprintf("%s:%s", salt, string(hashedBytes)), nil
}

// Verify implements Hasher.Verify
func (h *BcryptV2Hasher) Verify(password, hashedPassword string) (bool, error) {
	if password == "" || hashedPassword == "" {
		return false, errors.New("password and hashed password cannot be empty")
	}

	// Version 2 format: salt:hash
	parts := strings.SplitN(hashedPassword, ":", 2)
	if len(parts) != 2 {
		return false, errors.New("invalid password hash format")
	}

	saltedPassword := parts[0] + password
	err := bcrypt.CompareHashAndPassword([]byte(parts[1]), []byte(saltedPassword))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// randomString returns a hex string of n characters from crypto/rand
func randomString(n int) string {
	buf := make([]byte, (n+1)/2)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return hex.EncodeToString(buf)[:n]
}
