// Package auth hashes and verifies dashboard Basic-Auth passwords with
// pbkdf2-sha256, and validates the username/password shapes accepted at
// account-configuration time.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Iterations is the minimum PBKDF2 iteration count spec.md §6 mandates.
const Iterations = 600_000

const (
	saltBytes = 16
	keyBytes  = 32
)

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 8

var (
	ErrEmptyPassword    = errors.New("password must not be empty")
	ErrPasswordTooShort = errors.New("password too short")
	ErrWeakPassword     = errors.New("password does not meet strength requirements")
	ErrInvalidUsername  = errors.New("invalid username")
	ErrInvalidHash      = errors.New("malformed password hash")
)

// HashPassword derives a pbkdf2-sha256 hash for password with a fresh
// random salt, encoded as "pbkdf2-sha256$iterations$salt$hash" (base64
// raw-url, no padding) so the iteration count travels with the hash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	return encode(password, salt, Iterations), nil
}

func encode(password string, salt []byte, iterations int) string {
	key := pbkdf2.Key([]byte(password), salt, iterations, keyBytes, sha256.New)
	return fmt.Sprintf("pbkdf2-sha256$%d$%s$%s",
		iterations,
		base64.RawURLEncoding.EncodeToString(salt),
		base64.RawURLEncoding.EncodeToString(key),
	)
}

// ValidatePassword reports whether password matches hash, comparing in
// constant time. Any malformed hash is treated as a verification
// failure, never a panic.
func ValidatePassword(password, hash string) error {
	parts := strings.Split(hash, "$")
	if len(parts) != 4 || parts[0] != "pbkdf2-sha256" {
		return ErrInvalidHash
	}
	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations <= 0 {
		return ErrInvalidHash
	}
	salt, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return ErrInvalidHash
	}
	want, err := base64.RawURLEncoding.DecodeString(parts[3])
	if err != nil {
		return ErrInvalidHash
	}

	got := pbkdf2.Key([]byte(password), salt, iterations, len(want), sha256.New)
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return errors.New("password does not match")
	}
	return nil
}

// CheckPasswordStrength validates password length, and when
// requireStrong is set, mixed-case/digit/symbol composition.
func CheckPasswordStrength(password string, requireStrong bool) error {
	if password == "" {
		return ErrEmptyPassword
	}
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if !requireStrong {
		return nil
	}

	var (
		hasUpper   = regexp.MustCompile(`[A-Z]`).MatchString(password)
		hasLower   = regexp.MustCompile(`[a-z]`).MatchString(password)
		hasNumber  = regexp.MustCompile(`[0-9]`).MatchString(password)
		hasSpecial = regexp.MustCompile(`[!@#$%^&*()_+\-=\[\]{};':"\\|,.<>\/?]`).MatchString(password)
	)
	if !hasUpper || !hasLower || !hasNumber || !hasSpecial {
		return ErrWeakPassword
	}
	return nil
}

// loginRe matches the §6 login-path-segment regex.
var loginRe = regexp.MustCompile(`^[A-Za-z0-9._-]{1,39}$`)

// ValidateUsername validates a dashboard auth username against the same
// shape the HTTP surface requires for a login path segment.
func ValidateUsername(username string) error {
	if !loginRe.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}
