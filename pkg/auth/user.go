// Package auth holds kernel account records and their durable line format.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrEmptyPassword      = errors.New("password cannot be empty")
	ErrInvalidUsername    = errors.New("username must be 3-50 characters of [a-zA-Z0-9_-]")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownDigest      = errors.New("unknown credential digest")
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 50
	BcryptCost        = 12

	// DigestBcrypt is the digest used for newly created credentials
	DigestBcrypt = "bcrypt"
	// DigestSHA256 is accepted when reading records written by older
	// versions, which stored salted SHA-256 hashes
	DigestSHA256 = "SHA-256"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// User represents an account in the system
type User struct {
	ID         string
	Username   string
	Credential Credential
	Flags      []string
}

// HasFlag reports whether the user carries the given flag
func (u *User) HasFlag(flag string) bool {
	for _, f := range u.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Credential is a digest identifier plus hash material. Bcrypt credentials
// carry their salt inside the hash; legacy SHA-256 credentials store it
// separately.
type Credential struct {
	Digest string
	Hash   []byte
	Salt   []byte
}

// NewCredential hashes a password with bcrypt
func NewCredential(password string) (Credential, error) {
	if password == "" {
		return Credential{}, ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return Credential{}, fmt.Errorf("hash password: %w", err)
	}
	return Credential{Digest: DigestBcrypt, Hash: hash}, nil
}

// Matches reports whether the password matches the credential
func (c Credential) Matches(password string) bool {
	switch c.Digest {
	case DigestBcrypt:
		return bcrypt.CompareHashAndPassword(c.Hash, []byte(password)) == nil
	case DigestSHA256:
		h := sha256.New()
		h.Write(c.Salt)
		h.Write([]byte(password))
		return subtle.ConstantTimeCompare(h.Sum(nil), c.Hash) == 1
	default:
		return false
	}
}

// NewUser creates a user with a fresh id and a bcrypt credential
func NewUser(username, password string, flags ...string) (*User, error) {
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	cred, err := NewCredential(password)
	if err != nil {
		return nil, err
	}
	return &User{
		ID:         uuid.New().String(),
		Username:   username,
		Credential: cred,
		Flags:      flags,
	}, nil
}

func validateUsername(username string) error {
	if len(username) < MinUsernameLength || len(username) > MaxUsernameLength {
		return fmt.Errorf("%w: %q", ErrInvalidUsername, username)
	}
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("%w: %q", ErrInvalidUsername, username)
	}
	return nil
}
