package auth

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Line format, similar to unix passwd files:
//
//	username:digest,hexhash,hexsalt:flag1,flag2
//
// One user per line. Bcrypt records leave the salt field empty.

const (
	fieldSeparator      = ":"
	credentialSeparator = ","
)

// ErrInvalidFormat reports a malformed serialized user record
var ErrInvalidFormat = errors.New("invalid user record format")

// SerializeUsers renders users one per line
func SerializeUsers(users []*User) []byte {
	var sb strings.Builder
	for _, user := range users {
		sb.WriteString(serializeUser(user))
		sb.WriteString("\n")
	}
	return []byte(sb.String())
}

// DeserializeUsers parses serialized user records, skipping blank lines.
// Format errors carry the offending line number.
func DeserializeUsers(data []byte) ([]*User, error) {
	var out []*User
	for i, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		user, err := deserializeUser(line, i+1)
		if err != nil {
			return nil, err
		}
		out = append(out, user)
	}
	return out, nil
}

func serializeUser(user *User) string {
	return strings.Join([]string{
		user.Username,
		serializeCredential(user.Credential),
		strings.Join(user.Flags, credentialSeparator),
	}, fieldSeparator)
}

func serializeCredential(cred Credential) string {
	return strings.Join([]string{
		cred.Digest,
		hex.EncodeToString(cred.Hash),
		hex.EncodeToString(cred.Salt),
	}, credentialSeparator)
}

func deserializeUser(line string, lineNumber int) (*User, error) {
	parts := strings.Split(line, fieldSeparator)
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: wrong number of line fields, expected 3, got %d [line %d]",
			ErrInvalidFormat, len(parts), lineNumber)
	}

	cred, err := deserializeCredential(parts[1], lineNumber)
	if err != nil {
		return nil, err
	}

	var flags []string
	for _, flag := range strings.Split(parts[2], credentialSeparator) {
		if trimmed := strings.TrimSpace(flag); trimmed != "" {
			flags = append(flags, trimmed)
		}
	}

	// Ids are not part of the line format; rehydrated users get fresh ones
	user, err := NewUserWithCredential(parts[0], cred, flags...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v [line %d]", ErrInvalidFormat, err, lineNumber)
	}
	return user, nil
}

func deserializeCredential(part string, lineNumber int) (Credential, error) {
	split := strings.Split(part, credentialSeparator)
	if len(split) != 3 {
		return Credential{}, fmt.Errorf("%w: wrong number of credential fields [line %d]",
			ErrInvalidFormat, lineNumber)
	}
	if split[0] != DigestBcrypt && split[0] != DigestSHA256 {
		return Credential{}, fmt.Errorf("%w: %q [line %d]", ErrUnknownDigest, split[0], lineNumber)
	}

	hash, err := hex.DecodeString(split[1])
	if err != nil {
		return Credential{}, fmt.Errorf("%w: bad hash encoding [line %d]", ErrInvalidFormat, lineNumber)
	}
	salt, err := hex.DecodeString(split[2])
	if err != nil {
		return Credential{}, fmt.Errorf("%w: bad salt encoding [line %d]", ErrInvalidFormat, lineNumber)
	}
	return Credential{Digest: split[0], Hash: hash, Salt: salt}, nil
}
