// Package licensekey generates and recognizes issued license keys.
package licensekey

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
)

// Key format: lic_{env}_{secret}
// Example: lic_live_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b
const (
	SecretLen = 32 // hex encoded 16 bytes
)

// Environment indicators for key prefix.
const (
	EnvLive = "live"
	EnvTest = "test"
)

var (
	// ErrInvalidKeyFormat indicates the key is not a generated license key.
	ErrInvalidKeyFormat = errors.New("invalid license key format")

	keyFormatRegex = regexp.MustCompile(`^lic_(live|test)_([a-f0-9]{32})$`)
)

// Generate creates a new random license key for env. Unknown environments
// fall back to EnvLive.
func Generate(env string) (string, error) {
	if env != EnvLive && env != EnvTest {
		env = EnvLive
	}

	secretBytes := make([]byte, SecretLen/2)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}

	return fmt.Sprintf("lic_%s_%s", env, hex.EncodeToString(secretBytes)), nil
}

// Parsed holds the parts of a generated license key.
type Parsed struct {
	Env    string
	Secret string
}

// Parse splits a generated key into its parts.
// Keys issued by other systems are valid license keys but do not parse.
func Parse(key string) (*Parsed, error) {
	matches := keyFormatRegex.FindStringSubmatch(key)
	if matches == nil {
		return nil, ErrInvalidKeyFormat
	}
	return &Parsed{Env: matches[1], Secret: matches[2]}, nil
}

// IsGenerated reports whether key has the generated format.
func IsGenerated(key string) bool {
	return keyFormatRegex.MatchString(key)
}
