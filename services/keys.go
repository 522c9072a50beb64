package services

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	KeyPrefix = "sk_"

	keySecretBytes = 32
	keySaltBytes   = 16
	keyIterations  = 100_000
	keyHashBytes   = 64
)

var ErrMalformedKeyHash = errors.New("malformed key hash")

// GenerateKey returns a new plaintext key: sk_<64 hex>_<base36 unix millis>.
func GenerateKey() (string, error) {
	b := make([]byte, keySecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate key material: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(b) + "_" + strconv.FormatInt(time.Now().UnixMilli(), 36), nil
}

// HashKey derives the stored form "<hex salt>$<hex pbkdf2-sha512>".
func HashKey(plain string) (string, error) {
	salt := make([]byte, keySaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	saltHex := hex.EncodeToString(salt)
	return saltHex + "$" + deriveKeyHash(plain, saltHex), nil
}

// VerifyKey reports whether plain matches a hash produced by HashKey. The
// dashboard never reads keys back; the detection service checks presented
// keys against the stored api_keys.hashed_key with it.
func VerifyKey(stored, plain string) (bool, error) {
	saltHex, hashHex, ok := strings.Cut(stored, "$")
	if !ok || saltHex == "" || len(hashHex) != keyHashBytes*2 {
		return false, ErrMalformedKeyHash
	}
	if _, err := hex.DecodeString(hashHex); err != nil {
		return false, ErrMalformedKeyHash
	}
	derived := deriveKeyHash(plain, saltHex)
	return subtle.ConstantTimeCompare([]byte(derived), []byte(hashHex)) == 1, nil
}

// The hex salt string itself is the PBKDF2 salt, matching keys already stored.
func deriveKeyHash(plain, saltHex string) string {
	return hex.EncodeToString(pbkdf2.Key([]byte(plain), []byte(saltHex), keyIterations, keyHashBytes, sha512.New))
}
