package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

const (
	// pkceVerifierBytes is the number of random bytes for the PKCE code
	// verifier. 96 bytes base64url-encode to 128 characters, the maximum
	// verifier length permitted by RFC 7636.
	pkceVerifierBytes = 96

	// stateBytes is the number of random bytes for the OAuth state
	// parameter. 32 bytes encode to 43 base64url characters, satisfying
	// OAuth servers that require a minimum of 32 characters.
	stateBytes = 32
)

// PKCEChallenge represents a PKCE (Proof Key for Code Exchange) pair.
// PKCE is required for OAuth 2.1 public clients to prevent authorization
// code interception.
type PKCEChallenge struct {
	// CodeVerifier is the cryptographically random string. It is kept
	// secret by the flow initiator and only sent at code exchange.
	CodeVerifier string

	// CodeChallenge is the SHA256 hash of the verifier (base64url-encoded).
	// This is sent in the authorization request.
	CodeChallenge string

	// CodeChallengeMethod is always "S256" (plain is not allowed in OAuth 2.1).
	CodeChallengeMethod string
}

// GeneratePKCE generates a new PKCE code verifier and challenge.
// The code verifier is 96 random bytes (768 bits), base64url-encoded to a
// 128-character string from the unreserved-character alphabet. The code
// challenge is the S256 (SHA256) hash of the verifier.
func GeneratePKCE() (*PKCEChallenge, error) {
	verifier, challenge, err := GeneratePKCERaw()
	if err != nil {
		return nil, err
	}

	return &PKCEChallenge{
		CodeVerifier:        verifier,
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
	}, nil
}

// GeneratePKCERaw generates a PKCE code verifier and challenge as raw strings.
func GeneratePKCERaw() (verifier, challenge string, err error) {
	verifierBytes := make([]byte, pkceVerifierBytes)
	if _, err := rand.Read(verifierBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes for PKCE: %w", err)
	}

	// Base64url-encode the verifier (no padding, URL-safe)
	verifier = base64.RawURLEncoding.EncodeToString(verifierBytes)
	challenge = DeriveChallenge(verifier)

	return verifier, challenge, nil
}

// DeriveChallenge computes the S256 code challenge for a verifier:
// SHA256(verifier), base64url-encoded without padding.
func DeriveChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// VerifyPKCE reports whether the given verifier derives the given challenge.
func VerifyPKCE(verifier, challenge string) bool {
	return ConstantTimeEquals(DeriveChallenge(verifier), challenge)
}

// GenerateState generates a random state parameter for OAuth.
// The state is used to prevent CSRF attacks and link the authorization
// response back to the original request.
//
// Returns a base64url-encoded random string.
func GenerateState() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ConstantTimeEquals compares two strings in constant time with respect to
// their contents. A length mismatch returns false immediately; length is
// not secret here, only the position of any differing byte.
func ConstantTimeEquals(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
