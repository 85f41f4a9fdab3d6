package oauth

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
)

func TestGeneratePKCE(t *testing.T) {
	pkce, err := GeneratePKCE()
	if err != nil {
		t.Fatalf("GeneratePKCE() error = %v", err)
	}

	if len(pkce.CodeVerifier) != 128 {
		t.Errorf("CodeVerifier length = %d, want 128", len(pkce.CodeVerifier))
	}

	if pkce.CodeChallengeMethod != "S256" {
		t.Errorf("CodeChallengeMethod = %q, want S256", pkce.CodeChallengeMethod)
	}

	// The verifier must only use unreserved base64url characters.
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	for _, r := range pkce.CodeVerifier {
		if !strings.ContainsRune(alphabet, r) {
			t.Fatalf("CodeVerifier contains reserved character %q", r)
		}
	}

	// The challenge must be the base64url-encoded SHA256 of the verifier.
	hash := sha256.Sum256([]byte(pkce.CodeVerifier))
	want := base64.RawURLEncoding.EncodeToString(hash[:])
	if pkce.CodeChallenge != want {
		t.Errorf("CodeChallenge = %q, want %q", pkce.CodeChallenge, want)
	}
}

func TestGeneratePKCE_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		pkce, err := GeneratePKCE()
		if err != nil {
			t.Fatalf("GeneratePKCE() error = %v", err)
		}
		if seen[pkce.CodeVerifier] {
			t.Fatal("GeneratePKCE() produced a duplicate verifier")
		}
		seen[pkce.CodeVerifier] = true
	}
}

func TestVerifyPKCE(t *testing.T) {
	pkce, err := GeneratePKCE()
	if err != nil {
		t.Fatalf("GeneratePKCE() error = %v", err)
	}

	if !VerifyPKCE(pkce.CodeVerifier, pkce.CodeChallenge) {
		t.Error("VerifyPKCE() = false for a generated pair")
	}

	tampered := "x" + pkce.CodeVerifier[1:]
	if VerifyPKCE(tampered, pkce.CodeChallenge) {
		t.Error("VerifyPKCE() = true for a tampered verifier")
	}
}

func TestGenerateState(t *testing.T) {
	a, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState() error = %v", err)
	}
	b, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState() error = %v", err)
	}

	if len(a) < 32 {
		t.Errorf("state length = %d, want >= 32", len(a))
	}
	if a == b {
		t.Error("GenerateState() produced identical values")
	}
}

func TestConstantTimeEquals(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want bool
	}{
		{name: "equal strings", a: "state-abc-123", b: "state-abc-123", want: true},
		{name: "empty strings", a: "", b: "", want: true},
		{name: "length mismatch", a: "short", b: "much-longer-state", want: false},
		{name: "first byte differs", a: "Xtate-abc-123", b: "state-abc-123", want: false},
		{name: "middle byte differs", a: "state-Xbc-123", b: "state-abc-123", want: false},
		{name: "last byte differs", a: "state-abc-12X", b: "state-abc-123", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConstantTimeEquals(tt.a, tt.b); got != tt.want {
				t.Errorf("ConstantTimeEquals(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestConstantTimeEquals_EveryPosition(t *testing.T) {
	base := "abcdefghijklmnop"
	for i := 0; i < len(base); i++ {
		mutated := base[:i] + "#" + base[i+1:]
		if ConstantTimeEquals(base, mutated) {
			t.Errorf("ConstantTimeEquals() = true with differing byte at position %d", i)
		}
	}
}
