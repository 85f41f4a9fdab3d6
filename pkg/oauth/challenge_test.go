package oauth

import (
	"testing"
)

func TestFormatWWWAuthenticate(t *testing.T) {
	tests := []struct {
		name      string
		challenge Challenge
		want      string
	}{
		{
			name: "full challenge",
			challenge: Challenge{
				Realm:               "authcore",
				Scope:               "repo read:org",
				Error:               "invalid_token",
				ErrorDescription:    "token expired",
				ResourceMetadataURL: "https://api.example.com/.well-known/oauth-protected-resource",
			},
			want: `Bearer realm="authcore", scope="repo read:org", error="invalid_token", error_description="token expired", resource_metadata="https://api.example.com/.well-known/oauth-protected-resource"`,
		},
		{
			name: "metadata only",
			challenge: Challenge{
				ResourceMetadataURL: "https://api.example.com/.well-known/oauth-protected-resource",
			},
			want: `Bearer resource_metadata="https://api.example.com/.well-known/oauth-protected-resource"`,
		},
		{
			name:      "bare challenge",
			challenge: Challenge{},
			want:      "Bearer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.challenge.FormatWWWAuthenticate(); got != tt.want {
				t.Errorf("FormatWWWAuthenticate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "standard header", header: "Bearer abc123", want: "abc123"},
		{name: "lowercase scheme", header: "bearer abc123", want: "abc123"},
		{name: "mixed case scheme", header: "BeArEr abc123", want: "abc123"},
		{name: "extra whitespace", header: "Bearer   abc123", want: "abc123"},
		{name: "empty header", header: "", wantErr: true},
		{name: "missing token", header: "Bearer", wantErr: true},
		{name: "wrong scheme", header: "Basic abc123", wantErr: true},
		{name: "too many parts", header: "Bearer abc 123", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBearerToken(tt.header)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBearerToken(%q) error = %v, wantErr %v", tt.header, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseBearerToken(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}
