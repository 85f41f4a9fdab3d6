package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authcore/internal/audit"
	"authcore/internal/config"
	pkgoauth "authcore/pkg/oauth"
)

// captureSink records audit events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *captureSink) Log(event audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *captureSink) find(action string, outcome audit.Outcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.Action == action && e.Outcome == outcome {
			return true
		}
	}
	return false
}

func testConfig(tokenEndpoint, identityEndpoint, revocationEndpoint string) config.OAuthConfig {
	return config.OAuthConfig{
		Enabled:               true,
		ClientID:              "client-123",
		ClientSecret:          "secret-456",
		Issuer:                "https://auth.example.com",
		AuthorizationEndpoint: "https://auth.example.com/authorize",
		TokenEndpoint:         tokenEndpoint,
		IdentityEndpoint:      identityEndpoint,
		RevocationEndpoint:    revocationEndpoint,
		RedirectURI:           "https://api.example.com/callback",
		Scopes:                []string{"repo", "read:org"},
	}
}

func TestStartFlow(t *testing.T) {
	issuer := NewIssuer(testConfig("https://auth.example.com/token", "", ""), nil)

	flow, err := issuer.StartFlow(map[string]string{"login": "alice"})
	require.NoError(t, err)

	assert.NotEmpty(t, flow.State)
	assert.Len(t, flow.CodeVerifier, 128)

	u, err := url.Parse(flow.AuthorizationURL)
	require.NoError(t, err)
	q := u.Query()

	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-123", q.Get("client_id"))
	assert.Equal(t, "https://api.example.com/callback", q.Get("redirect_uri"))
	assert.Equal(t, flow.State, q.Get("state"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "repo read:org", q.Get("scope"))
	assert.Equal(t, "alice", q.Get("login"))

	// The embedded challenge must derive from the returned verifier.
	assert.Equal(t, pkgoauth.DeriveChallenge(flow.CodeVerifier), q.Get("code_challenge"))
}

func TestStartFlow_IndependentStateAndVerifier(t *testing.T) {
	issuer := NewIssuer(testConfig("https://auth.example.com/token", "", ""), nil)

	a, err := issuer.StartFlow(nil)
	require.NoError(t, err)
	b, err := issuer.StartFlow(nil)
	require.NoError(t, err)

	assert.NotEqual(t, a.State, b.State)
	assert.NotEqual(t, a.CodeVerifier, b.CodeVerifier)
	assert.NotEqual(t, a.State, a.CodeVerifier)
}

func TestStartFlow_NotConfigured(t *testing.T) {
	issuer := NewIssuer(config.OAuthConfig{}, nil)

	_, err := issuer.StartFlow(nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestExchangeCode(t *testing.T) {
	sink := &captureSink{}
	var gotForm url.Values

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-abc","refresh_token":"ref-xyz","scope":"repo read:org"}`))
	}))
	defer server.Close()

	issuer := NewIssuer(testConfig(server.URL, "", ""), sink)

	token, err := issuer.ExchangeCode(context.Background(), "code-1", "verifier-1", "state-1")
	require.NoError(t, err)

	assert.Equal(t, "tok-abc", token.Value)
	assert.Equal(t, "ref-xyz", token.RefreshValue)
	assert.Equal(t, "Bearer", token.TokenType, "token type defaults to Bearer")
	assert.False(t, token.ExpiresAt.IsZero(), "expiry defaults to one hour from now")
	assert.Equal(t, []string{"repo", "read:org"}, token.GrantedScopes)

	assert.Equal(t, "authorization_code", gotForm.Get("grant_type"))
	assert.Equal(t, "client-123", gotForm.Get("client_id"))
	assert.Equal(t, "secret-456", gotForm.Get("client_secret"))
	assert.Equal(t, "code-1", gotForm.Get("code"))
	assert.Equal(t, "verifier-1", gotForm.Get("code_verifier"))
	assert.Equal(t, "state-1", gotForm.Get("state"))

	assert.True(t, sink.find("oauth.exchange_code", audit.OutcomeSuccess))
}

func TestExchangeCode_Accepts2xxRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"access_token":"tok-created"}`))
	}))
	defer server.Close()

	issuer := NewIssuer(testConfig(server.URL, "", ""), nil)

	token, err := issuer.ExchangeCode(context.Background(), "code-1", "verifier-1", "")
	require.NoError(t, err, "any 2xx status with a valid body is a success")
	assert.Equal(t, "tok-created", token.Value)
}

func TestExchangeCode_UpstreamStatusError(t *testing.T) {
	sink := &captureSink{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
	}))
	defer server.Close()

	issuer := NewIssuer(testConfig(server.URL, "", ""), sink)

	_, err := issuer.ExchangeCode(context.Background(), "code-1", "verifier-1", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400", "error must carry the upstream status")
	assert.Contains(t, err.Error(), "invalid_grant", "error must carry a body excerpt")
	assert.True(t, sink.find("oauth.exchange_code", audit.OutcomeFailure),
		"a failure audit event must be emitted before the error propagates")
}

func TestExchangeCode_BodyLevelError(t *testing.T) {
	// A 200 response can still carry a body-level error field.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error":"access_denied","error_description":"user declined"}`))
	}))
	defer server.Close()

	issuer := NewIssuer(testConfig(server.URL, "", ""), &captureSink{})

	_, err := issuer.ExchangeCode(context.Background(), "code-1", "verifier-1", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_denied")
}

func TestExchangeCode_TamperedVerifierStillAttempted(t *testing.T) {
	// A verifier mismatch is the authorization server's concern: the
	// exchange request must still go out, but the derived challenge is
	// checkable locally for layers that choose to pre-validate.
	var requestSeen bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestSeen = true
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	issuer := NewIssuer(testConfig(server.URL, "", ""), &captureSink{})

	flow, err := issuer.StartFlow(nil)
	require.NoError(t, err)

	u, _ := url.Parse(flow.AuthorizationURL)
	issuedChallenge := u.Query().Get("code_challenge")

	tampered := "x" + flow.CodeVerifier[1:]
	assert.False(t, pkgoauth.VerifyPKCE(tampered, issuedChallenge),
		"tampered verifier must be detectable against the issued challenge")

	_, err = issuer.ExchangeCode(context.Background(), "code-1", tampered, flow.State)
	require.Error(t, err)
	assert.True(t, requestSeen, "exchange must still be attempted despite the mismatch")
}

func TestRefresh_PreservesRefreshToken(t *testing.T) {
	sink := &captureSink{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "ref-old", r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		// No refresh_token in the response: the old one must be kept.
		w.Write([]byte(`{"access_token":"tok-new","expires_in":1800}`))
	}))
	defer server.Close()

	issuer := NewIssuer(testConfig(server.URL, "", ""), sink)

	token, err := issuer.Refresh(context.Background(), "ref-old")
	require.NoError(t, err)

	assert.Equal(t, "tok-new", token.Value)
	assert.Equal(t, "ref-old", token.RefreshValue, "prior refresh token must be preserved when the server omits one")
	assert.True(t, sink.find("oauth.refresh", audit.OutcomeSuccess))
}

func TestRefresh_ReplacesRefreshToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-new","refresh_token":"ref-new"}`))
	}))
	defer server.Close()

	issuer := NewIssuer(testConfig(server.URL, "", ""), nil)

	token, err := issuer.Refresh(context.Background(), "ref-old")
	require.NoError(t, err)
	assert.Equal(t, "ref-new", token.RefreshValue)
}

func TestValidate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("X-OAuth-Scopes", "repo, read:org, user:email")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"login":"alice","id":7}`))
	}))
	defer server.Close()

	issuer := NewIssuer(testConfig("https://auth.example.com/token", server.URL, ""), nil)

	result := issuer.Validate(context.Background(), "tok-abc")
	assert.True(t, result.Valid)
	assert.Equal(t, "alice", result.Subject)
	assert.Equal(t, []string{"repo", "read:org", "user:email"}, result.Scopes)

	// An invalid token surfaces as a result, never as an error.
	result = issuer.Validate(context.Background(), "tok-wrong")
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Error)
}

func TestValidate_NetworkFailureIsResult(t *testing.T) {
	issuer := NewIssuer(testConfig("https://auth.example.com/token", "http://127.0.0.1:1", ""), nil)

	result := issuer.Validate(context.Background(), "tok-abc")
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Error)
}

func TestValidateState(t *testing.T) {
	issuer := NewIssuer(testConfig("https://auth.example.com/token", "", ""), nil)

	assert.True(t, issuer.ValidateState("state-abc", "state-abc"))
	assert.False(t, issuer.ValidateState("state-abd", "state-abc"))
	assert.False(t, issuer.ValidateState("short", "state-abc"), "length mismatch returns false, not an error")
	assert.False(t, issuer.ValidateState("", "state-abc"))
}

func TestRevoke(t *testing.T) {
	var gotForm url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	issuer := NewIssuer(testConfig("https://auth.example.com/token", "", server.URL), &captureSink{})

	require.NoError(t, issuer.Revoke(context.Background(), "tok-abc"))
	assert.Equal(t, "tok-abc", gotForm.Get("token"))
	assert.Equal(t, "access_token", gotForm.Get("token_type_hint"))
}

func TestRevoke_PropagatesFailure(t *testing.T) {
	sink := &captureSink{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	issuer := NewIssuer(testConfig("https://auth.example.com/token", "", server.URL), sink)

	err := issuer.Revoke(context.Background(), "tok-abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.True(t, sink.find("oauth.revoke", audit.OutcomeFailure))
}

func TestParseScopesHeader(t *testing.T) {
	tests := []struct {
		header string
		want   []string
	}{
		{header: "repo, read:org", want: []string{"repo", "read:org"}},
		{header: "repo", want: []string{"repo"}},
		{header: "", want: nil},
		{header: " repo , , read:org ", want: []string{"repo", "read:org"}},
	}

	for _, tt := range tests {
		got := parseScopesHeader(tt.header)
		if !strings.EqualFold(strings.Join(got, "|"), strings.Join(tt.want, "|")) {
			t.Errorf("parseScopesHeader(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}
