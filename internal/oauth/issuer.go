package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"authcore/internal/audit"
	"authcore/internal/config"
	pkgoauth "authcore/pkg/oauth"
	"authcore/pkg/logging"
)

// ErrNotConfigured is returned when the issuer is used without client
// credentials. This is a configuration error: fatal to the operation and
// never silently ignored.
var ErrNotConfigured = errors.New("oauth issuer is not configured: missing client credentials")

// defaultTokenLifetime applies when the token endpoint omits expires_in.
const defaultTokenLifetime = 3600 * time.Second

// scopesHeader is the response header carrying granted scopes on the
// identity endpoint, as a comma-space-delimited list.
const scopesHeader = "X-OAuth-Scopes"

// errorBodyExcerptLen bounds how much of an upstream error body goes into
// wrapped errors. Enough to diagnose, short enough not to flood logs.
const errorBodyExcerptLen = 200

// Issuer performs OAuth 2.1 authorization-code flows with PKCE against an
// external authorization server. It is an explicitly constructed service
// object: it holds no global state and reports through an injected audit
// sink.
type Issuer struct {
	cfg        config.OAuthConfig
	oauthCfg   oauth2.Config
	sink       audit.Sink
	httpClient *http.Client
	clock      func() time.Time
}

// Option configures the Issuer.
type Option func(*Issuer)

// WithHTTPClient overrides the HTTP client used for token and identity
// endpoint calls.
func WithHTTPClient(client *http.Client) Option {
	return func(i *Issuer) {
		i.httpClient = client
	}
}

// WithClock overrides the time source for tests.
func WithClock(clock func() time.Time) Option {
	return func(i *Issuer) {
		i.clock = clock
	}
}

// NewIssuer creates an OAuth issuer from configuration. The audit sink
// receives success/failure events for every credential operation.
func NewIssuer(cfg config.OAuthConfig, sink audit.Sink, opts ...Option) *Issuer {
	i := &Issuer{
		cfg: cfg,
		oauthCfg: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthorizationEndpoint,
				TokenURL: cfg.TokenEndpoint,
			},
		},
		sink:       sink,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// configured reports whether the issuer has usable client credentials.
func (i *Issuer) configured() bool {
	return i.cfg.ClientID != "" && i.cfg.ClientSecret != ""
}

// StartFlow generates a PKCE pair and state and builds the authorization
// URL. Nothing is persisted: the caller holds the state and verifier for
// the exchange step.
func (i *Issuer) StartFlow(extraParams map[string]string) (*FlowStart, error) {
	if !i.configured() {
		return nil, ErrNotConfigured
	}

	pkce, err := pkgoauth.GeneratePKCE()
	if err != nil {
		return nil, fmt.Errorf("failed to generate PKCE pair: %w", err)
	}

	state, err := pkgoauth.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	authOpts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", pkce.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", pkce.CodeChallengeMethod),
	}
	for k, v := range extraParams {
		authOpts = append(authOpts, oauth2.SetAuthURLParam(k, v))
	}

	authURL := i.oauthCfg.AuthCodeURL(state, authOpts...)

	logging.Debug("OAuth", "Started authorization flow (state=%s)", logging.TruncateSecret(state))

	return &FlowStart{
		AuthorizationURL: authURL,
		State:            state,
		CodeVerifier:     pkce.CodeVerifier,
	}, nil
}

// ExchangeCode exchanges an authorization code for an access token using
// the PKCE verifier. Upstream errors are wrapped with status and a body
// excerpt, reported to the audit log, then propagated.
func (i *Issuer) ExchangeCode(ctx context.Context, code, codeVerifier, state string) (*AccessToken, error) {
	if !i.configured() {
		return nil, ErrNotConfigured
	}

	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("client_id", i.cfg.ClientID)
	data.Set("client_secret", i.cfg.ClientSecret)
	data.Set("code", code)
	data.Set("code_verifier", codeVerifier)
	data.Set("redirect_uri", i.cfg.RedirectURI)
	if state != "" {
		data.Set("state", state)
	}

	token, err := i.postTokenEndpoint(ctx, data)
	if err != nil {
		i.emit("oauth.exchange_code", audit.OutcomeFailure, map[string]string{"error": err.Error()})
		return nil, err
	}

	i.emit("oauth.exchange_code", audit.OutcomeSuccess, nil)
	logging.Debug("OAuth", "Exchanged authorization code for token (expires %v)", token.ExpiresAt)
	return token, nil
}

// Refresh obtains a replacement token via the refresh_token grant. When
// the server omits a new refresh token the prior one is preserved on the
// returned credential.
func (i *Issuer) Refresh(ctx context.Context, refreshToken string) (*AccessToken, error) {
	if !i.configured() {
		return nil, ErrNotConfigured
	}
	if refreshToken == "" {
		return nil, fmt.Errorf("no refresh token available")
	}

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("client_id", i.cfg.ClientID)
	data.Set("client_secret", i.cfg.ClientSecret)
	data.Set("refresh_token", refreshToken)

	token, err := i.postTokenEndpoint(ctx, data)
	if err != nil {
		i.emit("oauth.refresh", audit.OutcomeFailure, map[string]string{"error": err.Error()})
		return nil, err
	}

	if token.RefreshValue == "" {
		token.RefreshValue = refreshToken
	}

	i.emit("oauth.refresh", audit.OutcomeSuccess, nil)
	logging.Debug("OAuth", "Refreshed token (expires %v)", token.ExpiresAt)
	return token, nil
}

// Validate checks a bearer token against the resource server's identity
// endpoint. It never returns an error: failures surface as an invalid
// result so the request pipeline can translate them into challenges.
func (i *Issuer) Validate(ctx context.Context, token string) ValidationResult {
	if i.cfg.IdentityEndpoint == "" {
		return ValidationResult{Valid: false, Error: "no identity endpoint configured"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.cfg.IdentityEndpoint, nil)
	if err != nil {
		return ValidationResult{Valid: false, Error: fmt.Sprintf("failed to create identity request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return ValidationResult{Valid: false, Error: fmt.Sprintf("identity request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logging.Debug("OAuth", "Token validation rejected: status=%d", resp.StatusCode)
		return ValidationResult{Valid: false, Error: fmt.Sprintf("identity endpoint returned status %d", resp.StatusCode)}
	}

	var identity identityResponse
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return ValidationResult{Valid: false, Error: fmt.Sprintf("failed to parse identity response: %v", err)}
	}

	subject := identity.Login
	if subject == "" && identity.ID != 0 {
		subject = strconv.FormatInt(identity.ID, 10)
	}

	return ValidationResult{
		Valid:   true,
		Subject: subject,
		Scopes:  parseScopesHeader(resp.Header.Get(scopesHeader)),
	}
}

// ValidateState compares a received state against the expected one in
// constant time with respect to the contents. Length mismatch returns
// false rather than an error.
func (i *Issuer) ValidateState(received, expected string) bool {
	return pkgoauth.ConstantTimeEquals(received, expected)
}

// Revoke posts the token to the revocation endpoint. Best effort from the
// caller's perspective, but failures are propagated so callers can log
// them.
func (i *Issuer) Revoke(ctx context.Context, token string) error {
	if !i.configured() {
		return ErrNotConfigured
	}
	if i.cfg.RevocationEndpoint == "" {
		return fmt.Errorf("no revocation endpoint configured")
	}

	data := url.Values{}
	data.Set("token", token)
	data.Set("token_type_hint", "access_token")
	data.Set("client_id", i.cfg.ClientID)
	data.Set("client_secret", i.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.cfg.RevocationEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create revocation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := i.httpClient.Do(req)
	if err != nil {
		i.emit("oauth.revoke", audit.OutcomeFailure, map[string]string{"error": err.Error()})
		return fmt.Errorf("revocation request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("revocation failed with status %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		i.emit("oauth.revoke", audit.OutcomeFailure, map[string]string{"error": err.Error()})
		return err
	}

	i.emit("oauth.revoke", audit.OutcomeSuccess, nil)
	return nil
}

// postTokenEndpoint performs a form POST against the token endpoint and
// parses the response into an AccessToken with defaults applied.
func (i *Issuer) postTokenEndpoint(ctx context.Context, data url.Values) (*AccessToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.cfg.TokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logging.Debug("OAuth", "Token endpoint rejected request: status=%d body=%s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("token endpoint returned %d %s: %s",
			resp.StatusCode, http.StatusText(resp.StatusCode), bodyExcerpt(body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	// A 2xx response can still carry a body-level error field.
	if tr.Error != "" {
		return nil, fmt.Errorf("token endpoint returned error %q: %s", tr.Error, tr.ErrorDescription)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint response is missing access_token")
	}

	tokenType := tr.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	lifetime := defaultTokenLifetime
	if tr.ExpiresIn > 0 {
		lifetime = time.Duration(tr.ExpiresIn) * time.Second
	}

	var scopes []string
	if tr.Scope != "" {
		scopes = strings.Fields(tr.Scope)
	}

	return &AccessToken{
		Value:         tr.AccessToken,
		RefreshValue:  tr.RefreshToken,
		TokenType:     tokenType,
		ExpiresAt:     i.clock().Add(lifetime),
		GrantedScopes: scopes,
	}, nil
}

func (i *Issuer) emit(action string, outcome audit.Outcome, details map[string]string) {
	if i.sink == nil {
		return
	}
	i.sink.Log(audit.Event{
		Action:  action,
		Outcome: outcome,
		Details: details,
		Source:  "oauth-issuer",
	})
}

// parseScopesHeader splits the comma-space-delimited scope list carried on
// the identity endpoint response.
func parseScopesHeader(header string) []string {
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	scopes := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			scopes = append(scopes, trimmed)
		}
	}
	return scopes
}

func bodyExcerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > errorBodyExcerptLen {
		return s[:errorBodyExcerptLen] + "..."
	}
	return s
}
