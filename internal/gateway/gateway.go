package gateway

import (
	"context"
	"strings"

	"authcore/internal/appauth"
	"authcore/internal/audit"
	"authcore/internal/config"
	"authcore/internal/oauth"
	"authcore/internal/policy"
	"authcore/internal/ratelimit"
	pkgoauth "authcore/pkg/oauth"
)

// Gateway composes the credential issuers, the rate limiter and the policy
// engine into the HTTP-facing bearer-challenge contract. It is the only
// component with an external wire-protocol surface.
type Gateway struct {
	cfg config.Config

	oauthIssuer *oauth.Issuer
	appIssuer   *appauth.Issuer
	limiter     *ratelimit.Limiter
	engine      *policy.Engine
	sink        audit.Sink
}

// New creates a gateway. Either issuer may be nil when the corresponding
// grant model is disabled; limiter and engine are nil outside enterprise
// mode.
func New(cfg config.Config, oauthIssuer *oauth.Issuer, appIssuer *appauth.Issuer,
	limiter *ratelimit.Limiter, engine *policy.Engine, sink audit.Sink) *Gateway {
	return &Gateway{
		cfg:         cfg,
		oauthIssuer: oauthIssuer,
		appIssuer:   appIssuer,
		limiter:     limiter,
		engine:      engine,
		sink:        sink,
	}
}

// BearerResult is the outcome of bearer extraction and validation for one
// inbound request.
type BearerResult struct {
	Valid   bool
	Subject string
	Scopes  []string

	// Malformed distinguishes a header that failed local parsing from a
	// token the resource server rejected. Malformed headers are rejected
	// without any network call.
	Malformed bool

	Error string
}

// ValidateBearer extracts the token from an Authorization header value and
// validates it against the resource server's identity endpoint.
func (g *Gateway) ValidateBearer(ctx context.Context, authorizationHeader string) BearerResult {
	token, err := pkgoauth.ParseBearerToken(authorizationHeader)
	if err != nil {
		return BearerResult{Valid: false, Malformed: true, Error: err.Error()}
	}

	if g.oauthIssuer == nil {
		return BearerResult{Valid: false, Error: "no token validator configured"}
	}

	result := g.oauthIssuer.Validate(ctx, token)
	return BearerResult{
		Valid:   result.Valid,
		Subject: result.Subject,
		Scopes:  result.Scopes,
		Error:   result.Error,
	}
}

// ChallengeOptions selects the optional parameters of a bearer challenge.
type ChallengeOptions struct {
	Scope            string
	Error            string
	ErrorDescription string
}

// NewChallenge builds an RFC 6750 challenge. The resource-metadata
// discovery URL is always attached so clients can bootstrap without prior
// configuration.
func (g *Gateway) NewChallenge(opts ChallengeOptions) *pkgoauth.Challenge {
	return &pkgoauth.Challenge{
		Realm:               g.cfg.Server.Realm,
		Scope:               opts.Scope,
		Error:               opts.Error,
		ErrorDescription:    opts.ErrorDescription,
		ResourceMetadataURL: g.resourceMetadataURL(),
	}
}

func (g *Gateway) resourceMetadataURL() string {
	return strings.TrimSuffix(g.cfg.Server.PublicURL, "/") + WellKnownPath
}
