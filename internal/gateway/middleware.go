package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"authcore/internal/audit"
	"authcore/internal/policy"
	"authcore/internal/ratelimit"
	pkgoauth "authcore/pkg/oauth"
	"authcore/pkg/logging"
)

// contextKey is the private type for request-context values set by the
// middleware.
type contextKey string

const (
	subjectContextKey contextKey = "authcore.subject"
	scopesContextKey  contextKey = "authcore.scopes"
)

// SubjectFromContext returns the authenticated subject of an admitted
// request.
func SubjectFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(subjectContextKey).(string)
	return s, ok
}

// ScopesFromContext returns the granted scopes of an admitted request.
func ScopesFromContext(ctx context.Context) ([]string, bool) {
	s, ok := ctx.Value(scopesContextKey).([]string)
	return s, ok
}

// challengeBody is the JSON body accompanying a 401 response.
type challengeBody struct {
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
	ResourceMetadata string `json:"resource_metadata"`
}

// Middleware implements the per-request authorization state machine:
// a missing Authorization header or an invalid bearer token produces a
// challenge, a valid token admits the request. In enterprise mode the
// admitted identity additionally passes through the rate limiter and the
// policy engine before the inner handler runs.
func (g *Gateway) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")

		if header == "" {
			g.writeChallenge(w, g.NewChallenge(ChallengeOptions{}), "")
			return
		}

		result := g.ValidateBearer(r.Context(), header)
		if !result.Valid {
			g.emitRequest("", audit.OutcomeFailure, r, map[string]string{"error": result.Error})
			g.writeChallenge(w, g.NewChallenge(ChallengeOptions{
				Error:            "invalid_token",
				ErrorDescription: result.Error,
			}), result.Error)
			return
		}

		if g.cfg.Enterprise.Enabled {
			if !g.admitEnterprise(w, r, result) {
				return
			}
		}

		g.emitRequest(result.Subject, audit.OutcomeSuccess, r, nil)

		ctx := context.WithValue(r.Context(), subjectContextKey, result.Subject)
		ctx = context.WithValue(ctx, scopesContextKey, result.Scopes)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// admitEnterprise runs the rate limiter and policy engine for a validated
// identity. Returns false when the response has already been written.
func (g *Gateway) admitEnterprise(w http.ResponseWriter, r *http.Request, bearer BearerResult) bool {
	check := g.limiter.Check(bearer.Subject, ratelimit.ClassAPI, ratelimit.CheckOptions{Increment: true})
	writeRateLimitHeaders(w, check)
	if !check.Allowed {
		g.emitRequest(bearer.Subject, audit.OutcomeFailure, r, map[string]string{"reason": "rate_limited"})
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error":             "rate_limit_exceeded",
			"error_description": fmt.Sprintf("limit of %d requests per window exceeded", check.Limit),
		})
		return false
	}

	if g.engine == nil {
		return true
	}

	decision := g.engine.Evaluate(policy.EvaluationContext{
		SubjectID:      bearer.Subject,
		OrganizationID: g.cfg.Enterprise.OrganizationID,
		Scopes:         bearer.Scopes,
		Tool:           r.URL.Path,
	})

	// The engine is side-effect free: advisory actions raised by matched
	// policies are forwarded here. Policy rate_limit actions are advisory
	// logging only; they do not consume limiter budget.
	g.forwardAdvisories(decision)

	if !decision.Allowed {
		g.emitRequest(bearer.Subject, audit.OutcomeFailure, r, map[string]string{"reason": "policy_denied"})
		writeJSON(w, http.StatusForbidden, map[string]interface{}{
			"error":             "access_denied",
			"error_description": "request denied by access policy",
			"requirements":      decision.Requirements,
		})
		return false
	}

	return true
}

func (g *Gateway) forwardAdvisories(decision policy.Decision) {
	if g.sink == nil {
		return
	}

	for _, entry := range decision.AuditEntries {
		g.sink.Log(audit.Event{
			SubjectID: entry.Subject,
			Action:    "policy.audit_log",
			Outcome:   audit.OutcomeSuccess,
			Resource:  entry.Resource,
			Details:   map[string]string{"policyId": entry.PolicyID},
			Source:    "gateway",
		})
	}

	for _, entry := range decision.RateLimitEntries {
		g.sink.Log(audit.Event{
			SubjectID: entry.Subject,
			Action:    "policy.rate_limit_advisory",
			Outcome:   audit.OutcomeSuccess,
			Details:   map[string]string{"policyId": entry.PolicyID},
			Source:    "gateway",
		})
	}
}

// writeChallenge writes the 401 response: WWW-Authenticate header plus a
// JSON body carrying the same error and the discovery URL.
func (g *Gateway) writeChallenge(w http.ResponseWriter, challenge *pkgoauth.Challenge, errMsg string) {
	w.Header().Set("WWW-Authenticate", challenge.FormatWWWAuthenticate())
	writeJSON(w, http.StatusUnauthorized, challengeBody{
		Error:            challenge.Error,
		ErrorDescription: challenge.ErrorDescription,
		ResourceMetadata: challenge.ResourceMetadataURL,
	})

	if errMsg != "" {
		logging.Debug("Gateway", "Challenged request: %s", errMsg)
	}
}

func writeRateLimitHeaders(w http.ResponseWriter, check ratelimit.Result) {
	if check.Limit < 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(check.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(check.Remaining))
	if !check.ResetAt.IsZero() {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(check.ResetAt.Unix(), 10))
		if retryAfter := time.Until(check.ResetAt); retryAfter > 0 && check.Remaining == 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error("Gateway", err, "Failed to write response body")
	}
}

func (g *Gateway) emitRequest(subject string, outcome audit.Outcome, r *http.Request, details map[string]string) {
	if g.sink == nil {
		return
	}

	g.sink.Log(audit.Event{
		SubjectID:      subject,
		OrganizationID: g.cfg.Enterprise.OrganizationID,
		Action:         "gateway.request",
		Outcome:        outcome,
		Resource:       strings.TrimSuffix(r.URL.Path, "/"),
		Details:        details,
		Source:         "gateway",
	})
}
