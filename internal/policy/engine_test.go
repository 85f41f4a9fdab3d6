package policy

import (
	"sync"
	"testing"
	"time"

	"authcore/internal/audit"
	"authcore/internal/config"
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

func (s *captureSink) all() []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.Event, len(s.events))
	copy(out, s.events)
	return out
}

func denyPolicy(id, user string) config.PolicyConfig {
	return config.PolicyConfig{
		ID:      id,
		Enabled: true,
		Conditions: []config.ConditionConfig{
			{Type: "user", Operator: "equals", Value: user},
		},
		Actions: []string{"deny"},
	}
}

func TestEngine_ConcurrentEvaluateAndMutate(t *testing.T) {
	engine := NewEngine([]config.PolicyConfig{
		denyPolicy("deny-mallory", "mallory"),
	}, nil)

	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			decision := engine.Evaluate(EvaluationContext{SubjectID: "mallory"})
			for _, pr := range decision.Policies {
				if pr.PolicyID == "" {
					t.Error("evaluation observed a half-written policy")
					return
				}
			}
		}
	}()

	for i := 0; i < 500; i++ {
		if !engine.Remove("deny-mallory") {
			t.Fatal("Remove() = false for a registered policy")
		}
		if err := engine.Add(denyPolicy("deny-mallory", "mallory")); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	close(stop)
	wg.Wait()
}

func TestEngine_DenyWins(t *testing.T) {
	engine := NewEngine([]config.PolicyConfig{
		{
			ID:      "allow-everyone",
			Enabled: true,
			Actions: []string{"allow"},
		},
		denyPolicy("deny-mallory", "mallory"),
	}, nil)

	decision := engine.Evaluate(EvaluationContext{SubjectID: "mallory"})
	if decision.Allowed {
		t.Error("Allowed = true, want false: a matched deny must win over any allow")
	}

	decision = engine.Evaluate(EvaluationContext{SubjectID: "alice"})
	if !decision.Allowed {
		t.Error("Allowed = false for a subject no deny matches")
	}
}

func TestEngine_DenyNotOverriddenByLaterAllow(t *testing.T) {
	engine := NewEngine([]config.PolicyConfig{
		denyPolicy("deny-first", "mallory"),
		{
			ID:      "allow-after",
			Enabled: true,
			Conditions: []config.ConditionConfig{
				{Type: "user", Operator: "equals", Value: "mallory"},
			},
			Actions: []string{"allow"},
		},
	}, nil)

	if engine.Evaluate(EvaluationContext{SubjectID: "mallory"}).Allowed {
		t.Error("a later matched allow overrode an earlier deny")
	}
}

func TestEngine_DisabledPolicyIgnored(t *testing.T) {
	p := denyPolicy("deny-disabled", "mallory")
	p.Enabled = false
	engine := NewEngine([]config.PolicyConfig{p}, nil)

	if !engine.Evaluate(EvaluationContext{SubjectID: "mallory"}).Allowed {
		t.Error("disabled policy still denied the request")
	}
}

func TestEngine_ConditionsAreANDed(t *testing.T) {
	engine := NewEngine([]config.PolicyConfig{
		{
			ID:      "deny-mallory-in-acme",
			Enabled: true,
			Conditions: []config.ConditionConfig{
				{Type: "user", Operator: "equals", Value: "mallory"},
				{Type: "organization", Operator: "equals", Value: "acme"},
			},
			Actions: []string{"deny"},
		},
	}, nil)

	if engine.Evaluate(EvaluationContext{SubjectID: "mallory", OrganizationID: "acme"}).Allowed {
		t.Error("both conditions match, expected deny")
	}
	if !engine.Evaluate(EvaluationContext{SubjectID: "mallory", OrganizationID: "other"}).Allowed {
		t.Error("only one condition matches, expected allow")
	}
}

func TestEngine_UnknownConditionFailsClosed(t *testing.T) {
	engine := NewEngine([]config.PolicyConfig{
		{
			ID:      "deny-on-moon-phase",
			Enabled: true,
			Conditions: []config.ConditionConfig{
				{Type: "moon_phase", Operator: "equals", Value: "full"},
			},
			Actions: []string{"deny"},
		},
	}, nil)

	decision := engine.Evaluate(EvaluationContext{SubjectID: "anyone"})
	if !decision.Allowed {
		t.Error("a policy with an unknown condition type matched; unknown conditions must evaluate to false")
	}
	if decision.Policies[0].Matched {
		t.Error("policy reported as matched despite unknown condition")
	}
}

func TestEngine_RequireApproval(t *testing.T) {
	engine := NewEngine([]config.PolicyConfig{
		{
			ID:      "approve-prod-deploys",
			Name:    "Production deploys need approval",
			Enabled: true,
			Conditions: []config.ConditionConfig{
				{Type: "tool", Operator: "contains", Value: "deploy"},
			},
			Actions: []string{"require_approval"},
		},
	}, nil)

	decision := engine.Evaluate(EvaluationContext{SubjectID: "alice", Tool: "/tools/deploy"})
	if !decision.Allowed {
		t.Error("require_approval must not deny by itself")
	}
	if len(decision.Requirements) != 1 {
		t.Fatalf("Requirements = %d entries, want 1", len(decision.Requirements))
	}
}

func TestEngine_AdvisoryActionsReturnedNotExecuted(t *testing.T) {
	sink := &captureSink{}
	engine := NewEngine([]config.PolicyConfig{
		{
			ID:      "watch-mallory",
			Enabled: true,
			Conditions: []config.ConditionConfig{
				{Type: "user", Operator: "equals", Value: "mallory"},
			},
			Actions: []string{"audit_log", "rate_limit"},
		},
	}, sink)

	decision := engine.Evaluate(EvaluationContext{SubjectID: "mallory", Repository: "acme/widgets"})

	if len(decision.AuditEntries) != 1 {
		t.Errorf("AuditEntries = %d, want 1", len(decision.AuditEntries))
	}
	if len(decision.RateLimitEntries) != 1 {
		t.Errorf("RateLimitEntries = %d, want 1", len(decision.RateLimitEntries))
	}
	if decision.AuditEntries[0].PolicyID != "watch-mallory" {
		t.Errorf("AuditEntries[0].PolicyID = %q", decision.AuditEntries[0].PolicyID)
	}

	// The engine itself emits only the evaluation summary; forwarding the
	// advisory entries is the caller's job.
	events := sink.all()
	if len(events) != 1 || events[0].Action != "policy.evaluate" {
		t.Errorf("sink received %d events, want exactly the policy.evaluate summary", len(events))
	}
}

func TestEngine_SummaryOutcome(t *testing.T) {
	sink := &captureSink{}
	engine := NewEngine([]config.PolicyConfig{denyPolicy("deny-mallory", "mallory")}, sink)

	engine.Evaluate(EvaluationContext{SubjectID: "mallory"})
	engine.Evaluate(EvaluationContext{SubjectID: "alice"})

	events := sink.all()
	if len(events) != 2 {
		t.Fatalf("sink received %d events, want 2", len(events))
	}
	if events[0].Outcome != audit.OutcomeFailure {
		t.Errorf("denied evaluation summary outcome = %q, want failure", events[0].Outcome)
	}
	if events[1].Outcome != audit.OutcomeSuccess {
		t.Errorf("allowed evaluation summary outcome = %q, want success", events[1].Outcome)
	}
}

func TestEngine_AddRemoveReplace(t *testing.T) {
	engine := NewEngine(nil, nil)

	if err := engine.Add(denyPolicy("p1", "mallory")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := engine.Add(denyPolicy("p1", "other")); err == nil {
		t.Error("Add() accepted a duplicate policy ID")
	}
	if engine.Evaluate(EvaluationContext{SubjectID: "mallory"}).Allowed {
		t.Error("added policy did not take effect")
	}

	if !engine.Remove("p1") {
		t.Error("Remove() = false for a registered policy")
	}
	if engine.Remove("p1") {
		t.Error("Remove() = true for an already-removed policy")
	}
	if !engine.Evaluate(EvaluationContext{SubjectID: "mallory"}).Allowed {
		t.Error("removed policy still denies")
	}

	engine.Replace([]config.PolicyConfig{denyPolicy("p2", "mallory"), denyPolicy("p3", "eve")})
	if len(engine.Policies()) != 2 {
		t.Errorf("Policies() = %d after Replace, want 2", len(engine.Policies()))
	}
}

func TestConditionFieldDoesNotAlterDispatch(t *testing.T) {
	// The condition type alone selects the compared attribute; a field
	// value is carried for config compatibility but changes nothing.
	bare := compileCondition(config.ConditionConfig{
		Type: "user", Operator: "equals", Value: "alice",
	})
	withField := compileCondition(config.ConditionConfig{
		Type: "user", Field: "login", Operator: "equals", Value: "alice",
	})

	ctx := EvaluationContext{SubjectID: "alice"}
	if bare.Evaluate(ctx) != withField.Evaluate(ctx) {
		t.Error("a field value changed condition dispatch")
	}
	if !withField.Evaluate(ctx) {
		t.Error("condition with field set did not match on its type attribute")
	}
}

func TestConditionOperators(t *testing.T) {
	ctx := EvaluationContext{
		SubjectID:  "alice",
		Repository: "acme/widgets",
		Scopes:     []string{"repo", "read:org"},
	}

	tests := []struct {
		name string
		cond config.ConditionConfig
		want bool
	}{
		{name: "user equals match", cond: config.ConditionConfig{Type: "user", Operator: "equals", Value: "alice"}, want: true},
		{name: "user equals mismatch", cond: config.ConditionConfig{Type: "user", Operator: "equals", Value: "bob"}, want: false},
		{name: "user not_equals", cond: config.ConditionConfig{Type: "user", Operator: "not_equals", Value: "bob"}, want: true},
		{name: "user in list", cond: config.ConditionConfig{Type: "user", Operator: "in", Value: "bob, alice, carol"}, want: true},
		{name: "user not in list", cond: config.ConditionConfig{Type: "user", Operator: "in", Value: "bob, carol"}, want: false},
		{name: "repository contains", cond: config.ConditionConfig{Type: "repository", Operator: "contains", Value: "widg"}, want: true},
		{name: "repository matches pattern", cond: config.ConditionConfig{Type: "repository", Operator: "matches", Value: `^acme/`}, want: true},
		{name: "invalid pattern never matches", cond: config.ConditionConfig{Type: "repository", Operator: "matches", Value: `([`}, want: false},
		{name: "scope contains", cond: config.ConditionConfig{Type: "scope", Operator: "contains", Value: "repo"}, want: true},
		{name: "scope contains missing", cond: config.ConditionConfig{Type: "scope", Operator: "contains", Value: "admin:org"}, want: false},
		{name: "scope in list", cond: config.ConditionConfig{Type: "scope", Operator: "in", Value: "read:org, admin:org"}, want: true},
		{name: "unknown operator", cond: config.ConditionConfig{Type: "user", Operator: "sounds_like", Value: "alice"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := compileCondition(tt.cond).Evaluate(ctx); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTimeWindowCondition(t *testing.T) {
	cond := compileCondition(config.ConditionConfig{
		Type: "time_window", Operator: "equals", Value: "09:00-17:00",
	})

	inside := EvaluationContext{Now: time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)}
	outside := EvaluationContext{Now: time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC)}

	if !cond.Evaluate(inside) {
		t.Error("12:30 not matched by 09:00-17:00")
	}
	if cond.Evaluate(outside) {
		t.Error("22:00 matched by 09:00-17:00")
	}

	// Windows may wrap midnight.
	night := compileCondition(config.ConditionConfig{
		Type: "time_window", Operator: "equals", Value: "22:00-06:00",
	})
	if !night.Evaluate(EvaluationContext{Now: time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC)}) {
		t.Error("23:30 not matched by the wrapping window 22:00-06:00")
	}
	if night.Evaluate(EvaluationContext{Now: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)}) {
		t.Error("12:00 matched by the wrapping window 22:00-06:00")
	}

	// Malformed windows never match.
	broken := compileCondition(config.ConditionConfig{
		Type: "time_window", Operator: "equals", Value: "9am to 5pm",
	})
	if broken.Evaluate(inside) {
		t.Error("malformed time window matched")
	}
}
