package policy

import (
	"fmt"
	"sync"

	"authcore/internal/audit"
	"authcore/internal/config"
	"authcore/pkg/logging"
)

// Action enumerates what a matched policy does.
type Action string

const (
	ActionAllow           Action = "allow"
	ActionDeny            Action = "deny"
	ActionRequireApproval Action = "require_approval"
	ActionAuditLog        Action = "audit_log"
	ActionRateLimit       Action = "rate_limit"
)

// Policy is the compiled runtime form of a configured policy. Evaluation
// never mutates a Policy.
type Policy struct {
	ID         string
	Name       string
	Enabled    bool
	Conditions []Condition
	Actions    []Action
}

// primaryAction is deny or allow when explicitly configured, defaulting
// to allow.
func (p *Policy) primaryAction() Action {
	for _, a := range p.Actions {
		if a == ActionDeny || a == ActionAllow {
			return a
		}
	}
	return ActionAllow
}

// matches reports whether every condition holds. Conditions are combined
// with AND; a policy with no conditions matches everything.
func (p *Policy) matches(ctx EvaluationContext) bool {
	for _, c := range p.Conditions {
		if !c.Evaluate(ctx) {
			return false
		}
	}
	return true
}

// PolicyResult records how one policy participated in an evaluation.
type PolicyResult struct {
	PolicyID string
	Matched  bool
	Action   Action
}

// AuditEntry is an advisory audit_log action raised by a matched policy.
// The caller, not the engine, forwards these to the audit log.
type AuditEntry struct {
	PolicyID string
	Subject  string
	Resource string
}

// RateLimitEntry is an advisory rate_limit action raised by a matched
// policy. Rate-limit actions in policies are advisory logging only; the
// caller decides whether to record them against the limiter.
type RateLimitEntry struct {
	PolicyID string
	Subject  string
}

// Decision is the outcome of an evaluation.
type Decision struct {
	Allowed          bool
	Policies         []PolicyResult
	Requirements     []string
	AuditEntries     []AuditEntry
	RateLimitEntries []RateLimitEntry
}

// Engine evaluates the registered policies against request contexts.
// Policies are registered at construction from configuration; afterwards
// the set changes only through Add, Remove and Replace.
type Engine struct {
	mu       sync.RWMutex
	policies []Policy

	sink audit.Sink
}

// NewEngine compiles the configured policies and returns an engine that
// reports evaluation summaries to the given audit sink.
func NewEngine(cfgs []config.PolicyConfig, sink audit.Sink) *Engine {
	e := &Engine{sink: sink}
	e.Replace(cfgs)
	return e
}

// Add registers one policy. A policy with a duplicate ID is rejected.
func (e *Engine) Add(cfg config.PolicyConfig) error {
	if cfg.ID == "" {
		return fmt.Errorf("policy is missing an id")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, p := range e.policies {
		if p.ID == cfg.ID {
			return fmt.Errorf("policy %q is already registered", cfg.ID)
		}
	}

	e.policies = append(e.policies, compilePolicy(cfg))
	return nil
}

// Remove unregisters the policy with the given ID. Returns whether a
// policy was removed.
func (e *Engine) Remove(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, p := range e.policies {
		if p.ID == id {
			e.policies = append(e.policies[:i], e.policies[i+1:]...)
			return true
		}
	}
	return false
}

// Replace swaps the entire policy set. Used at construction and by the
// configuration watcher on hot reload.
func (e *Engine) Replace(cfgs []config.PolicyConfig) {
	compiled := make([]Policy, 0, len(cfgs))
	for _, cfg := range cfgs {
		if cfg.ID == "" {
			logging.Warn("Policy", "Skipping policy without id (name=%q)", cfg.Name)
			continue
		}
		compiled = append(compiled, compilePolicy(cfg))
	}

	e.mu.Lock()
	e.policies = compiled
	e.mu.Unlock()

	logging.Info("Policy", "Policy set replaced: %d policies active", len(compiled))
}

// Policies returns a snapshot of the registered policies.
func (e *Engine) Policies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snapshot := make([]Policy, len(e.policies))
	copy(snapshot, e.policies)
	return snapshot
}

// Evaluate runs every enabled policy against the context. Any matched
// deny wins and cannot be overridden by a later allow. Matched advisory
// actions (audit_log, rate_limit) are returned on the decision for the
// caller to act on.
func (e *Engine) Evaluate(ctx EvaluationContext) Decision {
	// Snapshot under the lock: Add and Remove mutate the backing array, so
	// iterating a shared slice header after unlock would race with them.
	e.mu.RLock()
	policies := make([]Policy, len(e.policies))
	copy(policies, e.policies)
	e.mu.RUnlock()

	decision := Decision{Allowed: true}

	for i := range policies {
		p := &policies[i]
		if !p.Enabled {
			continue
		}

		matched := p.matches(ctx)
		decision.Policies = append(decision.Policies, PolicyResult{
			PolicyID: p.ID,
			Matched:  matched,
			Action:   p.primaryAction(),
		})
		if !matched {
			continue
		}

		for _, action := range p.Actions {
			switch action {
			case ActionDeny:
				decision.Allowed = false
			case ActionAllow:
				// Allow is the default; it never overrides a deny.
			case ActionRequireApproval:
				decision.Requirements = append(decision.Requirements,
					fmt.Sprintf("policy %q requires approval for subject %s", policyLabel(p), ctx.SubjectID))
			case ActionAuditLog:
				decision.AuditEntries = append(decision.AuditEntries, AuditEntry{
					PolicyID: p.ID,
					Subject:  ctx.SubjectID,
					Resource: ctx.Repository,
				})
			case ActionRateLimit:
				decision.RateLimitEntries = append(decision.RateLimitEntries, RateLimitEntry{
					PolicyID: p.ID,
					Subject:  ctx.SubjectID,
				})
			default:
				logging.Warn("Policy", "Policy %s carries unknown action %q, ignored", p.ID, action)
			}
		}
	}

	e.emitSummary(ctx, decision)
	return decision
}

func (e *Engine) emitSummary(ctx EvaluationContext, decision Decision) {
	if e.sink == nil {
		return
	}

	outcome := audit.OutcomeSuccess
	if !decision.Allowed {
		outcome = audit.OutcomeFailure
	}

	matched := 0
	for _, pr := range decision.Policies {
		if pr.Matched {
			matched++
		}
	}

	e.sink.Log(audit.Event{
		SubjectID:      ctx.SubjectID,
		OrganizationID: ctx.OrganizationID,
		Action:         "policy.evaluate",
		Outcome:        outcome,
		Resource:       ctx.Repository,
		Details: map[string]string{
			"tool":            ctx.Tool,
			"policiesMatched": fmt.Sprintf("%d", matched),
		},
		Source: "policy-engine",
	})
}

func compilePolicy(cfg config.PolicyConfig) Policy {
	conditions := make([]Condition, 0, len(cfg.Conditions))
	for _, c := range cfg.Conditions {
		conditions = append(conditions, compileCondition(c))
	}

	actions := make([]Action, 0, len(cfg.Actions))
	for _, a := range cfg.Actions {
		actions = append(actions, Action(a))
	}

	return Policy{
		ID:         cfg.ID,
		Name:       cfg.Name,
		Enabled:    cfg.Enabled,
		Conditions: conditions,
		Actions:    actions,
	}
}

func policyLabel(p *Policy) string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}
