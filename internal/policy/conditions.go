package policy

import (
	"regexp"
	"strings"
	"time"

	"authcore/internal/config"
	"authcore/pkg/logging"
)

// ConditionKind enumerates the closed set of condition types the engine
// understands. Anything outside this set evaluates to false (fail closed
// per condition) rather than silently matching.
type ConditionKind string

const (
	KindUser         ConditionKind = "user"
	KindOrganization ConditionKind = "organization"
	KindRepository   ConditionKind = "repository"
	KindScope        ConditionKind = "scope"
	KindTool         ConditionKind = "tool"
	KindTimeWindow   ConditionKind = "time_window"
)

// Operator enumerates how a condition value is compared.
type Operator string

const (
	OpEquals    Operator = "equals"
	OpNotEquals Operator = "not_equals"
	OpContains  Operator = "contains"
	OpIn        Operator = "in"
	OpMatches   Operator = "matches"
)

// EvaluationContext carries the request attributes policies can match on.
type EvaluationContext struct {
	SubjectID      string
	OrganizationID string
	Repository     string
	Tool           string
	Scopes         []string

	// Now is the evaluation time; the zero value means time.Now.
	Now time.Time
}

func (c EvaluationContext) now() time.Time {
	if c.Now.IsZero() {
		return time.Now()
	}
	return c.Now
}

// Condition is one compiled policy condition.
type Condition interface {
	Kind() ConditionKind
	Evaluate(ctx EvaluationContext) bool
}

// attributeCondition matches a single string attribute of the context
// against the condition value using the configured operator.
type attributeCondition struct {
	kind    ConditionKind
	op      Operator
	value   string
	pattern *regexp.Regexp // compiled for OpMatches, nil otherwise
}

func (c *attributeCondition) Kind() ConditionKind { return c.kind }

func (c *attributeCondition) Evaluate(ctx EvaluationContext) bool {
	var attr string
	switch c.kind {
	case KindUser:
		attr = ctx.SubjectID
	case KindOrganization:
		attr = ctx.OrganizationID
	case KindRepository:
		attr = ctx.Repository
	case KindTool:
		attr = ctx.Tool
	default:
		return false
	}
	return compareString(attr, c.op, c.value, c.pattern)
}

// scopeCondition matches against the granted scope list.
type scopeCondition struct {
	op      Operator
	value   string
	pattern *regexp.Regexp
}

func (c *scopeCondition) Kind() ConditionKind { return KindScope }

func (c *scopeCondition) Evaluate(ctx EvaluationContext) bool {
	switch c.op {
	case OpContains, OpEquals:
		for _, s := range ctx.Scopes {
			if s == c.value {
				return true
			}
		}
		return false
	case OpNotEquals:
		for _, s := range ctx.Scopes {
			if s == c.value {
				return false
			}
		}
		return true
	case OpIn:
		allowed := splitList(c.value)
		for _, s := range ctx.Scopes {
			for _, a := range allowed {
				if s == a {
					return true
				}
			}
		}
		return false
	case OpMatches:
		if c.pattern == nil {
			return false
		}
		for _, s := range ctx.Scopes {
			if c.pattern.MatchString(s) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// timeWindowCondition matches when the evaluation time-of-day (UTC) falls
// inside a "HH:MM-HH:MM" window. Windows may wrap midnight.
type timeWindowCondition struct {
	startMinute int
	endMinute   int
}

func (c *timeWindowCondition) Kind() ConditionKind { return KindTimeWindow }

func (c *timeWindowCondition) Evaluate(ctx EvaluationContext) bool {
	now := ctx.now().UTC()
	minute := now.Hour()*60 + now.Minute()

	if c.startMinute <= c.endMinute {
		return minute >= c.startMinute && minute < c.endMinute
	}
	// Window wraps midnight.
	return minute >= c.startMinute || minute < c.endMinute
}

// unsupportedCondition is the compiled form of a condition the engine does
// not understand. It never matches.
type unsupportedCondition struct {
	kind ConditionKind
}

func (c *unsupportedCondition) Kind() ConditionKind          { return c.kind }
func (c *unsupportedCondition) Evaluate(EvaluationContext) bool { return false }

// compileCondition turns a declarative condition into its runtime form.
// Unknown kinds, unknown operators and malformed values all compile to a
// condition that evaluates to false.
func compileCondition(cfg config.ConditionConfig) Condition {
	kind := ConditionKind(cfg.Type)
	op := Operator(cfg.Operator)

	var pattern *regexp.Regexp
	if op == OpMatches {
		var err error
		pattern, err = regexp.Compile(cfg.Value)
		if err != nil {
			logging.Warn("Policy", "Invalid pattern %q in condition type=%s, condition will never match: %v",
				cfg.Value, cfg.Type, err)
			return &unsupportedCondition{kind: kind}
		}
	}

	switch kind {
	case KindUser, KindOrganization, KindRepository, KindTool:
		if !knownOperator(op) {
			return &unsupportedCondition{kind: kind}
		}
		return &attributeCondition{kind: kind, op: op, value: cfg.Value, pattern: pattern}

	case KindScope:
		if !knownOperator(op) {
			return &unsupportedCondition{kind: kind}
		}
		return &scopeCondition{op: op, value: cfg.Value, pattern: pattern}

	case KindTimeWindow:
		start, end, ok := parseTimeWindow(cfg.Value)
		if !ok {
			logging.Warn("Policy", "Invalid time window %q, condition will never match", cfg.Value)
			return &unsupportedCondition{kind: kind}
		}
		return &timeWindowCondition{startMinute: start, endMinute: end}

	default:
		logging.Warn("Policy", "Unknown condition type %q, condition will never match", cfg.Type)
		return &unsupportedCondition{kind: kind}
	}
}

func knownOperator(op Operator) bool {
	switch op {
	case OpEquals, OpNotEquals, OpContains, OpIn, OpMatches:
		return true
	}
	return false
}

func compareString(attr string, op Operator, value string, pattern *regexp.Regexp) bool {
	switch op {
	case OpEquals:
		return attr == value
	case OpNotEquals:
		return attr != value
	case OpContains:
		return strings.Contains(attr, value)
	case OpIn:
		for _, v := range splitList(value) {
			if attr == v {
				return true
			}
		}
		return false
	case OpMatches:
		return pattern != nil && pattern.MatchString(attr)
	default:
		return false
	}
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseTimeWindow parses "HH:MM-HH:MM" into minutes-of-day.
func parseTimeWindow(value string) (start, end int, ok bool) {
	parts := strings.Split(value, "-")
	if len(parts) != 2 {
		return 0, 0, false
	}

	start, ok = parseClock(strings.TrimSpace(parts[0]))
	if !ok {
		return 0, 0, false
	}
	end, ok = parseClock(strings.TrimSpace(parts[1]))
	if !ok {
		return 0, 0, false
	}
	return start, end, true
}

func parseClock(value string) (int, bool) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
