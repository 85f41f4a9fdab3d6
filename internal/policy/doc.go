// Package policy implements the declarative condition/action access policy
// engine. Policies come from configuration, conditions are compiled into a
// closed set of evaluators, and evaluation is side-effect free apart from
// one summary audit event: advisory actions are returned to the caller on
// the decision instead of being executed by the engine.
package policy
