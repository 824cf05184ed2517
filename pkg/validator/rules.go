package validator

import (
	"fmt"
	"time"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/rpattn/entitykit/internal/domain"
)

// Rule is a boolean expression over an entity's field map, evaluated with expr-lang/expr.
// Field names are bound as variables; "now" holds the evaluation time. Undefined fields
// evaluate to nil, so rules on optional fields should guard with "field == nil || ...".
type Rule struct {
	Name       string
	Field      string
	Expression string
	Message    string
}

// RuleSet is a list of compiled rules for one entity type.
type RuleSet struct {
	rules    []Rule
	programs []*exprvm.Program
}

// CompileRules compiles every rule up front so syntax errors surface at type registration.
func CompileRules(rules ...Rule) (*RuleSet, error) {
	set := &RuleSet{
		rules:    make([]Rule, 0, len(rules)),
		programs: make([]*exprvm.Program, 0, len(rules)),
	}
	for _, rule := range rules {
		if rule.Expression == "" {
			return nil, fmt.Errorf("rule %q: expression must not be empty", rule.Name)
		}
		program, err := exprlang.Compile(rule.Expression,
			exprlang.Env(map[string]any{}),
			exprlang.AllowUndefinedVariables(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to compile rule %q: %w", rule.Name, err)
		}
		set.rules = append(set.rules, rule)
		set.programs = append(set.programs, program)
	}
	return set, nil
}

// Len returns the number of rules in the set.
func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Evaluate runs each rule against fields and returns one violation per rule that does not
// hold. A rule that fails to run, or yields a non-boolean, counts as violated.
func (s *RuleSet) Evaluate(fields map[string]any, now time.Time) []domain.FieldViolation {
	if s == nil {
		return nil
	}
	env := make(map[string]any, len(fields)+1)
	for name, value := range fields {
		env[name] = domain.StorageValue(value)
	}
	env["now"] = now

	var violations []domain.FieldViolation
	for i, program := range s.programs {
		rule := s.rules[i]
		result, err := exprlang.Run(program, env)
		if err != nil {
			violations = append(violations, domain.FieldViolation{
				Field:   rule.Field,
				Message: fmt.Sprintf("rule %s could not be evaluated: %v", rule.Name, err),
			})
			continue
		}
		ok, isBool := result.(bool)
		if !isBool {
			violations = append(violations, domain.FieldViolation{
				Field:   rule.Field,
				Message: fmt.Sprintf("rule %s returned %T, expected bool", rule.Name, result),
			})
			continue
		}
		if !ok {
			violations = append(violations, domain.FieldViolation{
				Field:   rule.Field,
				Message: rule.message(),
				Value:   fields[rule.Field],
			})
		}
	}
	return violations
}

func (r Rule) message() string {
	if r.Message != "" {
		return r.Message
	}
	return fmt.Sprintf("rule %s failed: %s", r.Name, r.Expression)
}
