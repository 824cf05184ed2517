package domain

import (
	"reflect"
	"sort"
)

// Operator is the comparison applied by a single condition term.
type Operator string

const (
	OpEq     Operator = "eq"
	OpIn     Operator = "in"
	OpIsNull Operator = "is_null"
)

// Logic joins the members of a condition group.
type Logic string

const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
)

// Condition is a filter expression over the fields of one table. Terms and groups are the
// only normalized forms; Match is accepted as input sugar.
type Condition interface {
	// ReferencedFields lists every field the condition touches, for validation.
	ReferencedFields() []string
}

// Term compares one field.
type Term struct {
	Field  string
	Op     Operator
	Values []any
}

// ReferencedFields implements Condition.
func (t Term) ReferencedFields() []string { return []string{t.Field} }

// Group combines conditions conjunctively or disjunctively.
type Group struct {
	Logic      Logic
	Conditions []Condition
}

// ReferencedFields implements Condition.
func (g Group) ReferencedFields() []string {
	var out []string
	for _, c := range g.Conditions {
		out = append(out, c.ReferencedFields()...)
	}
	return out
}

// Match is the map form of a condition: field → value (equality), field → slice (set
// membership) or field → nil (null check). Members are combined conjunctively.
type Match map[string]any

// ReferencedFields implements Condition.
func (m Match) ReferencedFields() []string {
	out := make([]string, 0, len(m))
	for field := range m {
		out = append(out, field)
	}
	sort.Strings(out)
	return out
}

// Eq matches rows whose field equals value.
func Eq(field string, value any) Condition {
	if value == nil {
		return IsNull(field)
	}
	return Term{Field: field, Op: OpEq, Values: []any{StorageValue(value)}}
}

// In matches rows whose field equals any of the values.
func In(field string, values ...any) Condition {
	converted := make([]any, len(values))
	for i, v := range values {
		converted[i] = StorageValue(v)
	}
	return Term{Field: field, Op: OpIn, Values: converted}
}

// IsNull matches rows where the field is null or absent.
func IsNull(field string) Condition {
	return Term{Field: field, Op: OpIsNull}
}

// And joins conditions conjunctively. Nil members are skipped.
func And(conditions ...Condition) Condition {
	return join(LogicAnd, conditions)
}

// Or joins conditions disjunctively. Nil members are skipped.
func Or(conditions ...Condition) Condition {
	return join(LogicOr, conditions)
}

func join(logic Logic, conditions []Condition) Condition {
	members := make([]Condition, 0, len(conditions))
	for _, c := range conditions {
		if c != nil {
			members = append(members, c)
		}
	}
	switch len(members) {
	case 0:
		return nil
	case 1:
		return members[0]
	}
	return Group{Logic: logic, Conditions: members}
}

// Normalize rewrites a condition into Term and Group nodes only. Match entries are
// expanded in sorted field order so generated SQL is deterministic.
func Normalize(c Condition) Condition {
	switch typed := c.(type) {
	case nil:
		return nil
	case Term:
		return typed
	case Group:
		members := make([]Condition, 0, len(typed.Conditions))
		for _, member := range typed.Conditions {
			if n := Normalize(member); n != nil {
				members = append(members, n)
			}
		}
		return join(typed.Logic, members)
	case Match:
		terms := make([]Condition, 0, len(typed))
		for _, field := range typed.ReferencedFields() {
			terms = append(terms, matchTerm(field, typed[field]))
		}
		return join(LogicAnd, terms)
	default:
		return typed
	}
}

func matchTerm(field string, value any) Condition {
	if value == nil {
		return IsNull(field)
	}
	if _, isBytes := value.([]byte); !isBytes {
		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			values := make([]any, rv.Len())
			for i := range values {
				values[i] = rv.Index(i).Interface()
			}
			return In(field, values...)
		}
	}
	return Eq(field, value)
}

// Evaluate reports whether a field map satisfies the condition. A nil condition matches
// everything. Stores that cannot push conditions down use this.
func Evaluate(c Condition, fields map[string]any) bool {
	switch typed := Normalize(c).(type) {
	case nil:
		return true
	case Term:
		value := fields[typed.Field]
		switch typed.Op {
		case OpIsNull:
			return value == nil
		case OpEq, OpIn:
			for _, candidate := range typed.Values {
				if ValuesEqual(value, candidate) {
					return true
				}
			}
			return false
		}
		return false
	case Group:
		if typed.Logic == LogicOr {
			for _, member := range typed.Conditions {
				if Evaluate(member, fields) {
					return true
				}
			}
			return false
		}
		for _, member := range typed.Conditions {
			if !Evaluate(member, fields) {
				return false
			}
		}
		return true
	}
	return false
}
