// Package cond implements the minimal AND-only condition language used by
// manifest disable rules.
package cond

import (
	"fmt"
	"strings"
)

// Evaluate evaluates a condition expression against lookup.
//
// Grammar:
//
//	ConditionExpr ::= Clause ( '&&' Clause )*
//	Clause        ::= Key Operator Literal | Key
//	Operator      ::= '=' | '!='
//
// Keys resolve through lookup; missing keys resolve to empty string.
// Comparisons are exact string comparisons. A bare key is truthy when its
// value is non-empty and not "false"/"0"/"no". The empty expression is true.
func Evaluate(condition string, lookup func(key string) string) (bool, error) {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return true, nil
	}
	if lookup == nil {
		lookup = func(string) string { return "" }
	}
	for _, clause := range strings.Split(condition, "&&") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		ok, err := evalClause(clause, lookup)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Check validates the syntax of a condition expression without caring about
// values. Used by manifest validation.
func Check(condition string) error {
	_, err := Evaluate(condition, nil)
	return err
}

func evalClause(clause string, lookup func(string) string) (bool, error) {
	if strings.Contains(clause, "!=") {
		parts := strings.SplitN(clause, "!=", 2)
		k := strings.TrimSpace(parts[0])
		want := strings.TrimSpace(parts[1])
		if k == "" {
			return false, fmt.Errorf("invalid clause: %q", clause)
		}
		return lookup(k) != want, nil
	}
	if strings.Contains(clause, "=") {
		parts := strings.SplitN(clause, "=", 2)
		k := strings.TrimSpace(parts[0])
		want := strings.TrimSpace(parts[1])
		if k == "" {
			return false, fmt.Errorf("invalid clause: %q", clause)
		}
		return lookup(k) == want, nil
	}
	// Bare key: truthy if non-empty and not "false"/"0" (best-effort).
	got := lookup(strings.TrimSpace(clause))
	if got == "" {
		return false, nil
	}
	switch strings.ToLower(got) {
	case "false", "0", "no":
		return false, nil
	default:
		return true, nil
	}
}
