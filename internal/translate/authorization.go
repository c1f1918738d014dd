package translate

import (
	"strconv"

	"cypher-graphql/internal/auth"
	"cypher-graphql/internal/cypher"
	"cypher-graphql/internal/schema"
)

// checkWriteRules evaluates the rules for a write operation against the
// execution context. Write rules are decided before any Cypher is produced.
// input is nil for operations that do not carry property values.
func checkWriteRules(ec *auth.Context, node *schema.Node, op schema.Operation, input map[string]interface{}) error {
	for _, rule := range node.Auth {
		if !rule.Covers(op) {
			continue
		}
		if len(rule.Fields) > 0 && !touchesAny(input, rule.Fields) {
			continue
		}
		if reason, denied := staticDenial(ec, rule); denied {
			return &ForbiddenError{Node: node.Name, Operation: op, Reason: reason}
		}
		if op != schema.OperationCreate {
			continue
		}
		for _, bind := range rule.Bind {
			claim, ok := ec.ClaimValue(bind.Claim)
			if !ok {
				return &ForbiddenError{Node: node.Name, Operation: op, Reason: "claim " + bind.Claim + " is not present"}
			}
			value, present := input[bind.Property]
			if !present {
				return &ForbiddenError{Node: node.Name, Operation: op, Reason: bind.Property + " must be bound to " + bind.Claim}
			}
			if prop, ok := node.Property(bind.Property); ok {
				if coerced, err := coerceValue(prop, value); err == nil {
					value = coerced
				}
			}
			if !valuesEqual(value, claim) {
				return &ForbiddenError{Node: node.Name, Operation: op, Reason: bind.Property + " does not match " + bind.Claim}
			}
		}
	}
	return nil
}

// staticDenial reports whether the rule's role and authentication
// requirements already exclude the caller.
func staticDenial(ec *auth.Context, rule schema.AuthRule) (string, bool) {
	if rule.IsAuthenticated && !ec.Authenticated {
		return "authentication required", true
	}
	if len(rule.Roles) > 0 && !ec.HasAnyRole(rule.Roles) {
		return "missing required role", true
	}
	return "", false
}

func touchesAny(input map[string]interface{}, fields []string) bool {
	for _, f := range fields {
		if _, ok := input[f]; ok {
			return true
		}
	}
	return false
}

// rulePredicate compiles one rule into a predicate over v. ok is false when
// the rule is already satisfied by the execution context and needs no
// runtime check. Parameters are named under ns.
func rulePredicate(ec *auth.Context, node *schema.Node, rule schema.AuthRule, index int, op string, v, ns cypher.Ident) (cypher.Fragment, bool) {
	if _, denied := staticDenial(ec, rule); denied {
		return cypher.Raw("false"), true
	}
	if len(rule.Allow) == 0 {
		return cypher.Fragment{}, false
	}

	conds := make([]cypher.Fragment, 0, len(rule.Allow))
	for _, allow := range rule.Allow {
		prop, ok := node.Property(allow.Property)
		if !ok {
			return cypher.Raw("false"), true
		}
		claim, ok := ec.ClaimValue(allow.Claim)
		if !ok {
			return cypher.Raw("false"), true
		}
		var b cypher.Builder
		b.Var(v).Raw("." + cypher.Escape(prop.DBName) + " = ").
			Param(ns.Child("auth", op+strconv.Itoa(index), prop.Name), claim)
		conds = append(conds, b.Build())
	}
	if len(conds) == 1 {
		return conds[0], true
	}
	var b cypher.Builder
	b.Raw("(").Join(conds, " AND ").Raw(")")
	return b.Build(), true
}

// negatedConjunction renders "NOT (p1 AND p2 ...)".
func negatedConjunction(preds []cypher.Fragment) cypher.Fragment {
	var b cypher.Builder
	b.Raw("NOT (").Join(preds, " AND ").Raw(")")
	return b.Build()
}
