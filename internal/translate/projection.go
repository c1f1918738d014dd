package translate

import (
	"math"

	"cypher-graphql/internal/auth"
	"cypher-graphql/internal/cypher"
	"cypher-graphql/internal/resolvetree"
	"cypher-graphql/internal/schema"
)

// Projection is the map projection for a node plus the read-authorization
// predicates that must hold for the projected node.
type Projection struct {
	// Fragment renders as "{title: v.title, ...}".
	Fragment cypher.Fragment
	// AuthPredicates are ordered as the rules were encountered: node-wide
	// rules first, then field rules in selection order.
	AuthPredicates []cypher.Fragment
}

// ProjectionAndParams builds the projection of fields selected on node,
// rooted at variable v with parameters under ns. Called with hole
// identifiers, the result can be bound to any number of variables.
func ProjectionAndParams(ec *auth.Context, node *schema.Node, fields resolvetree.Fields, v, ns cypher.Ident) (Projection, error) {
	if ec == nil {
		ec = auth.Anonymous()
	}
	p := projector{ec: ec}
	frag, preds, err := p.project(node, fields, v, ns)
	if err != nil {
		return Projection{}, err
	}
	return Projection{Fragment: frag, AuthPredicates: preds}, nil
}

type projector struct {
	ec *auth.Context
}

func (p projector) project(node *schema.Node, fields resolvetree.Fields, v, ns cypher.Ident) (cypher.Fragment, []cypher.Fragment, error) {
	var preds []cypher.Fragment
	used := make(map[int]bool)
	addRules := func(indexes []int) {
		for _, i := range indexes {
			if used[i] {
				continue
			}
			used[i] = true
			if pred, needed := rulePredicate(p.ec, node, node.Auth[i], i, "read", v, ns); needed {
				preds = append(preds, pred)
			}
		}
	}

	addRules(node.RulesFor(schema.OperationRead))

	var b cypher.Builder
	b.Raw("{")
	for fi, f := range fields {
		if fi > 0 {
			b.Raw(", ")
		}
		b.Raw(cypher.Escape(f.Alias) + ": ")

		if f.Name == "__typename" {
			b.Raw(cypher.QuoteString(node.Name))
			continue
		}
		addRules(node.FieldRulesFor(schema.OperationRead, f.Name))
		if prop, ok := node.Property(f.Name); ok {
			b.Var(v).Raw("." + cypher.Escape(prop.DBName))
			continue
		}
		rel, ok := node.Relationship(f.Name)
		if !ok {
			return cypher.Fragment{}, nil, validationErr(node, f.Name, "unknown field in selection")
		}
		frag, err := p.relationship(rel, f, v, ns)
		if err != nil {
			return cypher.Fragment{}, nil, err
		}
		b.Fragment(frag)
	}
	b.Raw("}")
	return b.Build(), preds, nil
}

// relationship renders a pattern comprehension over the related nodes.
func (p projector) relationship(rel *schema.Relationship, f *resolvetree.Tree, v, ns cypher.Ident) (cypher.Fragment, error) {
	target := rel.Target
	nv := v.Child(f.Alias)
	nns := ns.Child(f.Alias)

	body, preds, err := p.project(target, f.Fields(target.Name), nv, nns)
	if err != nil {
		return cypher.Fragment{}, err
	}

	var conds []cypher.Fragment
	if raw, ok := f.Args["where"]; ok && raw != nil {
		where, ok := raw.(map[string]interface{})
		if !ok {
			return cypher.Fragment{}, &ValidationError{Node: target.Name, Field: f.Name, Message: "where must be an object"}
		}
		conds, err = equalityConditions(target, where, nv, nns.Child("where"))
		if err != nil {
			return cypher.Fragment{}, err
		}
	}
	if len(preds) > 0 {
		var g cypher.Builder
		g.Raw("apoc.util.validatePredicate(").Fragment(negatedConjunction(preds)).
			Raw(", " + cypher.QuoteString(ForbiddenMessage) + ", [0])")
		conds = append(conds, g.Build())
	}

	var b cypher.Builder
	if !rel.Many {
		b.Raw("head(")
	}
	b.Raw("[")
	writePattern(&b, v, rel, nv, cypher.Labels(target.Labels))
	if len(conds) > 0 {
		b.Raw(" WHERE ").Join(conds, " AND ")
	}
	b.Raw(" | ").Var(nv).Raw(" ").Fragment(body).Raw("]")
	if !rel.Many {
		b.Raw(")")
		return b.Build(), nil
	}

	if limit, ok := listLimit(f.Args); ok {
		b.Raw("[..").Param(nns.Child("options", "limit"), limit).Raw("]")
	}
	return b.Build(), nil
}

func listLimit(args map[string]interface{}) (int64, bool) {
	options, ok := args["options"].(map[string]interface{})
	if !ok {
		return 0, false
	}
	switch n := options["limit"].(type) {
	case int:
		return int64(n), n >= 0
	case int64:
		return n, n >= 0
	case float64:
		return int64(n), n >= 0 && n == math.Trunc(n) && fitsInt64(n)
	}
	return 0, false
}
