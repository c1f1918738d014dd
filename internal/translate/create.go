package translate

import (
	"sort"
	"strconv"
	"strings"

	"cypher-graphql/internal/auth"
	"cypher-graphql/internal/cypher"
	"cypher-graphql/internal/schema"
)

// CreateAndParams builds the statements creating one node from input,
// bound to varName. withVars lists the variables that must stay in scope
// across nested blocks. Every parameter is namespaced under varName.
func CreateAndParams(ec *auth.Context, node *schema.Node, input map[string]interface{}, varName string, withVars []string) (cypher.Fragment, error) {
	if ec == nil {
		ec = auth.Anonymous()
	}
	g := createGenerator{ec: ec}
	return g.create(node, input, cypher.Name(varName), withVars)
}

type createGenerator struct {
	ec *auth.Context
}

func (g createGenerator) create(node *schema.Node, input map[string]interface{}, v cypher.Ident, withVars []string) (cypher.Fragment, error) {
	if err := checkWriteRules(g.ec, node, schema.OperationCreate, input); err != nil {
		return cypher.Fragment{}, err
	}
	if err := checkInputFields(node, input); err != nil {
		return cypher.Fragment{}, err
	}

	var b cypher.Builder
	b.Raw("CREATE (").Var(v).Raw(cypher.Labels(node.Labels) + ")")

	for i := range node.Properties {
		prop := &node.Properties[i]
		if err := g.setProperty(&b, node, prop, input, v); err != nil {
			return cypher.Fragment{}, err
		}
	}

	for i := range node.Relationships {
		rel := &node.Relationships[i]
		raw, present := input[rel.FieldName]
		if !present || raw == nil {
			if rel.Required {
				return cypher.Fragment{}, validationErr(node, rel.FieldName, "relationship is required")
			}
			continue
		}
		if err := g.relationship(&b, node, rel, raw, v, withVars); err != nil {
			return cypher.Fragment{}, err
		}
	}

	return b.Build(), nil
}

func (g createGenerator) setProperty(b *cypher.Builder, node *schema.Node, prop *schema.Property, input map[string]interface{}, v cypher.Ident) error {
	raw, present := input[prop.Name]
	target := "." + cypher.Escape(prop.DBName) + " = "

	if prop.Generated() {
		if present {
			return validationErr(node, prop.Name, "value is generated and cannot be set")
		}
		b.Raw("\nSET ").Var(v).Raw(target)
		if prop.AutoGenerate {
			b.Raw("randomUUID()")
		} else {
			b.Raw("datetime()")
		}
		return nil
	}

	if !present || raw == nil {
		if prop.Default == nil {
			if prop.Required {
				return validationErr(node, prop.Name, "required property is missing")
			}
			return nil
		}
		raw = prop.Default
	}

	value, err := coerceValue(prop, raw)
	if err != nil {
		return validationErr(node, prop.Name, "%v", err)
	}
	b.Raw("\nSET ").Var(v).Raw(target)
	writeParam(b, prop, v.Child(prop.Name), value)
	return nil
}

// writeParam references a parameter, converting DateTime strings to
// temporal values.
func writeParam(b *cypher.Builder, prop *schema.Property, id cypher.Ident, value interface{}) {
	if prop.Kind != schema.KindDateTime {
		b.Param(id, value)
		return
	}
	if prop.List {
		b.Raw("[x IN ").Param(id, value).Raw(" | datetime(x)]")
		return
	}
	b.Raw("datetime(").Param(id, value).Raw(")")
}

func (g createGenerator) relationship(b *cypher.Builder, node *schema.Node, rel *schema.Relationship, raw interface{}, v cypher.Ident, withVars []string) error {
	fieldInput, ok := raw.(map[string]interface{})
	if !ok {
		return validationErr(node, rel.FieldName, "expected an object with create or connect")
	}
	for key := range fieldInput {
		if key != "create" && key != "connect" {
			return validationErr(node, rel.FieldName, "unknown relationship operation %q", key)
		}
	}
	creates, err := objectList(fieldInput["create"])
	if err != nil {
		return validationErr(node, rel.FieldName, "create: %v", err)
	}
	connects, err := objectList(fieldInput["connect"])
	if err != nil {
		return validationErr(node, rel.FieldName, "connect: %v", err)
	}
	if !rel.Many && len(creates)+len(connects) > 1 {
		return validationErr(node, rel.FieldName, "relationship accepts a single node")
	}
	if rel.Required && len(creates)+len(connects) == 0 {
		return validationErr(node, rel.FieldName, "relationship is required")
	}

	with := strings.Join(withVars, ", ")
	for i, item := range creates {
		nested := v.Child(rel.FieldName, strconv.Itoa(i))
		nestedWith := make([]string, 0, len(withVars)+1)
		nestedWith = append(nestedWith, withVars...)
		nestedWith = append(nestedWith, nested.String())

		frag, err := g.create(rel.Target, item, nested, nestedWith)
		if err != nil {
			return err
		}
		b.Raw("\nWITH " + with + "\n").Fragment(frag)
		b.Raw("\nMERGE ")
		writePattern(b, v, rel, nested, "")
	}

	for i, item := range connects {
		if err := g.connect(b, node, rel, item, v.Child(rel.FieldName, "connect", strconv.Itoa(i)), v, with); err != nil {
			return err
		}
	}
	return nil
}

func (g createGenerator) connect(b *cypher.Builder, node *schema.Node, rel *schema.Relationship, item map[string]interface{}, cv, v cypher.Ident, with string) error {
	if err := checkWriteRules(g.ec, node, schema.OperationConnect, nil); err != nil {
		return err
	}
	target := rel.Target
	if err := checkWriteRules(g.ec, target, schema.OperationConnect, nil); err != nil {
		return err
	}

	for key := range item {
		if key != "where" {
			return validationErr(node, rel.FieldName, "unknown connect argument %q", key)
		}
	}
	where, ok := item["where"].(map[string]interface{})
	if item["where"] != nil && !ok {
		return validationErr(node, rel.FieldName, "connect where must be an object")
	}

	b.Raw("\nWITH " + with + "\nOPTIONAL MATCH (").Var(cv).Raw(cypher.Labels(target.Labels) + ")")
	conds, err := equalityConditions(target, where, cv, cv)
	if err != nil {
		return err
	}
	if len(conds) > 0 {
		b.Raw("\nWHERE ").Join(conds, " AND ")
	}

	var preds []cypher.Fragment
	for _, i := range target.RulesFor(schema.OperationConnect) {
		if pred, needed := rulePredicate(g.ec, target, target.Auth[i], i, "connect", cv, cv); needed {
			preds = append(preds, pred)
		}
	}
	if len(preds) > 0 {
		b.Raw("\nCALL apoc.util.validate(").Var(cv).Raw(" IS NOT NULL AND ").
			Fragment(negatedConjunction(preds)).
			Raw(", " + cypher.QuoteString(ForbiddenMessage) + ", [0])")
	}

	b.Raw("\nFOREACH(_ IN CASE ").Var(cv).Raw(" WHEN NULL THEN [] ELSE [1] END |\nMERGE ")
	writePattern(b, v, rel, cv, "")
	b.Raw("\n)")
	return nil
}

// equalityConditions compiles a property equality map into predicates over
// v with parameters under ns. Keys are processed in sorted order.
func equalityConditions(node *schema.Node, where map[string]interface{}, v, ns cypher.Ident) ([]cypher.Fragment, error) {
	keys := make([]string, 0, len(where))
	for key := range where {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	conds := make([]cypher.Fragment, 0, len(keys))
	for _, key := range keys {
		prop, ok := node.Property(key)
		if !ok {
			return nil, validationErr(node, key, "unknown property in where")
		}
		var b cypher.Builder
		b.Var(v).Raw("." + cypher.Escape(prop.DBName))
		if where[key] == nil {
			b.Raw(" IS NULL")
			conds = append(conds, b.Build())
			continue
		}
		value, err := coerceValue(prop, where[key])
		if err != nil {
			return nil, validationErr(node, key, "%v", err)
		}
		b.Raw(" = ")
		writeParam(&b, prop, ns.Child(prop.Name), value)
		conds = append(conds, b.Build())
	}
	return conds, nil
}

// writePattern renders (from)-[:TYPE]->(to) or (from)<-[:TYPE]-(to).
// labels, when set, are attached to the target node.
func writePattern(b *cypher.Builder, from cypher.Ident, rel *schema.Relationship, to cypher.Ident, labels string) {
	relType := "[:" + cypher.Escape(rel.Type) + "]"
	b.Raw("(").Var(from).Raw(")")
	if rel.Direction == schema.DirectionIn {
		b.Raw("<-" + relType + "-")
	} else {
		b.Raw("-" + relType + "->")
	}
	b.Raw("(").Var(to).Raw(labels + ")")
}

func checkInputFields(node *schema.Node, input map[string]interface{}) error {
	keys := make([]string, 0, len(input))
	for key := range input {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, ok := node.Property(key); ok {
			continue
		}
		if _, ok := node.Relationship(key); ok {
			continue
		}
		return validationErr(node, key, "unknown field")
	}
	return nil
}
