package schema

import (
	"errors"
	"fmt"
	"sort"

	"cypher-graphql/internal/naming"
)

// Compile validates type definitions and builds an immutable Schema,
// including the table of generated operation names. All problems found are
// returned together.
func Compile(def Definition, namer *naming.Namer) (*Schema, error) {
	if namer == nil {
		namer = naming.Default()
	}
	namer.Reset()

	s := &Schema{
		byName:     make(map[string]*Node, len(def.Nodes)),
		byMutation: make(map[string]*Node, len(def.Nodes)),
	}

	var errs []error
	compiled := make([]*Node, len(def.Nodes))
	// First pass registers names so relationships can resolve any target.
	for i := range def.Nodes {
		nd := &def.Nodes[i]
		if nd.Name == "" {
			errs = append(errs, fmt.Errorf("node %d: name is required", i))
			continue
		}
		typeName := namer.TypeName(nd.Name)
		names, err := namer.Register(typeName)
		if err != nil {
			errs = append(errs, fmt.Errorf("node %s: %w", nd.Name, err))
			continue
		}
		labels := nd.Labels
		if len(labels) == 0 {
			labels = []string{nd.Name}
		}
		node := &Node{
			Name:              typeName,
			Labels:            append([]string(nil), labels...),
			Names:             names,
			propertyIndex:     make(map[string]int),
			relationshipIndex: make(map[string]int),
		}
		compiled[i] = node
		s.Nodes = append(s.Nodes, node)
		s.byName[nd.Name] = node
		if typeName != nd.Name {
			s.byName[typeName] = node
		}
		s.byMutation[names.Mutation] = node
	}

	for i, node := range compiled {
		if node != nil {
			errs = append(errs, compileFields(s, node, &def.Nodes[i], namer)...)
		}
	}
	for i, node := range compiled {
		if node != nil {
			errs = append(errs, compileAuth(node, def.Nodes[i].Auth)...)
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return s, nil
}

func compileFields(s *Schema, node *Node, nd *NodeDefinition, namer *naming.Namer) []error {
	var errs []error
	fail := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("node %s: "+format, append([]interface{}{node.Name}, args...)...))
	}

	for _, pd := range nd.Properties {
		if pd.Name == "" {
			fail("property name is required")
			continue
		}
		name := namer.FieldName(pd.Name)
		if _, dup := node.propertyIndex[name]; dup {
			fail("duplicate field %q", name)
			continue
		}
		kind := Kind(pd.Type)
		if !kind.valid() {
			fail("property %s: unknown type %q", name, pd.Type)
			continue
		}
		if pd.AutoGenerate && kind != KindID {
			fail("property %s: autogenerate requires type ID", name)
		}
		if pd.Timestamp && kind != KindDateTime {
			fail("property %s: timestamp requires type DateTime", name)
		}
		if pd.Default != nil && (pd.AutoGenerate || pd.Timestamp) {
			fail("property %s: default cannot be combined with generated values", name)
		}
		dbName := pd.DBName
		if dbName == "" {
			dbName = pd.Name
		}
		node.propertyIndex[name] = len(node.Properties)
		node.Properties = append(node.Properties, Property{
			Name:         name,
			DBName:       dbName,
			Kind:         kind,
			List:         pd.List,
			Required:     pd.Required,
			AutoGenerate: pd.AutoGenerate,
			Timestamp:    pd.Timestamp,
			Default:      pd.Default,
		})
	}

	for _, rd := range nd.Relationships {
		if rd.Field == "" {
			fail("relationship field is required")
			continue
		}
		name := namer.FieldName(rd.Field)
		if _, dup := node.propertyIndex[name]; dup {
			fail("relationship %s collides with a property", name)
			continue
		}
		if _, dup := node.relationshipIndex[name]; dup {
			fail("duplicate relationship %q", name)
			continue
		}
		if rd.Type == "" {
			fail("relationship %s: type is required", name)
			continue
		}
		dir := DirectionOut
		switch rd.Direction {
		case "", string(DirectionOut):
		case string(DirectionIn):
			dir = DirectionIn
		default:
			fail("relationship %s: unknown direction %q", name, rd.Direction)
			continue
		}
		target, ok := s.byName[rd.Target]
		if !ok {
			fail("relationship %s: unknown target %q", name, rd.Target)
			continue
		}
		node.relationshipIndex[name] = len(node.Relationships)
		node.Relationships = append(node.Relationships, Relationship{
			FieldName: name,
			Type:      rd.Type,
			Direction: dir,
			Many:      rd.Many,
			Required:  rd.Required,
			Target:    target,
			InputName: namer.RelationshipInputName(node.Name, name),
		})
	}
	return errs
}

func compileAuth(node *Node, defs []AuthRuleDefinition) []error {
	var errs []error
	fail := func(i int, format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("node %s: auth rule %d: "+format, append([]interface{}{node.Name, i}, args...)...))
	}

	for i, ad := range defs {
		if len(ad.Operations) == 0 {
			fail(i, "operations are required")
			continue
		}
		rule := AuthRule{
			IsAuthenticated: ad.IsAuthenticated,
			Roles:           append([]string(nil), ad.Roles...),
			Fields:          append([]string(nil), ad.Fields...),
		}
		valid := true
		for _, op := range ad.Operations {
			switch Operation(op) {
			case OperationRead, OperationCreate, OperationConnect:
				rule.Operations = append(rule.Operations, Operation(op))
			default:
				fail(i, "unknown operation %q", op)
				valid = false
			}
		}
		for _, f := range ad.Fields {
			_, isProp := node.Property(f)
			_, isRel := node.Relationship(f)
			if !isProp && !isRel {
				fail(i, "unknown field %q", f)
				valid = false
			}
		}
		var err error
		if rule.Allow, err = claimBindings(node, ad.Allow); err != nil {
			fail(i, "allow: %v", err)
			valid = false
		}
		if rule.Bind, err = claimBindings(node, ad.Bind); err != nil {
			fail(i, "bind: %v", err)
			valid = false
		}
		if valid {
			node.Auth = append(node.Auth, rule)
		}
	}
	return errs
}

func claimBindings(node *Node, m map[string]string) ([]ClaimBinding, error) {
	if len(m) == 0 {
		return nil, nil
	}
	props := make([]string, 0, len(m))
	for prop := range m {
		props = append(props, prop)
	}
	sort.Strings(props)

	out := make([]ClaimBinding, 0, len(props))
	for _, prop := range props {
		if _, ok := node.Property(prop); !ok {
			return nil, fmt.Errorf("unknown property %q", prop)
		}
		if _, ok := ClaimPath(m[prop]); !ok {
			return nil, fmt.Errorf("property %s: claim reference %q must start with $jwt.", prop, m[prop])
		}
		out = append(out, ClaimBinding{Property: prop, Claim: m[prop]})
	}
	return out, nil
}
