package resolver

import (
	"github.com/graphql-go/graphql"

	"cypher-graphql/internal/schema"
)

// emptyInputField stands in for create inputs that have no settable fields;
// GraphQL input objects must declare at least one field.
const emptyInputField = "_emptyInput"

// declareNodeTypes creates every named type of a node. Field maps are
// thunks so node types may reference each other in cycles.
func (r *Resolver) declareNodeTypes(node *schema.Node) {
	r.objects[node.Name] = graphql.NewObject(graphql.ObjectConfig{
		Name:   node.Name,
		Fields: graphql.FieldsThunk(func() graphql.Fields { return r.objectFields(node) }),
	})

	if where := r.whereFields(node); len(where) > 0 {
		whereInput := graphql.NewInputObject(graphql.InputObjectConfig{
			Name:   node.Names.Where,
			Fields: where,
		})
		r.whereInputs[node.Name] = whereInput
		r.connectWhere[node.Name] = graphql.NewInputObject(graphql.InputObjectConfig{
			Name: node.Names.ConnectWhere,
			Fields: graphql.InputObjectConfigFieldMap{
				"where": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(whereInput)},
			},
		})
	}

	r.optionsInputs[node.Name] = graphql.NewInputObject(graphql.InputObjectConfig{
		Name: node.Names.Options,
		Fields: graphql.InputObjectConfigFieldMap{
			"limit": &graphql.InputObjectFieldConfig{Type: r.nonNegativeInt},
		},
	})

	r.createInputs[node.Name] = graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   node.Names.CreateInput,
		Fields: graphql.InputObjectConfigFieldMapThunk(func() graphql.InputObjectConfigFieldMap { return r.createInputFields(node) }),
	})

	for i := range node.Relationships {
		rel := &node.Relationships[i]
		r.fieldInputs[rel.InputName] = graphql.NewInputObject(graphql.InputObjectConfig{
			Name:   rel.InputName,
			Fields: graphql.InputObjectConfigFieldMapThunk(func() graphql.InputObjectConfigFieldMap { return r.relationshipInputFields(rel) }),
		})
	}

	r.responses[node.Name] = graphql.NewObject(graphql.ObjectConfig{
		Name: node.Names.ResponseType,
		Fields: graphql.Fields{
			node.Names.ResponseField: &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(r.objects[node.Name]))),
			},
		},
	})
}

func (r *Resolver) objectFields(node *schema.Node) graphql.Fields {
	fields := graphql.Fields{}
	for _, prop := range node.Properties {
		fields[prop.Name] = &graphql.Field{
			Type:    r.propertyOutputType(prop),
			Resolve: resolveProjected,
		}
	}
	for _, rel := range node.Relationships {
		target := r.objects[rel.Target.Name]
		field := &graphql.Field{
			Args:    graphql.FieldConfigArgument{},
			Resolve: resolveProjected,
		}
		if where, ok := r.whereInputs[rel.Target.Name]; ok {
			field.Args["where"] = &graphql.ArgumentConfig{Type: where}
		}
		if rel.Many {
			field.Type = graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(target)))
			field.Args["options"] = &graphql.ArgumentConfig{Type: r.optionsInputs[rel.Target.Name]}
		} else {
			field.Type = target
		}
		fields[rel.FieldName] = field
	}
	return fields
}

func (r *Resolver) whereFields(node *schema.Node) graphql.InputObjectConfigFieldMap {
	fields := graphql.InputObjectConfigFieldMap{}
	for _, prop := range node.Properties {
		if prop.List {
			continue
		}
		fields[prop.Name] = &graphql.InputObjectFieldConfig{Type: r.scalarType(prop.Kind)}
	}
	return fields
}

func (r *Resolver) createInputFields(node *schema.Node) graphql.InputObjectConfigFieldMap {
	fields := graphql.InputObjectConfigFieldMap{}
	for _, prop := range node.Properties {
		if prop.Generated() {
			continue
		}
		var t graphql.Input = r.scalarType(prop.Kind)
		if prop.List {
			t = graphql.NewList(graphql.NewNonNull(t))
		}
		if prop.Required && prop.Default == nil {
			t = graphql.NewNonNull(t)
		}
		fields[prop.Name] = &graphql.InputObjectFieldConfig{Type: t}
	}
	for _, rel := range node.Relationships {
		fields[rel.FieldName] = &graphql.InputObjectFieldConfig{Type: r.fieldInputs[rel.InputName]}
	}
	if len(fields) == 0 {
		fields[emptyInputField] = &graphql.InputObjectFieldConfig{
			Type:        graphql.Boolean,
			Description: "Placeholder; the node has no settable fields.",
		}
	}
	return fields
}

func (r *Resolver) relationshipInputFields(rel *schema.Relationship) graphql.InputObjectConfigFieldMap {
	create := graphql.Input(r.createInputs[rel.Target.Name])
	if rel.Many {
		create = graphql.NewList(graphql.NewNonNull(create))
	}
	fields := graphql.InputObjectConfigFieldMap{
		"create": &graphql.InputObjectFieldConfig{Type: create},
	}
	if cw, ok := r.connectWhere[rel.Target.Name]; ok {
		connect := graphql.Input(cw)
		if rel.Many {
			connect = graphql.NewList(graphql.NewNonNull(connect))
		}
		fields["connect"] = &graphql.InputObjectFieldConfig{Type: connect}
	}
	return fields
}

func (r *Resolver) propertyOutputType(prop schema.Property) graphql.Output {
	var t graphql.Output = r.scalarType(prop.Kind)
	if prop.List {
		t = graphql.NewList(graphql.NewNonNull(t))
	}
	if prop.Required {
		t = graphql.NewNonNull(t)
	}
	return t
}

func (r *Resolver) scalarType(kind schema.Kind) *graphql.Scalar {
	switch kind {
	case schema.KindID:
		return graphql.ID
	case schema.KindInt:
		return graphql.Int
	case schema.KindFloat:
		return graphql.Float
	case schema.KindBoolean:
		return graphql.Boolean
	case schema.KindDateTime:
		return r.dateTime
	default:
		return graphql.String
	}
}

// resolveProjected reads a field from a projected map. Projections are keyed
// by response name so aliased selections of the same field stay distinct.
func resolveProjected(p graphql.ResolveParams) (interface{}, error) {
	src, ok := p.Source.(map[string]interface{})
	if !ok {
		return nil, nil
	}
	key := p.Info.FieldName
	if p.Info.Path != nil {
		if k, ok := p.Info.Path.Key.(string); ok {
			key = k
		}
	}
	return src[key], nil
}
