package resolvetree

import (
	"fmt"
	"strconv"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

// FromResolveParams builds the tree for the field being resolved.
func FromResolveParams(p graphql.ResolveParams) (*Tree, error) {
	if len(p.Info.FieldASTs) == 0 {
		return nil, fmt.Errorf("resolve info has no field AST")
	}
	b := builder{
		variables: p.Info.VariableValues,
		fragments: p.Info.Fragments,
	}

	root := &Tree{
		Name:  p.Info.FieldName,
		Alias: p.Info.FieldName,
		Args:  p.Args,
	}
	if field := p.Info.FieldASTs[0]; field.Alias != nil {
		root.Alias = field.Alias.Value
	}

	obj, ok := graphql.GetNamed(p.Info.ReturnType).(*graphql.Object)
	if !ok {
		return root, nil
	}
	var fields Fields
	for _, field := range p.Info.FieldASTs {
		if field.SelectionSet == nil {
			continue
		}
		sub, err := b.collect(obj, field.SelectionSet.Selections)
		if err != nil {
			return nil, err
		}
		fields = mergeFields(fields, sub)
	}
	root.FieldsByTypeName = map[string]Fields{obj.Name(): fields}
	return root, nil
}

type builder struct {
	variables map[string]interface{}
	fragments map[string]ast.Definition
}

func (b builder) collect(obj *graphql.Object, selections []ast.Selection) (Fields, error) {
	var out Fields
	for _, selection := range selections {
		switch sel := selection.(type) {
		case *ast.Field:
			if sel.Name == nil || !b.included(sel.Directives) {
				continue
			}
			t, err := b.field(obj, sel)
			if err != nil {
				return nil, err
			}
			out = mergeFields(out, Fields{t})
		case *ast.InlineFragment:
			if !b.included(sel.Directives) || sel.SelectionSet == nil {
				continue
			}
			if sel.TypeCondition != nil && sel.TypeCondition.Name != nil && sel.TypeCondition.Name.Value != obj.Name() {
				continue
			}
			sub, err := b.collect(obj, sel.SelectionSet.Selections)
			if err != nil {
				return nil, err
			}
			out = mergeFields(out, sub)
		case *ast.FragmentSpread:
			if sel.Name == nil || !b.included(sel.Directives) {
				continue
			}
			def, ok := b.fragments[sel.Name.Value]
			if !ok {
				return nil, fmt.Errorf("unknown fragment %q", sel.Name.Value)
			}
			fragment, ok := def.(*ast.FragmentDefinition)
			if !ok || fragment.SelectionSet == nil {
				continue
			}
			if fragment.TypeCondition != nil && fragment.TypeCondition.Name != nil && fragment.TypeCondition.Name.Value != obj.Name() {
				continue
			}
			sub, err := b.collect(obj, fragment.SelectionSet.Selections)
			if err != nil {
				return nil, err
			}
			out = mergeFields(out, sub)
		}
	}
	return out, nil
}

func (b builder) field(obj *graphql.Object, sel *ast.Field) (*Tree, error) {
	name := sel.Name.Value
	t := &Tree{Name: name, Alias: name}
	if sel.Alias != nil {
		t.Alias = sel.Alias.Value
	}
	if name == "__typename" {
		return t, nil
	}

	def, ok := obj.Fields()[name]
	if !ok {
		return nil, fmt.Errorf("unknown field %q on type %s", name, obj.Name())
	}
	t.Args = b.arguments(def.Args, sel.Arguments)

	child, ok := graphql.GetNamed(def.Type).(*graphql.Object)
	if !ok || sel.SelectionSet == nil {
		return t, nil
	}
	sub, err := b.collect(child, sel.SelectionSet.Selections)
	if err != nil {
		return nil, err
	}
	t.FieldsByTypeName = map[string]Fields{child.Name(): sub}
	return t, nil
}

func (b builder) arguments(defs []*graphql.Argument, args []*ast.Argument) map[string]interface{} {
	out := make(map[string]interface{})
	for _, def := range defs {
		if def.DefaultValue != nil {
			out[def.Name()] = def.DefaultValue
		}
	}
	for _, arg := range args {
		if arg.Name == nil {
			continue
		}
		if v, ok := arg.Value.(*ast.Variable); ok && v.Name != nil {
			if _, provided := b.variables[v.Name.Value]; !provided {
				continue
			}
		}
		out[arg.Name.Value] = b.value(arg.Value)
	}
	return out
}

// included evaluates @skip and @include.
func (b builder) included(directives []*ast.Directive) bool {
	for _, d := range directives {
		if d.Name == nil {
			continue
		}
		var cond bool
		for _, arg := range d.Arguments {
			if arg.Name != nil && arg.Name.Value == "if" {
				cond, _ = b.value(arg.Value).(bool)
			}
		}
		switch d.Name.Value {
		case "skip":
			if cond {
				return false
			}
		case "include":
			if !cond {
				return false
			}
		}
	}
	return true
}

func (b builder) value(v ast.Value) interface{} {
	switch val := v.(type) {
	case *ast.Variable:
		if val.Name == nil {
			return nil
		}
		return b.variables[val.Name.Value]
	case *ast.IntValue:
		if parsed, err := strconv.Atoi(val.Value); err == nil {
			return parsed
		}
		return val.Value
	case *ast.FloatValue:
		if parsed, err := strconv.ParseFloat(val.Value, 64); err == nil {
			return parsed
		}
		return val.Value
	case *ast.StringValue:
		return val.Value
	case *ast.BooleanValue:
		return val.Value
	case *ast.EnumValue:
		return val.Value
	case *ast.ListValue:
		out := make([]interface{}, 0, len(val.Values))
		for _, item := range val.Values {
			out = append(out, b.value(item))
		}
		return out
	case *ast.ObjectValue:
		out := make(map[string]interface{}, len(val.Fields))
		for _, field := range val.Fields {
			if field.Name == nil {
				continue
			}
			out[field.Name.Value] = b.value(field.Value)
		}
		return out
	default:
		return nil
	}
}
