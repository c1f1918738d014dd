// Package resolvetree turns the field AST of a GraphQL resolver call into a
// tree of selected fields keyed by the object type they were selected on.
package resolvetree

// Tree is one selected field with its arguments and sub-selections.
type Tree struct {
	Name  string
	Alias string
	Args  map[string]interface{}
	// FieldsByTypeName holds sub-selections grouped by the object type
	// they apply to.
	FieldsByTypeName map[string]Fields
}

// Fields is an ordered selection, one entry per response key.
type Fields []*Tree

// ByAlias returns the field with the given response key.
func (f Fields) ByAlias(alias string) (*Tree, bool) {
	for _, t := range f {
		if t.Alias == alias {
			return t, true
		}
	}
	return nil, false
}

// ByName returns the first field selecting the named schema field.
func (f Fields) ByName(name string) (*Tree, bool) {
	for _, t := range f {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// Fields returns the sub-selection for typeName.
func (t *Tree) Fields(typeName string) Fields {
	if t == nil {
		return nil
	}
	return t.FieldsByTypeName[typeName]
}

// merge folds another selection of the same response key into t.
func (t *Tree) merge(other *Tree) {
	for typeName, fields := range other.FieldsByTypeName {
		if t.FieldsByTypeName == nil {
			t.FieldsByTypeName = make(map[string]Fields)
		}
		t.FieldsByTypeName[typeName] = mergeFields(t.FieldsByTypeName[typeName], fields)
	}
}

func mergeFields(into Fields, add Fields) Fields {
	for _, f := range add {
		if existing, ok := into.ByAlias(f.Alias); ok {
			existing.merge(f)
			continue
		}
		into = append(into, f)
	}
	return into
}
