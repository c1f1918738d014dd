// Package cypher holds the intermediate representation used to assemble
// parameterized Cypher text.
//
// A Fragment is a sequence of raw text and identifier references. Identifiers
// may be rooted at an unbound hole (a variable hole or a parameter namespace
// hole); holes are filled by Bind before the fragment is rendered. Fragments
// that still contain holes refuse to render.
package cypher

import (
	"strings"
)

// HoleKind identifies which kind of unbound root an identifier has.
type HoleKind int

const (
	// NoHole marks a concrete identifier.
	NoHole HoleKind = iota
	// VarHole stands for the variable the fragment will eventually be bound to.
	VarHole
	// NamespaceHole stands for the parameter namespace the fragment's
	// parameters will eventually live under.
	NamespaceHole
)

func (k HoleKind) String() string {
	switch k {
	case VarHole:
		return "<var>"
	case NamespaceHole:
		return "<namespace>"
	default:
		return ""
	}
}

// Ident is a Cypher variable or parameter name built from a root and a path.
// It renders as root_path0_path1... Segments containing an underscore are
// encoded (see segment) so that distinct paths never render the same name.
type Ident struct {
	Name string
	Hole HoleKind
	Path []string
}

// Name returns a concrete identifier.
func Name(name string, path ...string) Ident {
	return Ident{Name: name, Path: copyPath(path)}
}

// HoleVar returns an identifier rooted at the variable hole.
func HoleVar(path ...string) Ident {
	return Ident{Hole: VarHole, Path: copyPath(path)}
}

// HoleNamespace returns an identifier rooted at the parameter namespace hole.
func HoleNamespace(path ...string) Ident {
	return Ident{Hole: NamespaceHole, Path: copyPath(path)}
}

// Child returns a new identifier with the segments appended to the path.
func (id Ident) Child(segments ...string) Ident {
	path := make([]string, 0, len(id.Path)+len(segments))
	path = append(path, id.Path...)
	path = append(path, segments...)
	return Ident{Name: id.Name, Hole: id.Hole, Path: path}
}

// IsBound reports whether the identifier has a concrete root.
func (id Ident) IsBound() bool {
	return id.Hole == NoHole
}

// String renders the identifier. Unbound roots render as a marker that is
// never valid Cypher.
func (id Ident) String() string {
	root := id.Name
	if id.Hole != NoHole {
		root = id.Hole.String()
	}
	if len(id.Path) == 0 {
		return root
	}
	var sb strings.Builder
	sb.WriteString(root)
	for _, seg := range id.Path {
		sb.WriteByte('_')
		sb.WriteString(segment(seg))
	}
	return sb.String()
}

// segment renders one path segment without underscores. Plain segments are
// kept as is. Others become "0" followed by the segment with '_' written as
// "Zu" and 'Z' as "Zz". Raw segments are GraphQL names, which never start
// with a digit, or indices, which contain no letters, so an encoded segment
// never equals a raw one.
func segment(s string) string {
	if !strings.Contains(s, "_") {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s) + 4)
	sb.WriteByte('0')
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '_':
			sb.WriteString("Zu")
		case 'Z':
			sb.WriteString("Zz")
		default:
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

func (id Ident) bind(b Binding) Ident {
	switch id.Hole {
	case VarHole:
		if b.Var != "" {
			return Ident{Name: b.Var, Path: id.Path}
		}
	case NamespaceHole:
		if b.Namespace != "" {
			return Ident{Name: b.Namespace, Path: id.Path}
		}
	}
	return id
}

func copyPath(path []string) []string {
	if len(path) == 0 {
		return nil
	}
	out := make([]string, len(path))
	copy(out, path)
	return out
}

// Binding supplies concrete names for the holes of a fragment. An empty
// field leaves the matching hole unbound.
type Binding struct {
	Var       string
	Namespace string
}
