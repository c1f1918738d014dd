package cypher

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnboundHole is returned when rendering a fragment that still has holes.
var ErrUnboundHole = errors.New("fragment has unbound holes")

type partKind int

const (
	partText partKind = iota
	partVar
	partParam
)

type part struct {
	kind  partKind
	text  string
	ident Ident
}

type param struct {
	key   Ident
	value interface{}
}

// Fragment is an immutable piece of Cypher with its parameters.
type Fragment struct {
	parts  []part
	params []param
}

// Bind returns a copy of the fragment with holes replaced according to b.
func (f Fragment) Bind(b Binding) Fragment {
	out := Fragment{
		parts:  make([]part, len(f.parts)),
		params: make([]param, len(f.params)),
	}
	for i, p := range f.parts {
		if p.kind != partText {
			p.ident = p.ident.bind(b)
		}
		out.parts[i] = p
	}
	for i, p := range f.params {
		out.params[i] = param{key: p.key.bind(b), value: p.value}
	}
	return out
}

// Text renders the Cypher text.
func (f Fragment) Text() (string, error) {
	var sb strings.Builder
	for _, p := range f.parts {
		switch p.kind {
		case partText:
			sb.WriteString(p.text)
		case partVar, partParam:
			if !p.ident.IsBound() {
				return "", fmt.Errorf("%w: %s", ErrUnboundHole, p.ident)
			}
			if p.kind == partParam {
				sb.WriteByte('$')
			}
			sb.WriteString(p.ident.String())
		}
	}
	return sb.String(), nil
}

// Params renders the fragment's parameters. Duplicate names are reported as
// ErrParamCollision.
func (f Fragment) Params() (Params, error) {
	var out Params
	for _, p := range f.params {
		if !p.key.IsBound() {
			return Params{}, fmt.Errorf("%w: parameter %s", ErrUnboundHole, p.key)
		}
		if err := out.Add(p.key.String(), p.value); err != nil {
			return Params{}, err
		}
	}
	return out, nil
}

// Render renders both the text and the parameters.
func (f Fragment) Render() (string, Params, error) {
	text, err := f.Text()
	if err != nil {
		return "", Params{}, err
	}
	params, err := f.Params()
	if err != nil {
		return "", Params{}, err
	}
	return text, params, nil
}

// Builder accumulates a Fragment.
type Builder struct {
	parts  []part
	params []param
}

// Raw appends literal text.
func (b *Builder) Raw(s string) *Builder {
	if s == "" {
		return b
	}
	if n := len(b.parts); n > 0 && b.parts[n-1].kind == partText {
		b.parts[n-1].text += s
		return b
	}
	b.parts = append(b.parts, part{kind: partText, text: s})
	return b
}

// Var appends a variable reference.
func (b *Builder) Var(id Ident) *Builder {
	b.parts = append(b.parts, part{kind: partVar, ident: id})
	return b
}

// Param appends a $parameter reference and records its value.
func (b *Builder) Param(id Ident, value interface{}) *Builder {
	b.parts = append(b.parts, part{kind: partParam, ident: id})
	b.params = append(b.params, param{key: id, value: value})
	return b
}

// Fragment splices another fragment, including its parameters.
func (b *Builder) Fragment(f Fragment) *Builder {
	for _, p := range f.parts {
		if p.kind == partText {
			b.Raw(p.text)
			continue
		}
		b.parts = append(b.parts, p)
	}
	b.params = append(b.params, f.params...)
	return b
}

// Join splices fragments separated by sep.
func (b *Builder) Join(frags []Fragment, sep string) *Builder {
	for i, f := range frags {
		if i > 0 {
			b.Raw(sep)
		}
		b.Fragment(f)
	}
	return b
}

// Build returns the accumulated fragment. The builder may keep being used.
func (b *Builder) Build() Fragment {
	f := Fragment{
		parts:  make([]part, len(b.parts)),
		params: make([]param, len(b.params)),
	}
	copy(f.parts, b.parts)
	copy(f.params, b.params)
	return f
}

// Raw returns a fragment consisting of literal text.
func Raw(s string) Fragment {
	var b Builder
	return b.Raw(s).Build()
}

// Join concatenates fragments separated by sep.
func Join(frags []Fragment, sep string) Fragment {
	var b Builder
	return b.Join(frags, sep).Build()
}
