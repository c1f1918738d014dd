package cypher

import (
	"errors"
	"fmt"
)

// ErrParamCollision is returned when two parameters claim the same name.
var ErrParamCollision = errors.New("parameter name collision")

// Params is an ordered set of uniquely named query parameters.
// The zero value is ready to use.
type Params struct {
	keys   []string
	values map[string]interface{}
}

// Add inserts a parameter. It fails if the key is already present.
func (p *Params) Add(key string, value interface{}) error {
	if _, exists := p.values[key]; exists {
		return fmt.Errorf("%w: %q", ErrParamCollision, key)
	}
	if p.values == nil {
		p.values = make(map[string]interface{})
	}
	p.keys = append(p.keys, key)
	p.values[key] = value
	return nil
}

// Merge copies every parameter of other into p. Nothing is copied if any key
// collides.
func (p *Params) Merge(other Params) error {
	for _, key := range other.keys {
		if _, exists := p.values[key]; exists {
			return fmt.Errorf("%w: %q", ErrParamCollision, key)
		}
	}
	for _, key := range other.keys {
		if err := p.Add(key, other.values[key]); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of parameters.
func (p Params) Len() int {
	return len(p.keys)
}

// Keys returns parameter names in insertion order.
func (p Params) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Map returns a copy of the parameters as a plain map.
func (p Params) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(p.keys))
	for _, key := range p.keys {
		out[key] = p.values[key]
	}
	return out
}
