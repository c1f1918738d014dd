package naming

import (
	"fmt"
	"log/slog"
)

// CollisionError reports two sources deriving the same generated name.
type CollisionError struct {
	Kind           string
	Name           string
	ExistingSource string
	NewSource      string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("%s name %q generated by both %s and %s", e.Kind, e.Name, e.ExistingSource, e.NewSource)
}

// CollisionRegistry tracks generated names per kind and rejects duplicates.
type CollisionRegistry struct {
	seen   map[string]map[string]string // kind -> name -> source
	logger *slog.Logger
}

// NewCollisionRegistry creates an empty registry.
func NewCollisionRegistry(logger *slog.Logger) *CollisionRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &CollisionRegistry{
		seen:   make(map[string]map[string]string),
		logger: logger,
	}
}

// Register records name under kind. A name already registered by another
// source is a collision.
func (c *CollisionRegistry) Register(kind, name, source string) error {
	names, ok := c.seen[kind]
	if !ok {
		names = make(map[string]string)
		c.seen[kind] = names
	}
	if existing, exists := names[name]; exists {
		c.logger.Error("naming collision detected",
			slog.String("kind", kind),
			slog.String("name", name),
			slog.String("existing_source", existing),
			slog.String("new_source", source),
		)
		return &CollisionError{Kind: kind, Name: name, ExistingSource: existing, NewSource: source}
	}
	names[name] = source
	return nil
}

// Exists reports whether a name is registered for kind.
func (c *CollisionRegistry) Exists(kind, name string) bool {
	_, ok := c.seen[kind][name]
	return ok
}
