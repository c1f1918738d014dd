package translate

import (
	"errors"
	"fmt"

	"cypher-graphql/internal/schema"
)

// ForbiddenMessage is the message raised by runtime authorization guards.
const ForbiddenMessage = "cypher-graphql/FORBIDDEN"

// ErrForbidden matches every authorization denial, whether detected while
// translating or raised by a guard during execution.
var ErrForbidden = errors.New("forbidden")

// NamingResolutionError means the request does not follow the naming
// convention derived for the node type. It indicates a mismatch between the
// GraphQL schema and the compiled type definitions, not a client error.
type NamingResolutionError struct {
	Operation string
	TypeName  string
	FieldName string
}

func (e *NamingResolutionError) Error() string {
	if e.TypeName == "" {
		return fmt.Sprintf("no node type is created by mutation %q", e.Operation)
	}
	return fmt.Sprintf("mutation %q: request has no selection under %s.%s", e.Operation, e.TypeName, e.FieldName)
}

// ValidationError reports create input that cannot be translated.
type ValidationError struct {
	Node    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Node, e.Message)
	}
	return fmt.Sprintf("%s.%s: %s", e.Node, e.Field, e.Message)
}

// ForbiddenError reports an authorization denial.
type ForbiddenError struct {
	Node      string
	Operation schema.Operation
	Reason    string
}

func (e *ForbiddenError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("forbidden: %s", e.Reason)
	}
	return fmt.Sprintf("forbidden: %s %s: %s", e.Operation, e.Node, e.Reason)
}

// Is makes errors.Is(err, ErrForbidden) hold.
func (e *ForbiddenError) Is(target error) bool {
	return target == ErrForbidden
}

func validationErr(node *schema.Node, field, format string, args ...interface{}) error {
	return &ValidationError{Node: node.Name, Field: field, Message: fmt.Sprintf(format, args...)}
}
