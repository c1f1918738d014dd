// Package scalars defines the custom GraphQL scalars of the generated schema.
package scalars

import (
	"math"
	"strconv"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

type coercion func(interface{}) (interface{}, bool)

// newScalar adapts (value, ok) coercions to graphql-go. A false ok maps to
// null, which graphql-go reports as an invalid value.
func newScalar(name, description string, serialize, parse coercion, literal func(ast.Value) (interface{}, bool)) *graphql.Scalar {
	nullable := func(v interface{}, ok bool) interface{} {
		if !ok {
			return nil
		}
		return v
	}
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:         name,
		Description:  description,
		Serialize:    func(value interface{}) interface{} { return nullable(serialize(value)) },
		ParseValue:   func(value interface{}) interface{} { return nullable(parse(value)) },
		ParseLiteral: func(value ast.Value) interface{} { return nullable(literal(value)) },
	})
}

// NonNegativeInt is used for list limits.
func NonNegativeInt() *graphql.Scalar {
	coerce := func(value interface{}) (interface{}, bool) { return coerceNonNegativeInt(value) }
	return newScalar("NonNegativeInt", "An integer greater than or equal to zero.", coerce, coerce,
		func(value ast.Value) (interface{}, bool) {
			lit, ok := value.(*ast.IntValue)
			if !ok {
				return nil, false
			}
			n, err := strconv.Atoi(lit.Value)
			return n, err == nil && n >= 0 && n <= math.MaxInt32
		},
	)
}

// DateTime parses RFC 3339 input to time.Time. Outputs are rendered in UTC
// with nanosecond precision; values read back from Neo4j arrive as
// time.Time or as the driver's LocalDateTime.
func DateTime() *graphql.Scalar {
	return newScalar("DateTime", "An RFC 3339 timestamp, e.g. 2024-01-15T10:30:00Z.",
		func(value interface{}) (interface{}, bool) {
			t, ok := toTime(value)
			if !ok {
				return nil, false
			}
			return t.UTC().Format(time.RFC3339Nano), true
		},
		func(value interface{}) (interface{}, bool) {
			s, ok := value.(string)
			if !ok {
				return nil, false
			}
			t, err := time.Parse(time.RFC3339Nano, s)
			return t, err == nil
		},
		func(value ast.Value) (interface{}, bool) {
			lit, ok := value.(*ast.StringValue)
			if !ok {
				return nil, false
			}
			t, err := time.Parse(time.RFC3339Nano, lit.Value)
			return t, err == nil
		},
	)
}

func toTime(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, true
	case dbtype.LocalDateTime:
		return v.Time(), true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		return t, err == nil
	}
	return time.Time{}, false
}

func coerceNonNegativeInt(value interface{}) (int, bool) {
	var f float64
	switch v := value.(type) {
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case float64:
		f = v
	default:
		return 0, false
	}
	if f < 0 || f > math.MaxInt32 || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}
