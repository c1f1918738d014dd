package translate

import (
	"fmt"
	"math"
	"reflect"
	"time"

	"cypher-graphql/internal/schema"
)

// coerceValue checks v against the property's kind and returns the value to
// send as a parameter.
func coerceValue(prop *schema.Property, v interface{}) (interface{}, error) {
	if !prop.List {
		return coerceScalar(prop.Kind, v)
	}
	items, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a list of %s", prop.Kind)
	}
	out := make([]interface{}, len(items))
	for i, item := range items {
		c, err := coerceScalar(prop.Kind, item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out[i] = c
	}
	return out, nil
}

func coerceScalar(kind schema.Kind, v interface{}) (interface{}, error) {
	switch kind {
	case schema.KindID:
		switch val := v.(type) {
		case string:
			return val, nil
		case int, int32, int64:
			return fmt.Sprintf("%d", val), nil
		}
	case schema.KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case schema.KindInt:
		switch val := v.(type) {
		case int:
			return int64(val), nil
		case int32:
			return int64(val), nil
		case int64:
			return val, nil
		case float64:
			if val != math.Trunc(val) {
				break
			}
			if !fitsInt64(val) {
				return nil, fmt.Errorf("Int value %v is out of range", val)
			}
			return int64(val), nil
		}
	case schema.KindFloat:
		switch val := v.(type) {
		case float64:
			return val, nil
		case float32:
			return float64(val), nil
		case int:
			return float64(val), nil
		case int64:
			return float64(val), nil
		}
	case schema.KindBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case schema.KindDateTime:
		switch val := v.(type) {
		case time.Time:
			return val.UTC().Format(time.RFC3339Nano), nil
		case string:
			if _, err := time.Parse(time.RFC3339Nano, val); err != nil {
				return nil, fmt.Errorf("invalid DateTime %q", val)
			}
			return val, nil
		}
	}
	return nil, fmt.Errorf("expected %s, got %T", kind, v)
}

// fitsInt64 reports whether a whole float converts to int64 without wrapping.
// 2^63 is exactly representable; MaxInt64 is not.
func fitsInt64(f float64) bool {
	return f >= math.MinInt64 && f < -math.MinInt64
}

// valuesEqual compares an input value with a claim value. Numbers compare by
// value regardless of their Go type.
func valuesEqual(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// objectList accepts a single object or a list of objects.
func objectList(v interface{}) ([]map[string]interface{}, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case map[string]interface{}:
		return []map[string]interface{}{val}, nil
	case []map[string]interface{}:
		return val, nil
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(val))
		for i, item := range val {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("item %d is not an object", i)
			}
			out = append(out, m)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected an object or a list of objects, got %T", v)
}
