package naming

import "strings"

// graphqlReservedTypeWords contains GraphQL keywords and built-in types
// that should not be used as node type names.
var graphqlReservedTypeWords = map[string]bool{
	"query":        true,
	"mutation":     true,
	"subscription": true,
	"type":         true,
	"schema":       true,
	"scalar":       true,
	"enum":         true,
	"input":        true,
	"interface":    true,
	"union":        true,
	"fragment":     true,
	"directive":    true,
	"extend":       true,
	"implements":   true,
	"on":           true,

	"int":      true,
	"float":    true,
	"string":   true,
	"boolean":  true,
	"id":       true,
	"datetime": true,

	"true":  true,
	"false": true,
	"null":  true,
}

// generatedTypeSuffixes are appended to node names when deriving input and
// response types, so node names ending in them would shadow generated types.
var generatedTypeSuffixes = []string{
	"createinput",
	"connectinput",
	"connectwhere",
	"fieldinput",
	"where",
	"options",
	"mutationresponse",
}

// isReservedTypeName checks if a type name is reserved.
func isReservedTypeName(name string) bool {
	lowerName := strings.ToLower(name)
	if strings.HasPrefix(lowerName, "__") {
		return true
	}
	if graphqlReservedTypeWords[lowerName] {
		return true
	}
	for _, suffix := range generatedTypeSuffixes {
		if strings.HasSuffix(lowerName, suffix) {
			return true
		}
	}
	return false
}

// isReservedFieldName checks if a field name is reserved.
func isReservedFieldName(name string) bool {
	return strings.HasPrefix(name, "__")
}
