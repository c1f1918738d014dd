package naming

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaseConversion(t *testing.T) {
	tests := []struct {
		input  string
		pascal string
		camel  string
	}{
		{"Movie", "Movie", "movie"},
		{"user_profile", "UserProfile", "userProfile"},
		{"UserProfile", "UserProfile", "userProfile"},
		{"HTTPServer", "HttpServer", "httpServer"},
		{"api-v2 key", "ApiV2Key", "apiV2Key"},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.pascal, toPascalCase(tt.input))
			assert.Equal(t, tt.camel, toCamelCase(tt.input))
		})
	}
}

func TestPluralize(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"movie", "movies"},
		{"Movie", "Movies"},
		{"category", "categories"},
		{"person", "people"},
		{"status", "statuses"},
		{"userProfile", "userProfiles"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.Pluralize(tt.input))
		})
	}
}

func TestPluralizeWithOverrides(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PluralOverrides["Cactus"] = "Cacti"
	namer := New(cfg, nil)

	assert.Equal(t, "Cacti", namer.Pluralize("Cactus"))
	assert.Equal(t, "createCacti", namer.Operations("Cactus").Mutation)

	cfg.PluralOverrides["person"] = "People"
	assert.Equal(t, "People", New(cfg, nil).Pluralize("Person"), "keys match case-insensitively")
}

func TestOperations(t *testing.T) {
	namer := Default()

	ops := namer.Operations("Movie")
	assert.Equal(t, "createMovies", ops.Mutation)
	assert.Equal(t, "CreateMoviesMutationResponse", ops.ResponseType)
	assert.Equal(t, "movies", ops.ResponseField)
	assert.Equal(t, "MovieCreateInput", ops.CreateInput)
	assert.Equal(t, "MovieConnectWhere", ops.ConnectWhere)
	assert.Equal(t, "MovieWhere", ops.Where)
	assert.Equal(t, "MovieOptions", ops.Options)

	ops = namer.Operations("UserProfile")
	assert.Equal(t, "createUserProfiles", ops.Mutation)
	assert.Equal(t, "userProfiles", ops.ResponseField)
}

func TestRelationshipInputName(t *testing.T) {
	assert.Equal(t, "MovieActorsFieldInput", Default().RelationshipInputName("Movie", "actors"))
}

func TestReservedTypeSuffixing(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	namer := New(DefaultConfig(), logger)

	assert.Equal(t, "Query_", namer.TypeName("query"))
	assert.Equal(t, "MovieWhere_", namer.TypeName("MovieWhere"))
	assert.Equal(t, "Movie", namer.TypeName("Movie"))
	assert.Contains(t, buf.String(), "auto-suffixed")
}

func TestFieldName(t *testing.T) {
	namer := Default()
	assert.Equal(t, "releaseYear", namer.FieldName("release_year"))
	assert.Equal(t, "fTypename", namer.FieldName("__typename"))
}

func TestRegisterCollision(t *testing.T) {
	namer := Default()

	_, err := namer.Register("Movie")
	require.NoError(t, err)

	_, err = namer.Register("Movie")
	require.Error(t, err)
	var collision *CollisionError
	require.True(t, errors.As(err, &collision))
	assert.Equal(t, "Movie", collision.Name)

	namer.Reset()
	_, err = namer.Register("Movie")
	require.NoError(t, err)
}

func TestRegisterPluralCollision(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PluralOverrides["Sheep"] = "Sheep"
	cfg.PluralOverrides["SheepFlock"] = "Sheep"
	namer := New(cfg, nil)

	_, err := namer.Register("Sheep")
	require.NoError(t, err)
	_, err = namer.Register("SheepFlock")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "createSheep")
}
