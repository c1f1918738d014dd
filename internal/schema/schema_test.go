package schema

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cypher-graphql/internal/naming"
)

func compileYAML(t *testing.T, doc string) (*Schema, error) {
	t.Helper()
	def, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	return Compile(def, naming.Default())
}

func TestLoadFileAndCompile(t *testing.T) {
	def, err := LoadFile(filepath.Join("testdata", "movies.yaml"))
	require.NoError(t, err)

	s, err := Compile(def, nil)
	require.NoError(t, err)
	require.Len(t, s.Nodes, 2)

	movie, ok := s.Node("Movie")
	require.True(t, ok)
	assert.Equal(t, []string{"Movie"}, movie.Labels)
	assert.Equal(t, "createMovies", movie.Names.Mutation)
	assert.Equal(t, "CreateMoviesMutationResponse", movie.Names.ResponseType)
	assert.Equal(t, "movies", movie.Names.ResponseField)

	byMutation, ok := s.NodeForMutation("createMovies")
	require.True(t, ok)
	assert.Same(t, movie, byMutation)

	id, ok := movie.Property("id")
	require.True(t, ok)
	assert.True(t, id.Generated())

	actors, ok := movie.Relationship("actors")
	require.True(t, ok)
	assert.Equal(t, DirectionIn, actors.Direction)
	assert.Equal(t, "MovieActorsFieldInput", actors.InputName)
	actor, _ := s.Node("Actor")
	assert.Same(t, actor, actors.Target)

	owner, ok := actor.Property("ownerId")
	require.True(t, ok)
	assert.Equal(t, "owner_id", owner.DBName)

	require.Len(t, actor.RulesFor(OperationRead), 1)
	require.Len(t, actor.RulesFor(OperationConnect), 1)
	assert.Empty(t, actor.RulesFor(OperationCreate))
	assert.Equal(t, []ClaimBinding{{Property: "ownerId", Claim: "$jwt.sub"}}, actor.Auth[0].Allow)

	assert.Empty(t, movie.RulesFor(OperationRead))
	assert.Len(t, movie.FieldRulesFor(OperationRead, "released"), 1)
	assert.Empty(t, movie.FieldRulesFor(OperationRead, "title"))
}

func TestLoadFilesConcurrently(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.yaml")
	second := filepath.Join(dir, "b.yaml")
	require.NoError(t, os.WriteFile(first, []byte("nodes:\n  - name: Genre\n    properties:\n      - name: name\n        type: String\n"), 0o600))
	require.NoError(t, os.WriteFile(second, []byte("nodes:\n  - name: Studio\n"), 0o600))

	def, err := LoadFiles(context.Background(), []string{first, second})
	require.NoError(t, err)
	require.Len(t, def.Nodes, 2)
	assert.Equal(t, "Genre", def.Nodes[0].Name)
	assert.Equal(t, "Studio", def.Nodes[1].Name)

	_, err = LoadFiles(context.Background(), []string{first, filepath.Join(dir, "missing.yaml")})
	require.Error(t, err)
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	_, err := Decode(strings.NewReader("nodes:\n  - name: Movie\n    colour: blue\n"))
	require.Error(t, err)
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "unknown property type",
			doc:     "nodes:\n  - name: Movie\n    properties:\n      - name: title\n        type: Text\n",
			wantErr: `unknown type "Text"`,
		},
		{
			name:    "autogenerate on string",
			doc:     "nodes:\n  - name: Movie\n    properties:\n      - name: title\n        type: String\n        autogenerate: true\n",
			wantErr: "autogenerate requires type ID",
		},
		{
			name:    "unknown relationship target",
			doc:     "nodes:\n  - name: Movie\n    relationships:\n      - field: actors\n        type: ACTED_IN\n        target: Person\n",
			wantErr: `unknown target "Person"`,
		},
		{
			name:    "duplicate node",
			doc:     "nodes:\n  - name: Movie\n  - name: Movie\n",
			wantErr: `"Movie"`,
		},
		{
			name:    "bad claim reference",
			doc:     "nodes:\n  - name: Movie\n    properties:\n      - name: owner\n        type: String\n    auth:\n      - operations: [READ]\n        allow: {owner: sub}\n",
			wantErr: "must start with $jwt.",
		},
		{
			name:    "unknown operation",
			doc:     "nodes:\n  - name: Movie\n    auth:\n      - operations: [DELETE]\n",
			wantErr: `unknown operation "DELETE"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileYAML(t, tt.doc)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestClaimPath(t *testing.T) {
	path, ok := ClaimPath("$jwt.org.id")
	require.True(t, ok)
	assert.Equal(t, []string{"org", "id"}, path)

	_, ok = ClaimPath("$jwt.")
	assert.False(t, ok)
	_, ok = ClaimPath("sub")
	assert.False(t, ok)
}
