package translate

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cypher-graphql/internal/auth"
	"cypher-graphql/internal/naming"
	"cypher-graphql/internal/resolvetree"
	"cypher-graphql/internal/schema"
)

const movieTypeDefs = `
nodes:
  - name: Movie
    properties:
      - name: title
        type: String
        required: true
      - name: released
        type: Int
    relationships:
      - field: actors
        type: ACTED_IN
        direction: IN
        target: Actor
        many: true
      - field: director
        type: DIRECTED
        direction: IN
        target: Person
  - name: Actor
    properties:
      - name: id
        type: ID
        autogenerate: true
      - name: name
        type: String
        required: true
  - name: Person
    properties:
      - name: name
        type: String
`

const postTypeDefs = `
nodes:
  - name: Post
    properties:
      - name: content
        type: String
      - name: authorId
        type: String
      - name: secret
        type: String
    auth:
      - operations: [READ]
        allow: {authorId: $jwt.sub}
      - operations: [READ]
        fields: [secret]
        roles: [admin]
      - operations: [CREATE]
        is_authenticated: true
        bind: {authorId: $jwt.sub}
`

func newTranslator(t *testing.T, typeDefs string) *Translator {
	t.Helper()
	def, err := schema.Decode(strings.NewReader(typeDefs))
	require.NoError(t, err)
	s, err := schema.Compile(def, naming.Default())
	require.NoError(t, err)
	return New(s, nil)
}

func field(name string) *resolvetree.Tree {
	return &resolvetree.Tree{Name: name, Alias: name}
}

func relField(name, typeName string, args map[string]interface{}, children ...*resolvetree.Tree) *resolvetree.Tree {
	return &resolvetree.Tree{
		Name:             name,
		Alias:            name,
		Args:             args,
		FieldsByTypeName: map[string]resolvetree.Fields{typeName: children},
	}
}

func createTree(mutation, responseType, responseField, typeName string, inputs []interface{}, fields ...*resolvetree.Tree) *resolvetree.Tree {
	return &resolvetree.Tree{
		Name:  mutation,
		Alias: mutation,
		Args:  map[string]interface{}{"input": inputs},
		FieldsByTypeName: map[string]resolvetree.Fields{
			responseType: {relField(responseField, typeName, nil, fields...)},
		},
	}
}

func movieTree(inputs []interface{}, fields ...*resolvetree.Tree) *resolvetree.Tree {
	return createTree("createMovies", "CreateMoviesMutationResponse", "movies", "Movie", inputs, fields...)
}

func postTree(inputs []interface{}, fields ...*resolvetree.Tree) *resolvetree.Tree {
	return createTree("createPosts", "CreatePostsMutationResponse", "posts", "Post", inputs, fields...)
}

func TestTranslateCreateTwoMovies(t *testing.T) {
	tr := newTranslator(t, movieTypeDefs)

	stmt, err := tr.TranslateCreate(nil, movieTree([]interface{}{
		map[string]interface{}{"title": "A"},
		map[string]interface{}{"title": "B"},
	}, field("title")))
	require.NoError(t, err)

	expected := `CALL {
CREATE (this0:Movie)
SET this0.title = $this0_title
RETURN this0
}
CALL {
CREATE (this1:Movie)
SET this1.title = $this1_title
RETURN this1
}
RETURN this0 {title: this0.title} AS this0, this1 {title: this1.title} AS this1`
	assert.Equal(t, expected, stmt.Cypher)
	assert.Equal(t, map[string]interface{}{"this0_title": "A", "this1_title": "B"}, stmt.Params)
	assert.Equal(t, "Movie", stmt.Node)
	assert.Equal(t, 2, stmt.Items)
	assert.False(t, stmt.Guarded)
}

func TestTranslateCreateEmptyInput(t *testing.T) {
	tr := newTranslator(t, movieTypeDefs)

	stmt, err := tr.TranslateCreate(nil, movieTree([]interface{}{}, field("title")))
	require.NoError(t, err)
	assert.True(t, stmt.Empty())
	assert.Empty(t, stmt.Params)

	stmt, err = tr.TranslateCreate(nil, movieTree(nil, field("title")))
	require.NoError(t, err)
	assert.True(t, stmt.Empty())
}

func TestTranslateCreateItemsAreIsolated(t *testing.T) {
	tr := newTranslator(t, movieTypeDefs)

	inputs := []interface{}{
		map[string]interface{}{"title": "A", "released": 1999},
		map[string]interface{}{"title": "B", "released": 2003},
		map[string]interface{}{"title": "C", "released": 2021},
	}
	stmt, err := tr.TranslateCreate(nil, movieTree(inputs, field("title"), field("released")))
	require.NoError(t, err)

	for _, v := range []string{"this0", "this1", "this2"} {
		assert.Equal(t, 1, strings.Count(stmt.Cypher, "CREATE ("+v+":Movie)"), v)
		assert.Contains(t, stmt.Cypher, "RETURN "+v+"\n}")
	}
	assert.Equal(t, 3, strings.Count(stmt.Cypher, "CALL {"))

	lastReturn := stmt.Cypher[strings.LastIndex(stmt.Cypher, "\nRETURN ")+len("\nRETURN "):]
	items := strings.Split(lastReturn, ", this")
	require.Len(t, items, 3)
	assert.True(t, strings.HasPrefix(items[0], "this0 "))
	assert.True(t, strings.HasPrefix(items[1], "1 "))
	assert.True(t, strings.HasPrefix(items[2], "2 "))

	// every item's projection is the same text modulo the variable
	assert.Equal(t,
		"RETURN this0 {title: this0.title, released: this0.released} AS this0, "+
			"this1 {title: this1.title, released: this1.released} AS this1, "+
			"this2 {title: this2.title, released: this2.released} AS this2",
		stmt.Cypher[strings.LastIndex(stmt.Cypher, "RETURN this0 {"):])

	assert.Len(t, stmt.Params, 6)
	assert.Equal(t, int64(2003), stmt.Params["this1_released"])
}

func TestTranslateCreateNestedCreateAndConnect(t *testing.T) {
	tr := newTranslator(t, movieTypeDefs)

	stmt, err := tr.TranslateCreate(nil, movieTree([]interface{}{
		map[string]interface{}{
			"title": "A",
			"actors": map[string]interface{}{
				"create":  []interface{}{map[string]interface{}{"name": "Tom"}},
				"connect": []interface{}{map[string]interface{}{"where": map[string]interface{}{"name": "Keanu"}}},
			},
		},
	}, field("title")))
	require.NoError(t, err)

	expected := `CALL {
CREATE (this0:Movie)
SET this0.title = $this0_title
WITH this0
CREATE (this0_actors_0:Actor)
SET this0_actors_0.id = randomUUID()
SET this0_actors_0.name = $this0_actors_0_name
MERGE (this0)<-[:ACTED_IN]-(this0_actors_0)
WITH this0
OPTIONAL MATCH (this0_actors_connect_0:Actor)
WHERE this0_actors_connect_0.name = $this0_actors_connect_0_name
FOREACH(_ IN CASE this0_actors_connect_0 WHEN NULL THEN [] ELSE [1] END |
MERGE (this0)<-[:ACTED_IN]-(this0_actors_connect_0)
)
RETURN this0
}
RETURN this0 {title: this0.title} AS this0`
	assert.Equal(t, expected, stmt.Cypher)
	assert.Equal(t, map[string]interface{}{
		"this0_title":                 "A",
		"this0_actors_0_name":         "Tom",
		"this0_actors_connect_0_name": "Keanu",
	}, stmt.Params)
}

func TestTranslateCreateRelationshipProjection(t *testing.T) {
	tr := newTranslator(t, movieTypeDefs)

	stmt, err := tr.TranslateCreate(nil, movieTree(
		[]interface{}{map[string]interface{}{"title": "A"}},
		field("title"),
		relField("actors", "Actor", map[string]interface{}{
			"where":   map[string]interface{}{"name": "Keanu"},
			"options": map[string]interface{}{"limit": 5},
		}, field("name")),
		relField("director", "Person", nil, field("name")),
		field("__typename"),
	))
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(stmt.Cypher, "\nRETURN this0 {title: this0.title, "+
		"actors: [(this0)<-[:ACTED_IN]-(this0_actors:Actor) WHERE this0_actors.name = $projection_actors_where_name | this0_actors {name: this0_actors.name}][..$projection_actors_options_limit], "+
		"director: head([(this0)<-[:DIRECTED]-(this0_director:Person) | this0_director {name: this0_director.name}]), "+
		`__typename: "Movie"} AS this0`), stmt.Cypher)
	assert.Equal(t, "Keanu", stmt.Params["projection_actors_where_name"])
	assert.Equal(t, int64(5), stmt.Params["projection_actors_options_limit"])
}

func TestTranslateCreateProjectionParamsMergedOnce(t *testing.T) {
	tr := newTranslator(t, movieTypeDefs)

	stmt, err := tr.TranslateCreate(nil, movieTree(
		[]interface{}{map[string]interface{}{"title": "A"}, map[string]interface{}{"title": "B"}},
		relField("actors", "Actor", map[string]interface{}{"where": map[string]interface{}{"name": "Keanu"}}, field("name")),
	))
	require.NoError(t, err)

	assert.Len(t, stmt.Params, 3)
	assert.Equal(t, 2, strings.Count(stmt.Cypher, "$projection_actors_where_name"))
}

func TestTranslateCreateNestedVariablesAreDistinct(t *testing.T) {
	tr := newTranslator(t, `
nodes:
  - name: Movie
    properties:
      - name: title
        type: String
    relationships:
      - field: a
        type: TAGGED
        direction: OUT
        target: Tag
        many: true
      - field: a1
        type: TAGGED_TOO
        direction: OUT
        target: Tag
        many: true
  - name: Tag
    properties:
      - name: id
        type: ID
        autogenerate: true
`)

	tags := make([]interface{}, 11)
	for i := range tags {
		tags[i] = map[string]interface{}{}
	}
	stmt, err := tr.TranslateCreate(nil, movieTree([]interface{}{
		map[string]interface{}{
			"a":  map[string]interface{}{"create": tags},
			"a1": map[string]interface{}{"create": []interface{}{map[string]interface{}{}}},
		},
	}, field("title")))
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(stmt.Cypher, "CREATE (this0_a_10:Tag)"))
	assert.Equal(t, 1, strings.Count(stmt.Cypher, "CREATE (this0_a1_0:Tag)"))
	assert.Equal(t, 1, strings.Count(stmt.Cypher, "MERGE (this0)-[:TAGGED_TOO]->(this0_a1_0)"))
	assert.Equal(t, 12, strings.Count(stmt.Cypher, "randomUUID()"))
}

func TestTranslateCreateUnderscoreAliasesKeepParamsApart(t *testing.T) {
	tr := newTranslator(t, `
nodes:
  - name: Movie
    properties:
      - name: title
        type: String
    relationships:
      - field: actors
        type: ACTED_IN
        direction: IN
        target: Actor
        many: true
  - name: Actor
    properties:
      - name: name
        type: String
    relationships:
      - field: movies
        type: ACTED_IN
        direction: OUT
        target: Movie
        many: true
`)

	aliased := relField("actors", "Actor", map[string]interface{}{"options": map[string]interface{}{"limit": 1}}, field("name"))
	aliased.Alias = "actors_movies"
	nested := relField("actors", "Actor", nil,
		relField("movies", "Movie", map[string]interface{}{"options": map[string]interface{}{"limit": 2}}, field("title")))

	stmt, err := tr.TranslateCreate(nil, movieTree([]interface{}{map[string]interface{}{"title": "A"}}, aliased, nested))
	require.NoError(t, err)

	assert.Equal(t, int64(1), stmt.Params["projection_0actorsZumovies_options_limit"])
	assert.Equal(t, int64(2), stmt.Params["projection_actors_movies_options_limit"])
	assert.Contains(t, stmt.Cypher, "actors_movies: [(this0)<-[:ACTED_IN]-(this0_0actorsZumovies:Actor) | this0_0actorsZumovies {name: this0_0actorsZumovies.name}][..$projection_0actorsZumovies_options_limit]")
	assert.Contains(t, stmt.Cypher, "movies: [(this0_actors)-[:ACTED_IN]->(this0_actors_movies:Movie) | this0_actors_movies {title: this0_actors_movies.title}][..$projection_actors_movies_options_limit]")
}

func TestTranslateCreateNoGuardWithoutRules(t *testing.T) {
	tr := newTranslator(t, movieTypeDefs)

	stmt, err := tr.TranslateCreate(auth.Anonymous(), movieTree([]interface{}{map[string]interface{}{"title": "A"}}, field("title")))
	require.NoError(t, err)
	assert.NotContains(t, stmt.Cypher, "apoc.util.validate")
	assert.False(t, stmt.Guarded)
}

func TestTranslateCreateReadGuard(t *testing.T) {
	tr := newTranslator(t, postTypeDefs)
	ec := auth.FromClaims(map[string]interface{}{"sub": "u1"}, "")

	stmt, err := tr.TranslateCreate(ec, postTree([]interface{}{
		map[string]interface{}{"content": "a", "authorId": "u1"},
		map[string]interface{}{"content": "b", "authorId": "u1"},
	}, field("content"), field("secret")))
	require.NoError(t, err)

	expected := `CALL {
CREATE (this0:Post)
SET this0.content = $this0_content
SET this0.authorId = $this0_authorId
RETURN this0
}
CALL {
CREATE (this1:Post)
SET this1.content = $this1_content
SET this1.authorId = $this1_authorId
RETURN this1
}
CALL apoc.util.validate(NOT (this0.authorId = $projection_auth_read0_authorId AND false), "cypher-graphql/FORBIDDEN", [0])
CALL apoc.util.validate(NOT (this1.authorId = $projection_auth_read0_authorId AND false), "cypher-graphql/FORBIDDEN", [0])
RETURN this0 {content: this0.content, secret: this0.secret} AS this0, this1 {content: this1.content, secret: this1.secret} AS this1`
	assert.Equal(t, expected, stmt.Cypher)
	assert.Equal(t, "u1", stmt.Params["projection_auth_read0_authorId"])
	assert.Len(t, stmt.Params, 5)
	assert.True(t, stmt.Guarded)
}

func TestTranslateCreateReadGuardSatisfiedRole(t *testing.T) {
	tr := newTranslator(t, postTypeDefs)
	ec := auth.FromClaims(map[string]interface{}{"sub": "u1", "roles": []interface{}{"admin"}}, "")

	stmt, err := tr.TranslateCreate(ec, postTree([]interface{}{
		map[string]interface{}{"content": "a", "authorId": "u1"},
	}, field("secret")))
	require.NoError(t, err)
	assert.Contains(t, stmt.Cypher, "\nCALL apoc.util.validate(NOT (this0.authorId = $projection_auth_read0_authorId), ")
}

func TestTranslateCreateNestedReadAuth(t *testing.T) {
	tr := newTranslator(t, `
nodes:
  - name: Movie
    properties:
      - name: title
        type: String
    relationships:
      - field: actors
        type: ACTED_IN
        direction: IN
        target: Actor
        many: true
  - name: Actor
    properties:
      - name: name
        type: String
    auth:
      - operations: [READ]
        roles: [admin]
`)

	stmt, err := tr.TranslateCreate(nil, movieTree(
		[]interface{}{map[string]interface{}{"title": "A"}},
		relField("actors", "Actor", nil, field("name")),
	))
	require.NoError(t, err)
	assert.Contains(t, stmt.Cypher, `[(this0)<-[:ACTED_IN]-(this0_actors:Actor) WHERE apoc.util.validatePredicate(NOT (false), "cypher-graphql/FORBIDDEN", [0]) | this0_actors {name: this0_actors.name}]`)
	assert.False(t, stmt.Guarded)
}

func TestTranslateCreateForbidden(t *testing.T) {
	tr := newTranslator(t, postTypeDefs)

	tests := []struct {
		name  string
		ec    *auth.Context
		input map[string]interface{}
	}{
		{"anonymous", auth.Anonymous(), map[string]interface{}{"authorId": "u1"}},
		{"bind mismatch", auth.FromClaims(map[string]interface{}{"sub": "u1"}, ""), map[string]interface{}{"authorId": "u2"}},
		{"bind missing", auth.FromClaims(map[string]interface{}{"sub": "u1"}, ""), map[string]interface{}{"content": "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := tr.TranslateCreate(tt.ec, postTree([]interface{}{tt.input}, field("content")))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrForbidden))
			var forbidden *ForbiddenError
			require.True(t, errors.As(err, &forbidden))
			assert.Equal(t, schema.OperationCreate, forbidden.Operation)
			assert.True(t, stmt.Empty())
		})
	}
}

func TestTranslateCreateConnectForbidden(t *testing.T) {
	tr := newTranslator(t, `
nodes:
  - name: Movie
    properties:
      - name: title
        type: String
    relationships:
      - field: studio
        type: MADE_BY
        target: Studio
  - name: Studio
    properties:
      - name: name
        type: String
      - name: ownerId
        type: String
    auth:
      - operations: [CONNECT]
        is_authenticated: true
        allow: {ownerId: $jwt.sub}
`)
	input := []interface{}{map[string]interface{}{
		"title":  "A",
		"studio": map[string]interface{}{"connect": map[string]interface{}{"where": map[string]interface{}{"name": "Acme"}}},
	}}

	_, err := tr.TranslateCreate(auth.Anonymous(), movieTree(input, field("title")))
	require.ErrorIs(t, err, ErrForbidden)

	stmt, err := tr.TranslateCreate(auth.FromClaims(map[string]interface{}{"sub": "u1"}, ""), movieTree(input, field("title")))
	require.NoError(t, err)
	assert.Contains(t, stmt.Cypher, "OPTIONAL MATCH (this0_studio_connect_0:Studio)\nWHERE this0_studio_connect_0.name = $this0_studio_connect_0_name\n"+
		`CALL apoc.util.validate(this0_studio_connect_0 IS NOT NULL AND NOT (this0_studio_connect_0.ownerId = $this0_studio_connect_0_auth_connect0_ownerId), "cypher-graphql/FORBIDDEN", [0])`)
	assert.Contains(t, stmt.Cypher, "MERGE (this0)-[:MADE_BY]->(this0_studio_connect_0)")
	assert.Equal(t, "u1", stmt.Params["this0_studio_connect_0_auth_connect0_ownerId"])
}

func TestTranslateCreateValidation(t *testing.T) {
	tr := newTranslator(t, movieTypeDefs)

	tests := []struct {
		name  string
		input interface{}
		field string
	}{
		{"missing required", map[string]interface{}{"released": 1999}, "title"},
		{"unknown field", map[string]interface{}{"title": "A", "rating": 5}, "rating"},
		{"wrong kind", map[string]interface{}{"title": 42}, "title"},
		{"fractional int", map[string]interface{}{"title": "A", "released": 1999.5}, "released"},
		{"int beyond int64", map[string]interface{}{"title": "A", "released": 1e19}, "released"},
		{"int at 2^63", map[string]interface{}{"title": "A", "released": 9223372036854775808.0}, "released"},
		{"generated value", map[string]interface{}{"title": "A", "actors": map[string]interface{}{
			"create": []interface{}{map[string]interface{}{"id": "x", "name": "Tom"}},
		}}, "id"},
		{"single relationship given many", map[string]interface{}{"title": "A", "director": map[string]interface{}{
			"create": []interface{}{map[string]interface{}{"name": "X"}, map[string]interface{}{"name": "Y"}},
		}}, "director"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tr.TranslateCreate(nil, movieTree([]interface{}{tt.input}, field("title")))
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	stmt, err := tr.TranslateCreate(nil, movieTree([]interface{}{map[string]interface{}{"title": "A", "released": -9223372036854775808.0}}, field("title")))
	require.NoError(t, err)
	assert.Equal(t, int64(math.MinInt64), stmt.Params["this0_released"])

	_, err = tr.TranslateCreate(nil, movieTree([]interface{}{"not an object"}, field("title")))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "input", verr.Field)
}

func TestTranslateCreateNamingResolution(t *testing.T) {
	tr := newTranslator(t, movieTypeDefs)

	_, err := tr.TranslateCreate(nil, createTree("createFilms", "CreateFilmsMutationResponse", "films", "Film",
		[]interface{}{map[string]interface{}{"title": "A"}}))
	var nerr *NamingResolutionError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, "createFilms", nerr.Operation)

	_, err = tr.TranslateCreate(nil, createTree("createMovies", "MoviesPayload", "movies", "Movie",
		[]interface{}{map[string]interface{}{"title": "A"}}, field("title")))
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, "CreateMoviesMutationResponse", nerr.TypeName)
	assert.Equal(t, "movies", nerr.FieldName)
}

func TestTranslateCreateWithoutNodeSelection(t *testing.T) {
	tr := newTranslator(t, movieTypeDefs)

	tree := &resolvetree.Tree{
		Name: "createMovies",
		Args: map[string]interface{}{"input": []interface{}{map[string]interface{}{"title": "A"}}},
		FieldsByTypeName: map[string]resolvetree.Fields{
			"CreateMoviesMutationResponse": {field("__typename")},
		},
	}
	stmt, err := tr.TranslateCreate(nil, tree)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(stmt.Cypher, "\nRETURN this0 {} AS this0"))
}

func TestCreateAndParamsDefaultsAndTimestamps(t *testing.T) {
	tr := newTranslator(t, `
nodes:
  - name: Review
    labels: [Review, Content]
    properties:
      - name: id
        type: ID
        autogenerate: true
      - name: createdAt
        type: DateTime
        timestamp: true
      - name: stars
        type: Int
        default: 3
      - name: publishedAt
        type: DateTime
`)
	node, ok := tr.Schema().Node("Review")
	require.True(t, ok)

	frag, err := CreateAndParams(nil, node, map[string]interface{}{"publishedAt": "2024-01-02T03:04:05Z"}, "this0", []string{"this0"})
	require.NoError(t, err)
	text, params, err := frag.Render()
	require.NoError(t, err)

	assert.Equal(t, `CREATE (this0:Review:Content)
SET this0.id = randomUUID()
SET this0.createdAt = datetime()
SET this0.stars = $this0_stars
SET this0.publishedAt = datetime($this0_publishedAt)`, text)
	assert.Equal(t, map[string]interface{}{
		"this0_stars":       int64(3),
		"this0_publishedAt": "2024-01-02T03:04:05Z",
	}, params.Map())
}
