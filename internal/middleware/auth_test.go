package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cypher-graphql/internal/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newSharedSecretVerifier(t *testing.T) TokenVerifier {
	t.Helper()
	v, err := auth.NewJWTVerifier(auth.JWTConfig{
		Secret:     testSecret,
		Issuer:     "https://issuer.test",
		RolesClaim: "roles",
	})
	require.NoError(t, err)
	return SharedSecretVerifier{JWT: v}
}

func mintToken(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	token, err := auth.Sign(testSecret, claims)
	require.NoError(t, err)
	return token
}

// serveAuth runs a request through AuthMiddleware and returns the recorder
// plus the auth context the handler saw (nil when it was not reached).
func serveAuth(t *testing.T, cfg AuthConfig, authorization string) (*httptest.ResponseRecorder, *auth.Context) {
	t.Helper()
	var seen *auth.Context
	handler := AuthMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = auth.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/graphql", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, seen
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	token := mintToken(t, map[string]interface{}{
		"iss":   "https://issuer.test",
		"sub":   "user-1",
		"roles": []string{"editor", "viewer"},
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	rec, caller := serveAuth(t, AuthConfig{Verifier: newSharedSecretVerifier(t)}, "Bearer "+token)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, caller)
	assert.True(t, caller.Authenticated)
	assert.Equal(t, "user-1", caller.Subject)
	assert.Equal(t, []string{"editor", "viewer"}, caller.Roles)
}

func TestAuthMiddleware_MissingTokenIsAnonymous(t *testing.T) {
	rec, caller := serveAuth(t, AuthConfig{Verifier: newSharedSecretVerifier(t)}, "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, caller)
	assert.False(t, caller.Authenticated)
	assert.Empty(t, caller.Roles)
}

func TestAuthMiddleware_MissingTokenRequired(t *testing.T) {
	rec, caller := serveAuth(t, AuthConfig{Verifier: newSharedSecretVerifier(t), Required: true}, "")

	assert.Nil(t, caller)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "missing bearer token", body["error"])
}

func TestAuthMiddleware_RejectsBadTokens(t *testing.T) {
	expired := mintToken(t, map[string]interface{}{
		"iss": "https://issuer.test",
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	wrongIssuer := mintToken(t, map[string]interface{}{
		"iss": "https://other.test",
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	for name, header := range map[string]string{
		"garbage":      "Bearer not-a-jwt",
		"expired":      "Bearer " + expired,
		"wrong issuer": "Bearer " + wrongIssuer,
	} {
		t.Run(name, func(t *testing.T) {
			rec, caller := serveAuth(t, AuthConfig{Verifier: newSharedSecretVerifier(t)}, header)
			assert.Nil(t, caller)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestAuthMiddleware_NoVerifier(t *testing.T) {
	rec, caller := serveAuth(t, AuthConfig{}, "Bearer whatever")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, caller.Authenticated)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer  abc "))
	assert.Empty(t, bearerToken("Basic abc"))
	assert.Empty(t, bearerToken("Bearer"))
	assert.Empty(t, bearerToken(""))
}

func TestValidateTimeClaims(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	skew := time.Minute

	assert.NoError(t, validateTimeClaims(map[string]interface{}{"exp": float64(now.Unix() - 30)}, now, skew))
	assert.EqualError(t, validateTimeClaims(map[string]interface{}{"exp": float64(now.Unix() - 120)}, now, skew), "token expired")
	assert.NoError(t, validateTimeClaims(map[string]interface{}{"nbf": json.Number("1700000030")}, now, skew))
	assert.EqualError(t, validateTimeClaims(map[string]interface{}{"nbf": "1700000600"}, now, skew), "token not valid yet")
	assert.NoError(t, validateTimeClaims(map[string]interface{}{"exp": true}, now, skew))
}

func TestNewOIDCVerifier_ConfigErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewOIDCVerifier(ctx, OIDCConfig{IssuerURL: "https://issuer.test"}, nil)
	assert.ErrorContains(t, err, "issuer/audience")

	_, err = NewOIDCVerifier(ctx, OIDCConfig{IssuerURL: "http://issuer.test", Audience: "cypher-graphql"}, nil)
	assert.ErrorContains(t, err, "https")

	_, err = NewOIDCVerifier(ctx, OIDCConfig{IssuerURL: "://bad", Audience: "cypher-graphql"}, nil)
	assert.ErrorContains(t, err, "invalid oidc issuer url")
}
