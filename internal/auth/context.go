// Package auth carries the caller's identity (authentication state, roles
// and JWT claims) through request handling and into query translation.
package auth

import (
	"context"
	"strings"

	"cypher-graphql/internal/schema"
)

// Context is the execution context auth rules are evaluated against.
type Context struct {
	Authenticated bool
	Subject       string
	Roles         []string
	Claims        map[string]interface{}
}

// Anonymous returns the context for an unauthenticated caller.
func Anonymous() *Context {
	return &Context{Claims: map[string]interface{}{}}
}

// FromClaims builds an authenticated context from verified JWT claims.
// rolesClaim is a dotted path such as "roles" or "realm_access.roles".
func FromClaims(claims map[string]interface{}, rolesClaim string) *Context {
	if claims == nil {
		claims = map[string]interface{}{}
	}
	c := &Context{
		Authenticated: true,
		Claims:        claims,
	}
	c.Subject, _ = claims["sub"].(string)
	if rolesClaim == "" {
		rolesClaim = "roles"
	}
	if raw, ok := lookupPath(claims, strings.Split(rolesClaim, ".")); ok {
		c.Roles = stringList(raw)
	}
	return c
}

// HasAnyRole reports whether the caller holds at least one of roles.
func (c *Context) HasAnyRole(roles []string) bool {
	for _, want := range roles {
		for _, have := range c.Roles {
			if want == have {
				return true
			}
		}
	}
	return false
}

// ClaimValue resolves a claim reference such as "$jwt.sub".
func (c *Context) ClaimValue(ref string) (interface{}, bool) {
	path, ok := schema.ClaimPath(ref)
	if !ok {
		return nil, false
	}
	v, ok := lookupPath(c.Claims, path)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func lookupPath(claims map[string]interface{}, path []string) (interface{}, bool) {
	var current interface{} = claims
	for _, key := range path {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func stringList(raw interface{}) []string {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return nil
		}
		return strings.Fields(strings.ReplaceAll(v, ",", " "))
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

type contextKey struct{}

// WithContext attaches an auth context to ctx.
func WithContext(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the auth context attached to ctx, or an anonymous one.
func FromContext(ctx context.Context) *Context {
	if c, ok := ctx.Value(contextKey{}).(*Context); ok && c != nil {
		return c
	}
	return Anonymous()
}
