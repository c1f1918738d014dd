// Command jwt-mint prints an HS256 bearer token for local testing against a
// server started with auth.jwt_secret.
package main

import (
	"fmt"
	"os"
	"os/user"
	"strings"
	"time"

	"cypher-graphql/internal/auth"

	"github.com/spf13/pflag"
)

func main() {
	subjectDefault := "user-1"
	if u, err := user.Current(); err == nil {
		subjectDefault = u.Username
	}

	secret := pflag.String("secret", os.Getenv("CYGQL_AUTH_JWT_SECRET"), "HS256 shared secret (defaults to $CYGQL_AUTH_JWT_SECRET)")
	issuer := pflag.String("issuer", "", "iss claim (optional)")
	audience := pflag.String("audience", "cypher-graphql", "aud claim, comma-separated")
	subject := pflag.String("subject", subjectDefault, "sub claim")
	roles := pflag.String("roles", "", "roles claim, comma-separated")
	rolesClaim := pflag.String("roles-claim", "roles", "Dotted claim path to store roles under")
	extra := pflag.StringToString("claim", nil, "Extra string claims (key=value, repeatable)")
	expires := pflag.Duration("expires", time.Hour, "Token lifetime")
	pflag.Parse()

	if *secret == "" {
		exitErr(fmt.Errorf("--secret is required"))
	}

	now := time.Now()
	claims := map[string]interface{}{
		"sub": *subject,
		"iat": now.Unix(),
		"nbf": now.Add(-time.Minute).Unix(),
		"exp": now.Add(*expires).Unix(),
	}
	if *issuer != "" {
		claims["iss"] = *issuer
	}
	if aud := splitList(*audience); len(aud) > 0 {
		claims["aud"] = aud
	}
	for k, v := range *extra {
		claims[k] = v
	}
	if r := splitList(*roles); len(r) > 0 {
		setPath(claims, strings.Split(*rolesClaim, "."), r)
	}

	token, err := auth.Sign(*secret, claims)
	if err != nil {
		exitErr(err)
	}
	fmt.Println(token)
}

// setPath stores value under a dotted claim path such as realm_access.roles.
func setPath(claims map[string]interface{}, path []string, value interface{}) {
	for _, key := range path[:len(path)-1] {
		next, ok := claims[key].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			claims[key] = next
		}
		claims = next
	}
	claims[path[len(path)-1]] = value
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
