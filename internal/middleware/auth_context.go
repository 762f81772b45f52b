package middleware

import (
	"context"
	"strings"
)

type authContextKey struct{}

// AuthContext carries the identity established by an auth middleware.
type AuthContext struct {
	Subject  string
	Issuer   string
	Audience []string
	Claims   map[string]any
}

// WithAuthContext stores auth in ctx.
func WithAuthContext(ctx context.Context, auth AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// AuthFromContext returns the auth context from a request context.
func AuthFromContext(ctx context.Context) (AuthContext, bool) {
	auth, ok := ctx.Value(authContextKey{}).(AuthContext)
	return auth, ok
}

// ClaimNames names the token claims that narrow what a caller may ask about.
type ClaimNames struct {
	Tables string
	Route  string
}

// DefaultClaimNames are used when a claim name is left empty.
var DefaultClaimNames = ClaimNames{Tables: "salesql_tables", Route: "salesql_route"}

// Access is the restriction a caller's token places on a question.
// A nil Tables means the token does not restrict tables.
type Access struct {
	Tables []string
	Route  string
}

// Restricted reports whether the token narrows tables or pins a route.
func (a Access) Restricted() bool {
	return a.Tables != nil || a.Route != ""
}

// AccessFromContext derives the caller's access restriction from the
// authenticated claims. It returns false for unauthenticated requests.
func AccessFromContext(ctx context.Context, names ClaimNames) (Access, bool) {
	auth, ok := AuthFromContext(ctx)
	if !ok {
		return Access{}, false
	}
	if names.Tables == "" {
		names.Tables = DefaultClaimNames.Tables
	}
	if names.Route == "" {
		names.Route = DefaultClaimNames.Route
	}

	var access Access
	if raw, present := auth.Claims[names.Tables]; present {
		access.Tables = claimStrings(raw)
		if access.Tables == nil {
			// Present but empty grants nothing.
			access.Tables = []string{}
		}
	}
	if route, ok := auth.Claims[names.Route].(string); ok {
		access.Route = strings.ToLower(strings.TrimSpace(route))
	}
	return access, true
}

// claimStrings accepts a JSON array of strings or a comma-separated string.
func claimStrings(raw any) []string {
	var out []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	switch v := raw.(type) {
	case string:
		for _, part := range strings.Split(v, ",") {
			add(part)
		}
	case []string:
		for _, s := range v {
			add(s)
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	}
	return out
}
