// Package gate decides whether a route may run for the current session.
package gate

import (
	"net/url"
	"strings"
)

// LoginPath is where unauthenticated users are sent.
const LoginPath = "/login"

// HomePath is where authenticated users land instead of login/register.
const HomePath = "/pl"

// PublicRoutes never require a session. A route also matches its subpaths.
var PublicRoutes = []string{"/", "/login", "/register", "/api/health"}

// Decision is the outcome for one route.
type Decision struct {
	Allow    bool
	Redirect string // set when Allow is false
}

// IsPublic reports whether path is reachable without a session.
func IsPublic(path string) bool {
	for _, route := range PublicRoutes {
		if path == route {
			return true
		}
		if route != "/" && strings.HasPrefix(path, route+"/") {
			return true
		}
	}
	return false
}

// Decide applies the gating rules: protected routes need a session and
// redirect to login carrying the requested path; login and register redirect
// home when a session already exists.
func Decide(path string, authenticated bool) Decision {
	if !IsPublic(path) && !authenticated {
		return Decision{Redirect: LoginPath + "?" + url.Values{"from": {path}}.Encode()}
	}
	if (path == "/login" || path == "/register") && authenticated {
		return Decision{Redirect: HomePath}
	}
	return Decision{Allow: true}
}

// From extracts the originally requested path from a login redirect.
func From(redirect string) string {
	u, err := url.Parse(redirect)
	if err != nil {
		return ""
	}
	return u.Query().Get("from")
}
