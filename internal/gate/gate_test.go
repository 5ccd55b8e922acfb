package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPublic(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/", true},
		{"/login", true},
		{"/register", true},
		{"/api/health", true},
		{"/login/reset", true},
		{"/pl", false},
		{"/upload", false},
		{"/loginx", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsPublic(tt.path), "IsPublic(%q)", tt.path)
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name          string
		path          string
		authenticated bool
		want          Decision
	}{
		{"protected without session", "/pl", false, Decision{Redirect: "/login?from=%2Fpl"}},
		{"protected with session", "/pl", true, Decision{Allow: true}},
		{"login without session", "/login", false, Decision{Allow: true}},
		{"login with session", "/login", true, Decision{Redirect: "/pl"}},
		{"register with session", "/register", true, Decision{Redirect: "/pl"}},
		{"public with session", "/api/health", true, Decision{Allow: true}},
		{"nested protected", "/import/commit", false, Decision{Redirect: "/login?from=%2Fimport%2Fcommit"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.path, tt.authenticated))
		})
	}
}

func TestFrom(t *testing.T) {
	d := Decide("/upload", false)
	assert.Equal(t, "/upload", From(d.Redirect))
	assert.Equal(t, "", From("/pl"))
}
