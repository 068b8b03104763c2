package cachekey

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keyFor(method, target string) string {
	return NewCacheKeyer().Key(httptest.NewRequest(method, target, nil))
}

func TestURLPattern(t *testing.T) {
	u, err := url.Parse("http://example.com/api/users?page=2")
	require.NoError(t, err)
	p := URLPattern(u)

	assert.True(t, p.MatchString(keyFor(http.MethodGet, "http://example.com/api/users?page=2")))
	assert.True(t, p.MatchString(keyFor(http.MethodHead, "http://example.com/api/users?page=2")))
	assert.False(t, p.MatchString(keyFor(http.MethodGet, "http://example.com/api/users")))
	assert.False(t, p.MatchString(keyFor(http.MethodGet, "http://example.com/api/users?page=23")))
}

func TestPathPattern(t *testing.T) {
	u, err := url.Parse("http://example.com/api/users?ignored=1")
	require.NoError(t, err)
	p := PathPattern(u)

	assert.True(t, p.MatchString(keyFor(http.MethodGet, "http://example.com/api/users")))
	assert.True(t, p.MatchString(keyFor(http.MethodGet, "http://example.com/api/users?page=2")))
	assert.False(t, p.MatchString(keyFor(http.MethodGet, "http://example.com/api/users/7")))
	assert.False(t, p.MatchString(keyFor(http.MethodGet, "http://other.example.com/api/users")))
}
