package rfc9111

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnsafeRequest(t *testing.T) {
	assert.False(t, UnsafeRequest(httptest.NewRequest(http.MethodGet, "http://example.com/", nil)))
	assert.False(t, UnsafeRequest(httptest.NewRequest(http.MethodHead, "http://example.com/", nil)))
	assert.True(t, UnsafeRequest(httptest.NewRequest(http.MethodPost, "http://example.com/", nil)))
	assert.True(t, UnsafeRequest(httptest.NewRequest("PURGE", "http://example.com/", nil)))
}

func TestInvalidateURIs(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://example.com/api/users", nil)
	res := &http.Response{StatusCode: http.StatusCreated, Header: http.Header{}}
	res.Header.Set("Location", "/api/users/7")
	res.Header.Set("Content-Location", "http://other.example.com/api/users/7")

	var urls []string
	for _, u := range InvalidateURIs(req, res) {
		urls = append(urls, u.String())
	}
	assert.Equal(t, []string{"http://example.com/api/users", "http://example.com/api/users/7"}, urls)
}

func TestInvalidateURIsSkipsErrorsAndSafeMethods(t *testing.T) {
	post := httptest.NewRequest(http.MethodPost, "http://example.com/api/users", nil)
	assert.Nil(t, InvalidateURIs(post, &http.Response{StatusCode: http.StatusBadRequest}))

	get := httptest.NewRequest(http.MethodGet, "http://example.com/api/users", nil)
	assert.Nil(t, InvalidateURIs(get, &http.Response{StatusCode: http.StatusOK}))
}
