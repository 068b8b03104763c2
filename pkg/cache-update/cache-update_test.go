package cacheupdate

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCacheUpdates(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://example.com/api/services/7?x=1", nil)
	res := &http.Response{StatusCode: http.StatusOK, Header: http.Header{}}
	res.Header.Add(Header, "/api/services; delay=5")
	res.Header.Add(Header, "reviews")

	updates := GetCacheUpdates(req, res)
	require.Len(t, updates, 2)
	assert.Equal(t, "http://example.com/api/services", updates[0].URL.String())
	assert.Equal(t, 5*time.Second, updates[0].Delay)
	assert.Equal(t, "http://example.com/api/services/reviews", updates[1].URL.String())
	assert.Zero(t, updates[1].Delay)
}

func TestGetCacheUpdatesIgnoresSafeRequests(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/api/services", nil)
	res := &http.Response{StatusCode: http.StatusOK, Header: http.Header{Header: {"/api/services"}}}
	assert.Nil(t, GetCacheUpdates(req, res))
}

func TestGetDelay(t *testing.T) {
	assert.Equal(t, 10*time.Second, getDelay("/a; DELAY=10"))
	assert.Zero(t, getDelay("/a; delay=soon"))
	assert.Zero(t, getDelay("/a"))
}
