package cachekey

import (
	"crypto/sha256"
	"fmt"
	"net/http"
	"strings"
)

const (
	methodSeparator = ":"
	headerSeparator = "\t"
)

// KeyHeaders are the request headers whose values take part in the cache key.
// Any other header is ignored.
var KeyHeaders = []string{"Accept", "Content-Type", "Authorization"}

type CacheKeyer struct {
	// Request headers included in the key.
	Headers []string
}

func NewCacheKeyer() CacheKeyer {
	return CacheKeyer{Headers: KeyHeaders}
}

// Key returns the cache key for a request.
// The key is the method and full URL (including the query), followed by a digest of the
// allow-listed header values. Header values are hashed so that credentials never end up
// in logs or persisted metadata.
func (c CacheKeyer) Key(r *http.Request) string {
	return c.MethodPrefix(r.Method) + r.URL.String() + headerSeparator + c.headerHash(r.Header)
}

// MethodPrefix gets the key prefix for all requests with the given method.
func (c CacheKeyer) MethodPrefix(method string) string {
	if method == "" {
		method = http.MethodGet
	}
	return strings.ToUpper(method) + methodSeparator
}

// URL returns the URL part of a key generated by Key.
func URL(key string) (string, error) {
	_, rest, found := strings.Cut(key, methodSeparator)
	if !found {
		return "", fmt.Errorf("malformed key: %s", key)
	}
	url, _, found := strings.Cut(rest, headerSeparator)
	if !found {
		return "", fmt.Errorf("malformed key: %s", key)
	}
	return url, nil
}

// headerHash returns the hash of the allow-listed header values.
func (c CacheKeyer) headerHash(header http.Header) string {
	var b strings.Builder
	for _, name := range c.Headers {
		b.WriteString(strings.ToLower(name))
		b.WriteString(": ")
		b.WriteString(strings.Join(header.Values(name), ","))
		b.WriteString("\n")
	}
	return fmt.Sprintf("%x", sha256.Sum256([]byte(b.String())))[:16]
}
