package rfc9111

import (
	"net/http"
	"strings"
)

// CacheControl implements parsing of the "Cache-Control" header (/field).
//
// §  5.2. Cache-Control
// §
// §  Cache directives are identified by a token, to be compared case-insensitively,
// §  and have an optional argument that can use both token and quoted-string syntax.
// §
// §    Cache-Control   = #cache-directive
// §
// §    cache-directive = token [ "=" ( token / quoted-string ) ]
type CacheControl struct {
	directives map[string]string
}

// Get returns the value (/argument) of the specified directive,
// along with a boolean indicating whether this directive is present
func (c CacheControl) Get(directive string) (string, bool) {
	val, ok := c.directives[strings.ToLower(directive)]
	return val, ok
}

// HasDirective returns whether the specified directive is present
func (c CacheControl) HasDirective(directive string) bool {
	_, ok := c.Get(directive)
	return ok
}

// ParseCacheControl takes Cache-Control headers as a slice of strings
// and returns an instance of `CacheControl`.
func ParseCacheControl(headers []string) CacheControl {
	m := make(map[string]string)
	// note setting map values like this means last defined directive wins
	for _, header := range headers {
		for _, directive := range strings.Split(header, ",") {
			directive = strings.TrimSpace(directive)
			if directive == "" {
				continue
			}
			name, arg, _ := strings.Cut(directive, "=")
			m[getCacheControlDirectiveName(name)] = getCacheControlDirectiveArgument(arg)
		}
	}
	return CacheControl{m}
}

// RequestCacheControl parses the Cache-Control and Pragma fields of a request.
//
// §  5.4. Pragma
// §
// §  When the Cache-Control header field is not present in a request, caches MUST
// §  consider the no-cache request pragma directive as having the same effect as if
// §  "Cache-Control: no-cache" were present.
func RequestCacheControl(header http.Header) CacheControl {
	cc := ParseCacheControl(header.Values("Cache-Control"))
	if len(header.Values("Cache-Control")) == 0 {
		for _, pragma := range header.Values("Pragma") {
			if strings.EqualFold(strings.TrimSpace(pragma), "no-cache") {
				cc.directives["no-cache"] = ""
			}
		}
	}
	return cc
}

// NoCache reports whether the "no-cache" directive is present.
//
// §  5.2.1.4. no-cache
// §
// §  The no-cache request directive indicates that the client prefers a stored
// §  response not be used to satisfy the request without successful validation on
// §  the origin server.
func (c CacheControl) NoCache() bool {
	return c.HasDirective("no-cache")
}

// NoStore reports whether the "no-store" directive is present.
//
// §  5.2.1.5. no-store
// §
// §  The no-store request directive indicates that a cache MUST NOT store any part of
// §  either this request or any response to it.
func (c CacheControl) NoStore() bool {
	return c.HasDirective("no-store")
}

// getCacheControlDirectiveName returns a normalized name for the given directive.
func getCacheControlDirectiveName(token string) string {
	// §  [...] to be compared case-insensitively [...]
	return strings.ToLower(strings.TrimSpace(token))
}

// getCacheControlDirectiveArgument returns the directive argument in token form,
// i.e. it converts the argument from "quoted-string" to "token" form if needed.
func getCacheControlDirectiveArgument(arg string) string {
	// §  [...] argument that can use both token and quoted-string syntax. [...]
	return strings.Trim(strings.TrimSpace(arg), "\"")
}
