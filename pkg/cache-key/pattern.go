package cachekey

import (
	"net/url"
	"regexp"
)

// URLPattern matches the keys of all requests for exactly u, whatever their
// method or key headers.
func URLPattern(u *url.URL) *regexp.Regexp {
	return regexp.MustCompile(`^[A-Z]+` + methodSeparator + regexp.QuoteMeta(u.String()) + headerSeparator)
}

// PathPattern matches the keys of all requests for the scheme, host and path
// of u, whatever their query.
func PathPattern(u *url.URL) *regexp.Regexp {
	base := url.URL{Scheme: u.Scheme, User: u.User, Host: u.Host, Path: u.Path, RawPath: u.RawPath}
	return regexp.MustCompile(`^[A-Z]+` + methodSeparator + regexp.QuoteMeta(base.String()) + `(\?[^` + headerSeparator + `]*)?` + headerSeparator)
}
