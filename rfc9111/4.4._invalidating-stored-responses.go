package rfc9111

import (
	"net/http"
	"net/url"
)

// §  4.4.  Invalidating Stored Responses
// §
// §     A cache MUST invalidate the target URI (Section 7.1 of [HTTP]) when
// §     it receives a non-error status code in response to an unsafe request
// §     method (including methods whose safety is unknown).
// §
// §     A cache MAY invalidate other URIs when it receives a non-error status
// §     code in response to an unsafe request method (including methods whose
// §     safety is unknown).  In particular, the URI(s) in the Location and
// §     Content-Location response header fields (if present) are candidates
// §     for invalidation; [...]  However, a cache MUST NOT trigger an
// §     invalidation under these conditions if the origin (Section 4.3.1 of
// §     [HTTP]) of the URI to be invalidated differs from that of the target
// §     URI (Section 7.1 of [HTTP]).
// §
// §     A "non-error response" is one with a 2xx (Successful) or 3xx
// §     (Redirection) status code.

// UnsafeRequest reports whether the request method is not known to be safe.
func UnsafeRequest(req *http.Request) bool {
	switch req.Method {
	case "", http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	}
	return true
}

// NonErrorResponse reports whether the status code is 2xx or 3xx.
func NonErrorResponse(statusCode int) bool {
	return statusCode >= 200 && statusCode < 400
}

// InvalidateURIs returns the URIs to invalidate after the response to req,
// i.e. the target URI and the same-origin Location and Content-Location URIs.
// It returns nil for safe requests and error responses.
func InvalidateURIs(req *http.Request, res *http.Response) []*url.URL {
	if !UnsafeRequest(req) || !NonErrorResponse(res.StatusCode) {
		return nil
	}
	target := req.URL
	uris := []*url.URL{target}
	for _, field := range []string{"Location", "Content-Location"} {
		value := res.Header.Get(field)
		if value == "" {
			continue
		}
		ref, err := url.Parse(value)
		if err != nil {
			continue
		}
		u := target.ResolveReference(ref)
		if sameOrigin(target, u) {
			uris = append(uris, u)
		}
	}
	return uris
}

func sameOrigin(a, b *url.URL) bool {
	return a.Scheme == b.Scheme && a.Host == b.Host
}
