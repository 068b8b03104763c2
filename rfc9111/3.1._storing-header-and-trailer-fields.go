package rfc9111

import (
	"context"
	"net/http"
	"strings"
)

var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"TE",
	"Transfer-Encoding",
	"Upgrade",
}

// §  3.1.  Storing Header and Trailer Fields
// §
// §     Caches MUST include all received response header fields -- including
// §     unrecognized ones -- when storing a response; [...]  However, the
// §     following exceptions are made:
// §
// §     *  The Connection header field and fields whose names are listed in
// §        it are required by Section 7.6.1 of [HTTP] to be removed before
// §        forwarding the message.  This MAY be implemented by doing so
// §        before storage.
// §
// §     *  Header fields that are specific to the proxy that a cache uses
// §        when forwarding a request MUST NOT be stored [...]

// StorableHeader returns a copy of the response header without the fields that must not be stored.
func StorableHeader(header http.Header) http.Header {
	if header == nil {
		return nil
	}
	h := header.Clone()
	removeHopByHop(h)
	h.Del("Proxy-Authenticate")
	h.Del("Proxy-Authentication-Info")
	return h
}

// ForwardRequest returns a copy of req, bound to ctx, without hop-by-hop header fields.
func ForwardRequest(ctx context.Context, req *http.Request) *http.Request {
	r := req.Clone(ctx)
	removeHopByHop(r.Header)
	return r
}

func removeHopByHop(h http.Header) {
	for _, name := range GetListHeader(h, "Connection") {
		h.Del(name)
	}
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}

// GetListHeader returns the members of a comma-separated list field.
func GetListHeader(header http.Header, field string) []string {
	list := make([]string, 0)
	for _, hdr := range header.Values(field) {
		for _, item := range strings.Split(hdr, ",") {
			if item = strings.TrimSpace(item); item != "" {
				list = append(list, item)
			}
		}
	}
	return list
}
