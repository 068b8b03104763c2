package rfc9211

import (
	"fmt"
	"strings"
)

// CacheName identifies this cache in the Cache-Status field.
const CacheName = "RequestCache"

type FwdReason string

const (
	// The cache was configured to not handle this request.
	FwdReasonBypass FwdReason = "bypass"
	// The request method's semantics require the request to be forwarded.
	FwdReasonMethod FwdReason = "method"
	// The cache did not contain any responses that matched the request URI.
	FwdReasonUriMiss FwdReason = "uri-miss"
	// The cache did not contain any responses that could be used to satisfy this request.
	FwdReasonMiss FwdReason = "miss"
	// The cache was able to select a fresh response for the request, but the request's
	// semantics did not allow its use.
	FwdReasonRequest FwdReason = "request"
	// The cache was able to select a response for the request, but it was stale.
	FwdReasonStale FwdReason = "stale"
)

// CacheStatus is the value of a single Cache-Status list member.
//
// §  2. The Cache-Status HTTP Response Header Field
// §
// §    Cache-Status   = sf-list
// §
// §  Each member of the list represents a cache that has handled the request.
type CacheStatus struct {
	hit       bool
	FwdReason FwdReason
	// Upstream response status, if the request was forwarded.
	FwdStatus int
	// Remaining freshness lifetime in seconds, zero if unknown.
	TimeToLive int
	// Whether the response was stored.
	Stored bool
	// Whether the request was collapsed with another one.
	Collapsed bool
	Detail    string
}

// Hit marks the response as served from the cache.
func (cs *CacheStatus) Hit() {
	cs.hit = true
	cs.FwdReason = ""
}

// Forward marks the request as forwarded for the given reason.
func (cs *CacheStatus) Forward(reason FwdReason) {
	cs.hit = false
	cs.FwdReason = reason
}

// IsHit reports whether the response was served from the cache.
func (cs CacheStatus) IsHit() bool {
	return cs.hit
}

func (cs CacheStatus) String() string {
	parts := []string{CacheName}
	if cs.hit {
		parts = append(parts, "hit")
	} else if cs.FwdReason != "" {
		parts = append(parts, "fwd="+string(cs.FwdReason))
		if cs.FwdStatus != 0 {
			parts = append(parts, fmt.Sprintf("fwd-status=%d", cs.FwdStatus))
		}
	}
	if cs.TimeToLive > 0 {
		parts = append(parts, fmt.Sprintf("ttl=%d", cs.TimeToLive))
	}
	if cs.Stored {
		parts = append(parts, "stored")
	}
	if cs.Collapsed {
		parts = append(parts, "collapsed")
	}
	if cs.Detail != "" {
		parts = append(parts, "detail="+cs.Detail)
	}
	return strings.Join(parts, "; ")
}
