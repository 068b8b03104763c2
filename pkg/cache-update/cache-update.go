// Package cacheupdate parses the Cache-Update response header, with which an
// origin names the resources changed by an unsafe request.
//
//	Cache-Update: /api/services; delay=5
package cacheupdate

import (
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/always-cache/request-cache/rfc9111"
)

const Header = "Cache-Update"

var delayDirective = regexp.MustCompile(`(?i)\bdelay=(\d+)`)

// CacheUpdate represents a single `Cache-Update` entry.
type CacheUpdate struct {
	// Resolved against the request URL.
	URL *url.URL
	// Invalidate only after this duration.
	Delay time.Duration
}

// GetCacheUpdates gets the updates specified by the response to an unsafe request.
// Relative paths are resolved against the request URL.
func GetCacheUpdates(req *http.Request, res *http.Response) []CacheUpdate {
	if !rfc9111.UnsafeRequest(req) {
		return nil
	}
	var updates []CacheUpdate
	for _, value := range rfc9111.GetListHeader(res.Header, Header) {
		path := strings.TrimSpace(strings.Split(value, ";")[0])
		if path == "" {
			continue
		}
		updates = append(updates, CacheUpdate{
			URL:   getURL(req, path),
			Delay: getDelay(value),
		})
	}
	return updates
}

// getURL returns the URL to update the cache for, with any query dropped.
func getURL(r *http.Request, path string) *url.URL {
	u := r.URL.ResolveReference(&url.URL{Path: path})
	u.RawQuery = ""
	u.Fragment = ""
	return u
}

// getDelay returns the `delay=N` directive in seconds, or 0.
func getDelay(update string) time.Duration {
	if matches := delayDirective.FindStringSubmatch(update); matches != nil {
		if delay, err := strconv.Atoi(matches[1]); err == nil {
			return time.Duration(delay) * time.Second
		}
	}
	return 0
}
