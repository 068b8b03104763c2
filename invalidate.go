package requestcache

import (
	"net/http"
	"regexp"
	"time"

	cachekey "github.com/always-cache/request-cache/pkg/cache-key"
	cacheupdate "github.com/always-cache/request-cache/pkg/cache-update"
	"github.com/always-cache/request-cache/rfc9111"
)

// invalidateAfter removes the entries affected by a successful unsafe request:
// the target URI, same-origin Location and Content-Location, and every path
// named in a Cache-Update header.
func (c *Client) invalidateAfter(r *request, res *http.Response) {
	for _, u := range rfc9111.InvalidateURIs(r.r, res) {
		c.store.InvalidateByPattern(cachekey.URLPattern(u))
	}
	if !rfc9111.NonErrorResponse(res.StatusCode) {
		return
	}
	for _, update := range cacheupdate.GetCacheUpdates(r.r, res) {
		pattern := cachekey.PathPattern(update.URL)
		r.log.Trace().Str("update", update.URL.String()).Dur("delay", update.Delay).Msg("Invalidating based on header")
		if update.Delay > 0 {
			c.invalidateLater(pattern, update.Delay)
		} else {
			c.store.InvalidateByPattern(pattern)
		}
	}
}

func (c *Client) invalidateLater(pattern *regexp.Regexp, delay time.Duration) {
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-c.done:
		case <-timer.C:
			c.store.InvalidateByPattern(pattern)
		}
	}()
}
