package requestcache

import (
	"math"
	"net/http"
	"strconv"

	"github.com/always-cache/request-cache/cache"
	"github.com/always-cache/request-cache/pkg/notify"
	serializer "github.com/always-cache/request-cache/pkg/response-serializer"
	"github.com/always-cache/request-cache/rfc9111"
	"github.com/always-cache/request-cache/rfc9211"

	"github.com/jmgilman/go/errors"
)

// cacheOnly never touches the network. A miss yields a synthetic 504.
func (c *Client) cacheOnly(r *request) (*http.Response, error) {
	if e, ok := c.store.Get(r.r); ok {
		return c.serveEntry(r, e, r.resolution.Strategy.String()), nil
	}
	r.log.Trace().Msg("Not in cache, not going to the network")
	cs := rfc9211.CacheStatus{Detail: r.resolution.Strategy.String()}
	cs.Forward(rfc9211.FwdReasonMiss)
	return c.respond(r, gatewayTimeout(), cs), nil
}

// networkOnly never reads the cache but still admits the response.
func (c *Client) networkOnly(r *request) (*http.Response, error) {
	result, shared, err := c.fetch(r, r.resolution.Key)
	if err != nil {
		return nil, err
	}
	return c.serveFetched(r, result, shared, rfc9211.FwdReasonRequest), nil
}

func (c *Client) cacheFirst(r *request) (*http.Response, error) {
	if e, ok := c.store.Get(r.r); ok {
		return c.serveEntry(r, e, r.resolution.Strategy.String()), nil
	}
	result, shared, err := c.fetch(r, r.resolution.Key)
	if err != nil {
		return nil, err
	}
	return c.serveFetched(r, result, shared, rfc9211.FwdReasonUriMiss), nil
}

// networkFirst falls back to any stored entry, expired or not, when the
// network fails or responds with a non-2xx status.
func (c *Client) networkFirst(r *request) (*http.Response, error) {
	result, shared, err := c.fetch(r, r.resolution.Key)
	if err == nil && successful(result.statusCode()) {
		return c.serveFetched(r, result, shared, rfc9211.FwdReasonRequest), nil
	}

	cause := err
	if cause == nil {
		cause = errors.Newf(errors.CodeUnavailable, "origin responded with status %d", result.statusCode())
	}
	if e, ok := c.store.GetStale(r.r); ok {
		if result != nil {
			result.discard()
		}
		return c.serveFallback(r, e, cause), nil
	}
	if err != nil {
		return nil, err
	}
	return c.serveFetched(r, result, shared, rfc9211.FwdReasonRequest), nil
}

// staleWhileRevalidate serves a stored entry immediately and refreshes it in
// the background. Without a live entry it behaves like cache-first, falling
// back to the expired entry, if there was one, when the network fails.
func (c *Client) staleWhileRevalidate(r *request) (*http.Response, error) {
	// Get drops an expired entry, keep it as the fallback
	stale, _ := c.store.Peek(r.r)
	if e, ok := c.store.Get(r.r); ok {
		c.revalidate(r)
		return c.serveEntry(r, e, r.resolution.Strategy.String()), nil
	}
	result, shared, err := c.fetch(r, r.resolution.Key)
	if err != nil {
		if stale == nil {
			stale, _ = c.store.Peek(r.r)
		}
		if stale != nil {
			return c.serveFallback(r, stale, err), nil
		}
		return nil, err
	}
	return c.serveFetched(r, result, shared, rfc9211.FwdReasonUriMiss), nil
}

// bypass sends a request that must not be cached straight to the network.
// Successful unsafe requests invalidate the affected entries.
func (c *Client) bypass(r *request) (*http.Response, error) {
	res, err := c.transport.RoundTrip(outgoing(r.r.Context(), r.r))
	if err != nil {
		r.log.Warn().Err(err).Msg("Network request failed")
		return nil, transportError(r.r, err)
	}
	if c.modifyResponse != nil {
		if err := c.modifyResponse(res); err != nil {
			res.Body.Close()
			return nil, errors.Wrap(err, errors.CodeInternal, "could not modify response")
		}
	}

	cs := rfc9211.CacheStatus{FwdStatus: res.StatusCode}
	if rfc9111.UnsafeRequest(r.r) {
		cs.Forward(rfc9211.FwdReasonMethod)
		if c.invalidate {
			c.invalidateAfter(r, res)
		}
	} else {
		cs.Forward(rfc9211.FwdReasonBypass)
	}
	res.Header.Add("Cache-Status", cs.String())
	c.logRequest(r, cs)
	return res, nil
}

func (c *Client) serveEntry(r *request, e *cache.Entry, detail string) *http.Response {
	cs := rfc9211.CacheStatus{
		TimeToLive: int(math.Ceil(c.store.TimeToLive(e).Seconds())),
		Detail:     detail,
	}
	cs.Hit()
	res := c.respond(r, e.Response, cs)
	res.Header.Set("Age", strconv.Itoa(int(c.store.Now().Sub(e.CreatedAt).Seconds())))
	return res
}

func (c *Client) serveFallback(r *request, e *cache.Entry, cause error) *http.Response {
	r.log.Warn().Err(cause).Msg("Serving cached response after network failure")
	c.notifier.Notify(notify.Notification{
		Level:   notify.Warning,
		Message: "Serving cached data after network failure",
		URL:     r.r.URL.String(),
	})
	return c.serveEntry(r, e, "stale")
}

func (c *Client) serveFetched(r *request, result *fetchResult, shared bool, reason rfc9211.FwdReason) *http.Response {
	cs := rfc9211.CacheStatus{
		FwdStatus: result.statusCode(),
		Stored:    result.stored,
		Collapsed: shared,
		Detail:    r.resolution.Strategy.String(),
	}
	cs.Forward(reason)
	if result.large != nil {
		res := result.large.res
		res.Request = r.r
		res.Header.Add("Cache-Status", cs.String())
		c.logRequest(r, cs)
		return res
	}
	return c.respond(r, result.snap, cs)
}

func successful(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

func gatewayTimeout() *serializer.Snapshot {
	return &serializer.Snapshot{
		StatusCode: http.StatusGatewayTimeout,
		Header:     http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		Body:       []byte("Gateway Timeout: response not available in cache\n"),
	}
}
