package requestcache

import (
	"context"
	"net/http"
	"sync"

	"github.com/always-cache/request-cache/cache"
	serializer "github.com/always-cache/request-cache/pkg/response-serializer"
	"github.com/always-cache/request-cache/pkg/strategy"
	"github.com/always-cache/request-cache/rfc9111"

	"github.com/jmgilman/go/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

type fetchResult struct {
	snap   *serializer.Snapshot
	stored bool
	// Set instead of snap for responses too large to store.
	large *largeResponse
}

// largeResponse is a response whose body is streamed instead of stored.
// Its body can be read by one caller only.
type largeResponse struct {
	once sync.Once
	res  *http.Response
}

// take returns the response to the first caller, nil to all others.
func (l *largeResponse) take() *http.Response {
	var res *http.Response
	l.once.Do(func() { res = l.res })
	return res
}

func (f *fetchResult) statusCode() int {
	if f.large != nil {
		return f.large.res.StatusCode
	}
	return f.snap.StatusCode
}

// discard releases a streamed response that is not going to be served.
func (f *fetchResult) discard() {
	if f.large != nil {
		if res := f.large.take(); res != nil {
			res.Body.Close()
		}
	}
}

// fetch gets the response from the network and admits it into the store.
// Concurrent fetches under the same key share one network request. The shared
// request is detached from the caller's context, so a caller that gives up
// does not cancel it for the others. Reports whether the result was shared.
//
// A response too large to store is streamed to the first caller. Other
// callers sharing it send their own request.
func (c *Client) fetch(r *request, key string) (*fetchResult, bool, error) {
	ctx := r.r.Context()
	detached := r.r.Clone(context.WithoutCancel(ctx))
	ch := c.inflight.DoChan(key, func() (interface{}, error) {
		return c.fetchAndAdmit(detached, r.resolution, r.log)
	})

	select {
	case <-ctx.Done():
		go releaseAbandoned(ch)
		return nil, false, errors.Wrap(ctx.Err(), errors.CodeTimeout, "request abandoned while waiting for the network")
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Shared, res.Err
		}
		result := res.Val.(*fetchResult)
		if result.large == nil {
			return result, res.Shared, nil
		}
		if large := result.large.take(); large != nil {
			return &fetchResult{large: &largeResponse{res: large}}, res.Shared, nil
		}
		return c.fetchUnshared(r)
	}
}

// releaseAbandoned closes a streamed response once nobody waits for it.
func releaseAbandoned(ch <-chan singleflight.Result) {
	res := <-ch
	if res.Err == nil {
		res.Val.(*fetchResult).discard()
	}
}

// fetchUnshared sends the request on the caller's context without storing
// the response.
func (c *Client) fetchUnshared(r *request) (*fetchResult, bool, error) {
	res, err := c.transport.RoundTrip(outgoing(r.r.Context(), r.r))
	if err != nil {
		r.log.Warn().Err(err).Msg("Network request failed")
		return nil, false, transportError(r.r, err)
	}
	if c.modifyResponse != nil {
		if err := c.modifyResponse(res); err != nil {
			res.Body.Close()
			return nil, false, errors.Wrap(err, errors.CodeInternal, "could not modify response")
		}
	}
	res.Header = rfc9111.StorableHeader(res.Header)
	return &fetchResult{large: &largeResponse{res: res}}, false, nil
}

func (c *Client) fetchAndAdmit(req *http.Request, resolution strategy.Resolution, log zerolog.Logger) (*fetchResult, error) {
	requestedAt := c.store.Now()
	res, err := c.transport.RoundTrip(outgoing(req.Context(), req))
	if err != nil {
		log.Warn().Err(err).Msg("Network request failed")
		return nil, transportError(req, err)
	}
	if c.modifyResponse != nil {
		if err := c.modifyResponse(res); err != nil {
			res.Body.Close()
			return nil, errors.Wrap(err, errors.CodeInternal, "could not modify response")
		}
	}

	snap, err := serializer.FromLimitedResponse(res, c.store.Now(), cache.MaxEntrySize)
	if errors.Is(err, serializer.ErrTooLarge) {
		log.Debug().Int("status", res.StatusCode).Msg("Response too large to store, streaming it")
		c.store.Reject(req, "response exceeds entry size limit")
		res.Header = rfc9111.StorableHeader(res.Header)
		return &fetchResult{large: &largeResponse{res: res}}, nil
	}
	if err != nil {
		return nil, transportError(req, err)
	}
	snap.Header = rfc9111.StorableHeader(snap.Header)

	result := &fetchResult{snap: snap}
	if rfc9111.ParseCacheControl(snap.Header.Values("Cache-Control")).NoStore() {
		log.Trace().Msg("Response is no-store")
	} else {
		result.stored = c.store.Put(req, snap, cache.PutOptions{
			TTL:  resolution.TTL,
			Tags: resolution.Tags,
		})
	}
	log.Trace().
		Int("status", snap.StatusCode).
		Dur("elapsed", snap.ReceivedAt.Sub(requestedAt)).
		Bool("stored", result.stored).
		Msg("Fetched from network")
	return result, nil
}

// revalidate refreshes the entry in the background. At most one revalidation
// per key is in flight; it never shares a request with foreground fetches.
func (c *Client) revalidate(r *request) {
	req := r.r.Clone(context.WithoutCancel(r.r.Context()))
	key := r.resolution.Key + backgroundSuffix
	resolution := r.resolution
	log := r.log

	c.background.Add(1)
	go func() {
		defer c.background.Done()
		val, err, _ := c.inflight.Do(key, func() (interface{}, error) {
			return c.fetchAndAdmit(req, resolution, log)
		})
		if err != nil {
			log.Warn().Err(err).Msg("Background revalidation failed")
			return
		}
		val.(*fetchResult).discard()
		log.Trace().Msg("Revalidated in background")
	}()
}
