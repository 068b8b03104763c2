// Package requestcache serves outbound HTTP requests from a response store
// or the network, according to a per-request caching strategy.
//
// A Client is an http.RoundTripper and is typically used as the Transport of
// an http.Client:
//
//	store, _ := cache.New(cache.DefaultConfig())
//	rc, _ := requestcache.CreateClient(requestcache.Config{Store: store})
//	client := &http.Client{Transport: rc}
package requestcache

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/always-cache/request-cache/cache"
	"github.com/always-cache/request-cache/pkg/notify"
	serializer "github.com/always-cache/request-cache/pkg/response-serializer"
	"github.com/always-cache/request-cache/pkg/strategy"
	"github.com/always-cache/request-cache/rfc9111"
	"github.com/always-cache/request-cache/rfc9211"

	"github.com/google/uuid"
	"github.com/jmgilman/go/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrTransport is reachable through errors.Is from every network failure
// returned by the client.
var ErrTransport = errors.New(errors.CodeNetwork, "network request failed")

// Suffix of the in-flight keys used by background revalidation.
const backgroundSuffix = "_bg"

type Config struct {
	// Storage for cache entries. Required.
	Store *cache.Store
	// Transport used for network requests. http.DefaultTransport if nil.
	Transport http.RoundTripper
	// Receives user-visible warnings. Notifications are dropped if nil.
	Notifier notify.Notifier
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
	// Optional function for mutating the outgoing request.
	RequestModifier func(*http.Request)
	// Optional function for transforming the network response before it is stored.
	ResponseModifier func(*http.Response) error
	// Disable invalidation after unsafe requests.
	DisableInvalidation bool
}

// Client orchestrates requests. It is safe for concurrent use.
type Client struct {
	store          *cache.Store
	transport      http.RoundTripper
	notifier       notify.Notifier
	log            zerolog.Logger
	inflight       singleflight.Group
	modifyRequest  func(*http.Request)
	modifyResponse func(*http.Response) error
	invalidate     bool

	background sync.WaitGroup
	done       chan struct{}
	closeOnce  sync.Once
}

// CreateClient initializes the request cache client.
func CreateClient(config Config) (*Client, error) {
	if config.Store == nil {
		return nil, errors.New(errors.CodeInvalidConfig, "a cache store is required")
	}

	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	c := &Client{
		store:          config.Store,
		transport:      config.Transport,
		notifier:       config.Notifier,
		log:            logger.With().Str("component", "orchestrator").Logger(),
		modifyRequest:  config.RequestModifier,
		modifyResponse: config.ResponseModifier,
		invalidate:     !config.DisableInvalidation,
		done:           make(chan struct{}),
	}
	if c.transport == nil {
		c.transport = http.DefaultTransport
	}
	if c.notifier == nil {
		c.notifier = notify.Discard
	}
	return c, nil
}

// Close stops pending delayed invalidations and waits for background work.
// The store is not closed.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
	c.background.Wait()
}

// Wait blocks until all background revalidations and invalidations have finished.
func (c *Client) Wait() {
	c.background.Wait()
}

// request is the per-request state.
type request struct {
	r          *http.Request
	resolution strategy.Resolution
	log        zerolog.Logger
}

// Orchestrate serves the request according to its strategy.
func (c *Client) Orchestrate(req *http.Request) (*http.Response, error) {
	return c.RoundTrip(req)
}

// RoundTrip implements the http.RoundTripper interface.
func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	if c.modifyRequest != nil {
		req = req.Clone(req.Context())
		c.modifyRequest(req)
	}

	r := &request{r: req}
	r.log = c.log.With().
		Str("requestId", uuid.NewString()).
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Logger()

	if !c.store.ShouldCache(req) {
		return c.bypass(r)
	}

	r.resolution = c.store.Resolve(req)
	r.log = r.log.With().Str("strategy", r.resolution.Strategy.String()).Logger()
	r.log.Trace().Str("key", r.resolution.Key).Msg("Resolved strategy")
	c.store.RecordStrategy(r.resolution.Strategy)

	switch r.resolution.Strategy {
	case strategy.CacheOnly:
		return c.cacheOnly(r)
	case strategy.NetworkOnly:
		return c.networkOnly(r)
	case strategy.CacheFirst:
		return c.cacheFirst(r)
	case strategy.NetworkFirst:
		return c.networkFirst(r)
	case strategy.StaleWhileRevalidate:
		return c.staleWhileRevalidate(r)
	}
	return nil, errors.Newf(errors.CodeInternal, "unhandled strategy %v", r.resolution.Strategy)
}

// outgoing returns the request to send to the network, bound to ctx and
// stripped of the headers only meaningful to this client.
func outgoing(ctx context.Context, req *http.Request) *http.Request {
	out := rfc9111.ForwardRequest(ctx, req)
	for _, name := range []string{strategy.HeaderStrategy, strategy.HeaderTTL, strategy.HeaderTags, strategy.HeaderNoCache} {
		out.Header.Del(name)
	}
	return out
}

func transportError(req *http.Request, err error) error {
	return errors.WithContext(
		errors.Wrap(fmt.Errorf("%w: %w", ErrTransport, err), errors.CodeNetwork, "could not fetch "+req.URL.Redacted()),
		"method", req.Method)
}

// respond builds the response for the client from a snapshot.
func (c *Client) respond(r *request, snap *serializer.Snapshot, cs rfc9211.CacheStatus) *http.Response {
	res := snap.Response(r.r)
	res.Header.Add("Cache-Status", cs.String())
	c.logRequest(r, cs)
	return res
}

func (c *Client) logRequest(r *request, cs rfc9211.CacheStatus) {
	isHit := 0
	if cs.IsHit() {
		isHit = 1
	}
	r.log.Debug().
		Str("sourceIp", getRequestSourceIp(r.r)).
		Str("fwd", string(cs.FwdReason)).
		Int("fwdStatus", cs.FwdStatus).
		Bool("stored", cs.Stored).
		Bool("collapsed", cs.Collapsed).
		Int("ttl", cs.TimeToLive).
		Int("hit", isHit).
		Msg("Sending response to client")
}

func getRequestSourceIp(r *http.Request) string {
	// RemoteAddr is in the format:
	// 1.2.3.4:10000 for ipv4
	// [1:2:3]:10000 for ipv6
	ipAndPort := r.RemoteAddr
	portSepIdx := strings.LastIndex(ipAndPort, ":")
	if portSepIdx < 0 {
		return ipAndPort
	}
	return ipAndPort[:portSepIdx]
}
