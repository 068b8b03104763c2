package requestcache

import (
	"crypto/tls"
	"net/http"
	"net/http/httputil"
	"net/url"
)

// ReverseProxy returns a handler forwarding every incoming request to origin
// through the client. hostHeader, if set, replaces the Host of forwarded requests.
func (c *Client) ReverseProxy(origin *url.URL, hostHeader string) *httputil.ReverseProxy {
	if hostHeader == "" {
		hostHeader = origin.Host
	}
	return &httputil.ReverseProxy{
		Director:     createDirector(origin.Scheme, origin.Host, hostHeader),
		Transport:    c,
		ErrorHandler: c.proxyError,
	}
}

// OriginTransport returns a transport negotiating TLS with the given server name.
// Use it if e.g. the origin URL is just an IP address.
func OriginTransport(serverName string) http.RoundTripper {
	if serverName == "" {
		return http.DefaultTransport
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		ServerName: serverName,
	}
	return transport
}

func createDirector(scheme, host, hostHeader string) func(req *http.Request) {
	return func(req *http.Request) {
		req.URL.Scheme = scheme
		req.URL.Host = host
		req.Host = hostHeader
		// this is a workaround to remove default headers sent by an upstream proxy
		// some servers do not like the presence of these headers in the downstream request
		req.Header.Del("X-Forwarded-Proto")
		req.Header.Del("X-Forwarded-Host")
	}
}

func (c *Client) proxyError(w http.ResponseWriter, r *http.Request, err error) {
	c.log.Error().Err(err).Str("url", r.URL.String()).Msg("Could not proxy request")
	w.WriteHeader(http.StatusBadGateway)
}
