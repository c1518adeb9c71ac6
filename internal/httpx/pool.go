// Package httpx implements C13 HTTP Connection Pool: one pooled client per
// scheme://host, with keep-alive/HTTP2 tuning and streaming-friendly
// timeouts (§4.13). Grounded on the teacher's relay adaptor pattern of a
// shared *http.Client reused across requests (relay/adaptor/openai_compatible),
// generalized into an explicit per-origin pool instead of one process-wide
// client, since this gateway fans out to many distinct upstream origins.
package httpx

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
)

const (
	maxIdleConnsPerHost = 20
	maxIdleConns        = 100
	idleConnTimeout     = 30 * time.Second
	dialTimeout         = 10 * time.Second
	responseHeaderTimeout = 300 * time.Second
)

// Pool hands out one *http.Client per scheme://host origin, created lazily
// and cached for the process lifetime (§4.13).
type Pool struct {
	mu      sync.RWMutex
	clients map[string]*http.Client
}

func NewPool() *Pool {
	return &Pool{clients: make(map[string]*http.Client)}
}

func originOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Wrap(err, "parse url for pool origin")
	}
	return u.Scheme + "://" + u.Host, nil
}

// ClientFor returns the pooled *http.Client for rawURL's origin, creating
// one on first use.
func (p *Pool) ClientFor(rawURL string) (*http.Client, error) {
	origin, err := originOf(rawURL)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	c, ok := p.clients[origin]
	p.mu.RUnlock()
	if ok {
		return c, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok = p.clients[origin]; ok {
		return c, nil
	}
	c = newClient()
	p.clients[origin] = c
	return c, nil
}

func newClient() *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          maxIdleConns,
		MaxIdleConnsPerHost:   maxIdleConnsPerHost,
		IdleConnTimeout:       idleConnTimeout,
		ResponseHeaderTimeout: responseHeaderTimeout,
		ForceAttemptHTTP2:     true,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}
	return &http.Client{
		Transport: transport,
		// No overall client.Timeout: streaming responses can run far longer
		// than a single phase; per-phase timeouts are applied via context
		// deadlines by callers (connect via DialContext above, read via
		// ResponseHeaderTimeout, body streaming is caller-controlled).
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			return nil
		},
	}
}

// Do issues req using the pooled client for its URL's origin.
func (p *Pool) Do(req *http.Request) (*http.Response, error) {
	c, err := p.ClientFor(req.URL.String())
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "execute pooled http request")
	}
	return resp, nil
}

// Stream issues req and returns the raw response for the caller to read
// chunk-by-chunk (§4.13 "stream" contract); callers MUST close resp.Body.
func (p *Pool) Stream(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	return p.Do(req)
}

// CloseAll idles out every pooled client's connections (used during
// shutdown drain, §5 "close connection pool").
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clients {
		if t, ok := c.Transport.(*http.Transport); ok {
			t.CloseIdleConnections()
		}
	}
}

// DrainBody discards and closes a response body, used after reading a
// non-streaming response or aborting a streaming one (§5 cancellation:
// "aborts the upstream response body (closing the socket)").
func DrainBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
